package ros

// Image encodings understood by rimage. The names match sensor_msgs/image_encodings.
const (
	EncodingRGB8   = "rgb8"
	EncodingBGR8   = "bgr8"
	EncodingRGBA8  = "rgba8"
	EncodingBGRA8  = "bgra8"
	EncodingMono8  = "mono8"
	EncodingMono16 = "mono16"
	Encoding8UC1   = "8UC1"
	Encoding8UC3   = "8UC3"
	Encoding16UC1  = "16UC1"
	EncodingPNG    = "png"
	EncodingJPEG   = "jpeg"
)

// PointField datatypes from sensor_msgs/PointField.
const (
	PointFieldInt8    uint8 = 1
	PointFieldUint8   uint8 = 2
	PointFieldInt16   uint8 = 3
	PointFieldUint16  uint8 = 4
	PointFieldInt32   uint8 = 5
	PointFieldUint32  uint8 = 6
	PointFieldFloat32 uint8 = 7
	PointFieldFloat64 uint8 = 8
)

// Time is a ROS timestamp.
type Time struct {
	Secs  uint32 `json:"secs"`
	Nsecs uint32 `json:"nsecs"`
}

// Header is std_msgs/Header.
type Header struct {
	Seq     uint32 `json:"seq"`
	Stamp   Time   `json:"stamp"`
	FrameID string `json:"frame_id"`
}

// Image is sensor_msgs/Image. For compressed payloads Encoding names the container
// format ("png", "jpeg") and Height, Width and Step may be zero.
type Image struct {
	Header      Header `json:"header"`
	Height      uint32 `json:"height"`
	Width       uint32 `json:"width"`
	Encoding    string `json:"encoding"`
	IsBigendian uint8  `json:"is_bigendian"`
	Step        uint32 `json:"step"`
	Data        []byte `json:"data"`
}

// PointField is sensor_msgs/PointField.
type PointField struct {
	Name     string `json:"name"`
	Offset   uint32 `json:"offset"`
	Datatype uint8  `json:"datatype"`
	Count    uint32 `json:"count"`
}

// PointCloud2 is sensor_msgs/PointCloud2.
type PointCloud2 struct {
	Header      Header       `json:"header"`
	Height      uint32       `json:"height"`
	Width       uint32       `json:"width"`
	Fields      []PointField `json:"fields"`
	IsBigendian bool         `json:"is_bigendian"`
	PointStep   uint32       `json:"point_step"`
	RowStep     uint32       `json:"row_step"`
	Data        []byte       `json:"data"`
	IsDense     bool         `json:"is_dense"`
}

// CameraInfo carries the subset of sensor_msgs/CameraInfo the service forwards.
type CameraInfo struct {
	Header          Header      `json:"header"`
	Height          uint32      `json:"height"`
	Width           uint32      `json:"width"`
	DistortionModel string      `json:"distortion_model"`
	D               []float64   `json:"D"`
	K               [9]float64  `json:"K"`
	R               [9]float64  `json:"R"`
	P               [12]float64 `json:"P"`
}

// Vector3 is geometry_msgs/Vector3.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is geometry_msgs/Quaternion.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Transform is geometry_msgs/Transform.
type Transform struct {
	Translation Vector3    `json:"translation"`
	Rotation    Quaternion `json:"rotation"`
}

// RetrievalQuery is the sensor capture being visualized.
type RetrievalQuery struct {
	Cloud         PointCloud2 `json:"cloud"`
	Image         Image       `json:"image"`
	Depth         Image       `json:"depth"`
	Mask          Image       `json:"mask"`
	Camera        CameraInfo  `json:"camera"`
	NumberQuery   int32       `json:"number_query"`
	RoomTransform Transform   `json:"room_transform"`
}

// RetrievalResult holds the retrieved candidate clouds, in rank order.
type RetrievalResult struct {
	RetrievedClouds []PointCloud2 `json:"retrieved_clouds"`
}

// RetrievalQueryResult is published by the retrieval pipeline once a query completes.
type RetrievalQueryResult struct {
	Query  RetrievalQuery  `json:"query"`
	Result RetrievalResult `json:"result"`
}

// VisualizeQueryRequest is the request half of the visualize_query service.
type VisualizeQueryRequest struct {
	Query  RetrievalQuery  `json:"query"`
	Result RetrievalResult `json:"result"`
}

// VisualizeQueryResponse is the response half of the visualize_query service.
type VisualizeQueryResponse struct {
	Image Image `json:"image"`
}
