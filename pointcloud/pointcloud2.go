package pointcloud

import (
	"encoding/binary"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/queryvis/ros"
)

// pointField locates one named field inside a PointCloud2 point.
type pointField struct {
	offset   uint32
	datatype uint8
}

func datatypeSize(datatype uint8) uint32 {
	switch datatype {
	case ros.PointFieldInt8, ros.PointFieldUint8:
		return 1
	case ros.PointFieldInt16, ros.PointFieldUint16:
		return 2
	case ros.PointFieldInt32, ros.PointFieldUint32, ros.PointFieldFloat32:
		return 4
	case ros.PointFieldFloat64:
		return 8
	default:
		return 0
	}
}

func lookupField(msg ros.PointCloud2, name string) (pointField, bool, error) {
	for _, f := range msg.Fields {
		if f.Name != name {
			continue
		}
		size := datatypeSize(f.Datatype)
		if size == 0 {
			return pointField{}, false, errors.Errorf("field %q has unknown datatype %d", name, f.Datatype)
		}
		if uint64(f.Offset)+uint64(size) > uint64(msg.PointStep) {
			return pointField{}, false, errors.Errorf("field %q at offset %d overruns point_step %d", name, f.Offset, msg.PointStep)
		}
		return pointField{offset: f.Offset, datatype: f.Datatype}, true, nil
	}
	return pointField{}, false, nil
}

func readCoordinate(order binary.ByteOrder, point []byte, f pointField) (float64, error) {
	b := point[f.offset:]
	switch f.datatype {
	case ros.PointFieldFloat32:
		return float64(math.Float32frombits(order.Uint32(b))), nil
	case ros.PointFieldFloat64:
		return math.Float64frombits(order.Uint64(b)), nil
	default:
		return 0, errors.Errorf("coordinate datatype %d is not a float", f.datatype)
	}
}

// readPackedColor reads a PCL style packed color. FLOAT32 fields carry the 0x00RRGGBB
// bits reinterpreted as a float, integer fields carry them directly.
func readPackedColor(order binary.ByteOrder, point []byte, f pointField) (uint32, error) {
	b := point[f.offset:]
	switch f.datatype {
	case ros.PointFieldFloat32, ros.PointFieldUint32, ros.PointFieldInt32:
		return order.Uint32(b), nil
	default:
		return 0, errors.Errorf("color datatype %d is not 32 bits wide", f.datatype)
	}
}

// FromPointCloud2 decodes a sensor_msgs/PointCloud2 into a PointCloud. The message must carry
// float x, y and z fields; an rgb or rgba field is optional. Points with a non-finite
// coordinate are dropped.
func FromPointCloud2(msg ros.PointCloud2) (PointCloud, error) {
	var order binary.ByteOrder = binary.LittleEndian
	if msg.IsBigendian {
		order = binary.BigEndian
	}

	var axes [3]pointField
	for i, name := range []string{"x", "y", "z"} {
		f, ok, err := lookupField(msg, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.Errorf("point cloud has no %q field", name)
		}
		if f.datatype != ros.PointFieldFloat32 && f.datatype != ros.PointFieldFloat64 {
			return nil, errors.Errorf("field %q has datatype %d, want FLOAT32 or FLOAT64", name, f.datatype)
		}
		axes[i] = f
	}

	colorField, hasColor, err := lookupField(msg, "rgb")
	if err != nil {
		return nil, err
	}
	if !hasColor {
		if colorField, hasColor, err = lookupField(msg, "rgba"); err != nil {
			return nil, err
		}
	}

	if msg.Width > 0 && uint64(msg.RowStep) < uint64(msg.PointStep)*uint64(msg.Width) {
		return nil, errors.Errorf("row_step %d is smaller than point_step %d * width %d", msg.RowStep, msg.PointStep, msg.Width)
	}
	needed := uint64(msg.RowStep) * uint64(msg.Height)
	if uint64(len(msg.Data)) < needed {
		return nil, errors.Errorf("point cloud data has %d bytes, want at least %d", len(msg.Data), needed)
	}

	pc := NewWithPrealloc(int(uint64(msg.Width) * uint64(msg.Height)))
	for row := uint32(0); row < msg.Height; row++ {
		rowStart := row * msg.RowStep
		for col := uint32(0); col < msg.Width; col++ {
			start := rowStart + col*msg.PointStep
			point := msg.Data[start : start+msg.PointStep]

			var xyz [3]float64
			for i, f := range axes {
				if xyz[i], err = readCoordinate(order, point, f); err != nil {
					return nil, err
				}
			}
			p := r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}
			if !isFinite(p.X) || !isFinite(p.Y) || !isFinite(p.Z) {
				continue
			}

			var d Data
			if hasColor {
				c, err := readPackedColor(order, point, colorField)
				if err != nil {
					return nil, err
				}
				d = NewColoredData(unpackRGB(c))
			} else {
				d = NewBasicData()
			}
			if err := pc.Set(p, d); err != nil {
				return nil, err
			}
		}
	}
	return pc, nil
}

// ToPointCloud2 encodes a PointCloud as an unordered little endian PointCloud2 with FLOAT32
// x, y and z fields and, when the cloud is colored, a FLOAT32 packed rgb field.
func ToPointCloud2(pc PointCloud) ros.PointCloud2 {
	hasColor := pc.MetaData().HasColor
	fields := []ros.PointField{
		{Name: "x", Offset: 0, Datatype: ros.PointFieldFloat32, Count: 1},
		{Name: "y", Offset: 4, Datatype: ros.PointFieldFloat32, Count: 1},
		{Name: "z", Offset: 8, Datatype: ros.PointFieldFloat32, Count: 1},
	}
	pointStep := uint32(12)
	if hasColor {
		fields = append(fields, ros.PointField{Name: "rgb", Offset: 12, Datatype: ros.PointFieldFloat32, Count: 1})
		pointStep = 16
	}

	data := make([]byte, 0, pc.Size()*int(pointStep))
	buf := make([]byte, pointStep)
	pc.Iterate(func(p r3.Vector, d Data) bool {
		binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(float32(p.X)))
		binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(p.Y)))
		binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(p.Z)))
		if hasColor {
			binary.LittleEndian.PutUint32(buf[12:], packedRGB(d))
		}
		data = append(data, buf...)
		return true
	})

	return ros.PointCloud2{
		Height:    1,
		Width:     uint32(pc.Size()),
		Fields:    fields,
		PointStep: pointStep,
		RowStep:   pointStep * uint32(pc.Size()),
		Data:      data,
		IsDense:   true,
	}
}
