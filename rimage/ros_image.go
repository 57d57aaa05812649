package rimage

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"

	// register compressed formats understood by decodeCompressed.
	_ "image/jpeg"
	_ "image/png"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"go.viam.com/queryvis/ros"
)

// ErrUnsupportedEncoding is returned for an image encoding that cannot be decoded.
var ErrUnsupportedEncoding = errors.New("unsupported image encoding")

// rawLayout describes an uncompressed encoding: bytes per pixel, and which byte of a
// pixel holds red, green and blue. Single channel layouts use channels of 1 or 2 bytes.
type rawLayout struct {
	bytesPerPixel int
	channels      int
	r, g, b       int
}

var rawLayouts = map[string]rawLayout{
	ros.EncodingRGB8:   {bytesPerPixel: 3, channels: 3, r: 0, g: 1, b: 2},
	ros.EncodingBGR8:   {bytesPerPixel: 3, channels: 3, r: 2, g: 1, b: 0},
	ros.Encoding8UC3:   {bytesPerPixel: 3, channels: 3, r: 2, g: 1, b: 0},
	ros.EncodingRGBA8:  {bytesPerPixel: 4, channels: 4, r: 0, g: 1, b: 2},
	ros.EncodingBGRA8:  {bytesPerPixel: 4, channels: 4, r: 2, g: 1, b: 0},
	ros.EncodingMono8:  {bytesPerPixel: 1, channels: 1},
	ros.Encoding8UC1:   {bytesPerPixel: 1, channels: 1},
	ros.EncodingMono16: {bytesPerPixel: 2, channels: 1},
	ros.Encoding16UC1:  {bytesPerPixel: 2, channels: 1},
}

func isCompressed(encoding string) bool {
	switch encoding {
	case ros.EncodingPNG, ros.EncodingJPEG, "jpg", "bmp", "tiff", "webp", "ppm", "qoi":
		return true
	default:
		return false
	}
}

// rawImage is a validated view over an uncompressed ros.Image.
type rawImage struct {
	msg    ros.Image
	layout rawLayout
	order  binary.ByteOrder
}

func newRawImage(msg ros.Image) (*rawImage, error) {
	layout, ok := rawLayouts[msg.Encoding]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedEncoding, "%q", msg.Encoding)
	}
	if msg.Width == 0 || msg.Height == 0 {
		return nil, errors.Errorf("image has zero size %dx%d", msg.Width, msg.Height)
	}
	rowBytes := uint64(msg.Width) * uint64(layout.bytesPerPixel)
	if uint64(msg.Step) < rowBytes {
		return nil, errors.Errorf("step %d is smaller than a row of %d bytes", msg.Step, rowBytes)
	}
	needed := uint64(msg.Step) * uint64(msg.Height)
	if uint64(len(msg.Data)) < needed {
		return nil, errors.Errorf("image data has %d bytes, want at least %d", len(msg.Data), needed)
	}
	var order binary.ByteOrder = binary.LittleEndian
	if msg.IsBigendian != 0 {
		order = binary.BigEndian
	}
	return &rawImage{msg: msg, layout: layout, order: order}, nil
}

func (ri *rawImage) pixel(x, y int) []byte {
	start := y*int(ri.msg.Step) + x*ri.layout.bytesPerPixel
	return ri.msg.Data[start : start+ri.layout.bytesPerPixel]
}

// gray returns the 8 bit intensity of a single channel pixel. 16 bit values keep their high byte.
func (ri *rawImage) gray(px []byte) uint8 {
	if ri.layout.bytesPerPixel == 2 {
		return uint8(ri.order.Uint16(px) >> 8)
	}
	return px[0]
}

func decodeCompressed(msg ros.Image) (image.Image, error) {
	if len(msg.Data) == 0 {
		return nil, errors.Errorf("empty %s payload", msg.Encoding)
	}
	img, format, err := image.Decode(bytes.NewReader(msg.Data))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode %s payload", msg.Encoding)
	}
	if img.Bounds().Empty() {
		return nil, errors.Errorf("decoded %s image is empty", format)
	}
	return img, nil
}

// DecodeColor decodes a ROS image into a 3-channel color image. Single channel sources
// are replicated across channels and alpha is dropped.
func DecodeColor(msg ros.Image) (*Image, error) {
	if isCompressed(msg.Encoding) {
		img, err := decodeCompressed(msg)
		if err != nil {
			return nil, err
		}
		return ConvertImage(img), nil
	}

	ri, err := newRawImage(msg)
	if err != nil {
		return nil, err
	}
	out := NewImage(int(msg.Width), int(msg.Height))
	for y := 0; y < out.height; y++ {
		for x := 0; x < out.width; x++ {
			px := ri.pixel(x, y)
			if ri.layout.channels == 1 {
				v := ri.gray(px)
				out.SetXY(x, y, Color{v, v, v})
				continue
			}
			out.SetXY(x, y, Color{px[ri.layout.r], px[ri.layout.g], px[ri.layout.b]})
		}
	}
	return out, nil
}

// DecodeMask decodes a ROS image into a single channel mask. Color sources are reduced
// to their luminance; any nonzero value is foreground.
func DecodeMask(msg ros.Image) (*image.Gray, error) {
	if isCompressed(msg.Encoding) {
		img, err := decodeCompressed(msg)
		if err != nil {
			return nil, err
		}
		bounds := img.Bounds()
		out := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		for y := 0; y < bounds.Dy(); y++ {
			for x := 0; x < bounds.Dx(); x++ {
				out.SetGray(x, y, color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray))
			}
		}
		return out, nil
	}

	ri, err := newRawImage(msg)
	if err != nil {
		return nil, err
	}
	out := image.NewGray(image.Rect(0, 0, int(msg.Width), int(msg.Height)))
	for y := 0; y < int(msg.Height); y++ {
		for x := 0; x < int(msg.Width); x++ {
			px := ri.pixel(x, y)
			if ri.layout.channels == 1 {
				out.Pix[y*out.Stride+x] = ri.gray(px)
				continue
			}
			c := Color{px[ri.layout.r], px[ri.layout.g], px[ri.layout.b]}
			out.Pix[y*out.Stride+x] = c.Luminance()
		}
	}
	return out, nil
}

// EncodeBGR8 encodes any image as a tightly packed bgr8 ROS image.
func EncodeBGR8(img image.Image) ros.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	step := width * 3
	data := make([]byte, step*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := NewColorFromColor(img.At(bounds.Min.X+x, bounds.Min.Y+y))
			k := y*step + x*3
			data[k], data[k+1], data[k+2] = c.B, c.G, c.R
		}
	}
	return ros.Image{
		Height:   uint32(height),
		Width:    uint32(width),
		Encoding: ros.EncodingBGR8,
		Step:     uint32(step),
		Data:     data,
	}
}
