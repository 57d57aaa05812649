package pointcloud

import (
	"image/color"

	"github.com/golang/geo/r3"
)

// NewVector convenience method for creating a vector.
func NewVector(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}

// Data describes data associated single point within a PointCloud.
type Data interface {
	// HasColor returns whether or not this point is colored.
	HasColor() bool

	// RGB255 returns, if colored, the RGB components of the color. There
	// is no alpha channel right now and as such the data can be assumed to be
	// premultiplied.
	RGB255() (uint8, uint8, uint8)

	// Color returns the native color of the point.
	Color() color.Color
}

type basicData struct {
	hasColor bool
	c        color.NRGBA
}

// NewBasicData returns a point that is solely positionally based.
func NewBasicData() Data {
	return &basicData{}
}

// NewColoredData returns a point that has both position and color.
func NewColoredData(c color.NRGBA) Data {
	return &basicData{c: c, hasColor: true}
}

func (bp *basicData) HasColor() bool {
	return bp.hasColor
}

func (bp *basicData) RGB255() (uint8, uint8, uint8) {
	return bp.c.R, bp.c.G, bp.c.B
}

func (bp *basicData) Color() color.Color {
	return &bp.c
}

// PointAndData is a tiny struct to facilitate returning nearest neighbors in a neat way.
type PointAndData struct {
	P r3.Vector
	D Data
}

// packedRGB converts a point's color to the 0x00RRGGBB layout used by PCL.
func packedRGB(d Data) uint32 {
	if d == nil || !d.HasColor() {
		return 0xFFFFFF
	}
	r, g, b := d.RGB255()
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

func unpackRGB(c uint32) color.NRGBA {
	return color.NRGBA{R: uint8(0xFF & (c >> 16)), G: uint8(0xFF & (c >> 8)), B: uint8(0xFF & c), A: 255}
}
