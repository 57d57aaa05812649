package rimage

import (
	"fmt"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// Color is an opaque 8 bit per channel RGB color.
type Color struct {
	R, G, B uint8
}

// Some basic colors.
var (
	White = NewColor(255, 255, 255)
	Black = NewColor(0, 0, 0)
	Red   = NewColor(255, 0, 0)
	Green = NewColor(0, 255, 0)
	Blue  = NewColor(0, 0, 255)
)

// NewColor returns a color from its RGB components.
func NewColor(r, g, b uint8) Color {
	return Color{R: r, G: g, B: b}
}

// NewColorFromColor converts any color to a Color, dropping alpha after premultiplication.
func NewColorFromColor(c color.Color) Color {
	switch cc := c.(type) {
	case Color:
		return cc
	case *Color:
		return *cc
	case color.Gray:
		return Color{cc.Y, cc.Y, cc.Y}
	}
	r, g, b, _ := c.RGBA()
	return Color{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
}

// RGBA implements color.Color.
func (c Color) RGBA() (r, g, b, a uint32) {
	r = uint32(c.R)
	r |= r << 8
	g = uint32(c.G)
	g |= g << 8
	b = uint32(c.B)
	b |= b << 8
	a = 0xffff
	return
}

// Hex returns the #rrggbb form of the color.
func (c Color) Hex() string {
	return fmt.Sprintf("#%.2x%.2x%.2x", c.R, c.G, c.B)
}

func (c Color) String() string {
	return c.Hex()
}

// Colorful returns the color in go-colorful's representation.
func (c Color) Colorful() colorful.Color {
	cc, _ := colorful.MakeColor(c)
	return cc
}

// NewColorFromColorful converts back from go-colorful, clamping out of gamut values.
func NewColorFromColorful(c colorful.Color) Color {
	r, g, b := c.Clamped().RGB255()
	return Color{r, g, b}
}

// Luminance returns the Rec. 601 luma of the color, the same weights image/color uses for gray.
func (c Color) Luminance() uint8 {
	return color.GrayModel.Convert(c).(color.Gray).Y
}

// TheColorModel converts to Color.
var TheColorModel = color.ModelFunc(func(c color.Color) color.Color {
	return NewColorFromColor(c)
})
