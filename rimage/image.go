// Package rimage holds the raster types used by the visualizer along with decoders for
// ROS image messages, masking and drawing helpers.
package rimage

import (
	"image"
	"image/color"
)

// Image is a packed 3-channel RGB raster anchored at the origin.
type Image struct {
	data          []Color
	width, height int
}

// NewImage returns a black image of the given size.
func NewImage(width, height int) *Image {
	return &Image{
		data:   make([]Color, width*height),
		width:  width,
		height: height,
	}
}

// NewImageFromBounds returns a black image the size of bounds.
func NewImageFromBounds(bounds image.Rectangle) *Image {
	return NewImage(bounds.Dx(), bounds.Dy())
}

// ConvertImage copies any image into an Image, moving its origin to (0,0).
func ConvertImage(img image.Image) *Image {
	if ii, ok := img.(*Image); ok {
		return ii.Clone()
	}
	bounds := img.Bounds()
	out := NewImageFromBounds(bounds)
	for y := 0; y < out.height; y++ {
		for x := 0; x < out.width; x++ {
			out.data[out.kxy(x, y)] = NewColorFromColor(img.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
	return out
}

// Clone returns a deep copy of the image.
func (i *Image) Clone() *Image {
	data := make([]Color, len(i.data))
	copy(data, i.data)
	return &Image{data: data, width: i.width, height: i.height}
}

// ColorModel implements image.Image.
func (i *Image) ColorModel() color.Model {
	return TheColorModel
}

// Bounds implements image.Image.
func (i *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, i.width, i.height)
}

// Width returns the width of the image.
func (i *Image) Width() int {
	return i.width
}

// Height returns the height of the image.
func (i *Image) Height() int {
	return i.height
}

// In reports whether (x, y) is inside the image.
func (i *Image) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < i.width && y < i.height
}

func (i *Image) kxy(x, y int) int {
	return (y * i.width) + x
}

// At implements image.Image. Points outside the image are black.
func (i *Image) At(x, y int) color.Color {
	if !i.In(x, y) {
		return Black
	}
	return i.data[i.kxy(x, y)]
}

// GetXY returns the color at (x, y).
func (i *Image) GetXY(x, y int) Color {
	return i.data[i.kxy(x, y)]
}

// SetXY sets the color at (x, y).
func (i *Image) SetXY(x, y int, c Color) {
	i.data[i.kxy(x, y)] = c
}

// Set implements draw.Image.
func (i *Image) Set(x, y int, c color.Color) {
	if !i.In(x, y) {
		return
	}
	i.data[i.kxy(x, y)] = NewColorFromColor(c)
}

// Fill paints every pixel with c.
func (i *Image) Fill(c Color) {
	for k := range i.data {
		i.data[k] = c
	}
}
