package rimage

import (
	"image"

	"github.com/pkg/errors"
)

// ErrDimensionMismatch is returned when a mask does not cover the image it is applied to.
var ErrDimensionMismatch = errors.New("mask and image dimensions differ")

// ApplyMask returns a copy of img where every pixel with a zero mask value is replaced by fill.
// Applying the same mask again yields the same image.
func ApplyMask(img *Image, mask *image.Gray, fill Color) (*Image, error) {
	mb := mask.Bounds()
	if mb.Dx() != img.Width() || mb.Dy() != img.Height() {
		return nil, errors.Wrapf(ErrDimensionMismatch, "image is %dx%d, mask is %dx%d",
			img.Width(), img.Height(), mb.Dx(), mb.Dy())
	}
	out := img.Clone()
	for y := 0; y < out.height; y++ {
		row := mask.Pix[y*mask.Stride : y*mask.Stride+mb.Dx()]
		for x, v := range row {
			if v == 0 {
				out.SetXY(x, y, fill)
			}
		}
	}
	return out, nil
}
