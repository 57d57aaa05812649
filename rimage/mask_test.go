package rimage

import (
	"errors"
	"image"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func checkerboard(w, h int) *Image {
	img := NewImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetXY(x, y, NewColor(uint8(x*10), uint8(y*10), 77))
		}
	}
	return img
}

func TestApplyMask(t *testing.T) {
	img := checkerboard(4, 3)
	mask := image.NewGray(image.Rect(0, 0, 4, 3))
	mask.Pix[mask.PixOffset(1, 1)] = 1
	mask.Pix[mask.PixOffset(3, 2)] = 255

	out, err := ApplyMask(img, mask, White)
	test.That(t, err, test.ShouldBeNil)
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			if mask.GrayAt(x, y).Y != 0 {
				test.That(t, out.GetXY(x, y), test.ShouldResemble, img.GetXY(x, y))
			} else {
				test.That(t, out.GetXY(x, y), test.ShouldResemble, White)
			}
		}
	}
	// source untouched
	test.That(t, img.GetXY(0, 0), test.ShouldResemble, NewColor(0, 0, 77))

	again, err := ApplyMask(out, mask, White)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again, test.ShouldResemble, out)
}

func TestApplyMaskMismatch(t *testing.T) {
	img := checkerboard(4, 3)
	_, err := ApplyMask(img, image.NewGray(image.Rect(0, 0, 3, 4)), White)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, ErrDimensionMismatch), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "image is 4x3, mask is 3x4")
}

func TestImageFileRoundTrip(t *testing.T) {
	img := checkerboard(5, 2)
	fn := filepath.Join(t.TempDir(), "board.png")
	test.That(t, WriteImageToFile(fn, img), test.ShouldBeNil)

	back, err := ReadImageFromFile(fn)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ConvertImage(back), test.ShouldResemble, img)

	for _, ext := range []string{".ppm", ".qoi"} {
		fn := filepath.Join(t.TempDir(), "board"+ext)
		test.That(t, WriteImageToFile(fn, img), test.ShouldBeNil)
		back, err := ReadImageFromFile(fn)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, ConvertImage(back), test.ShouldResemble, img)

		msg, err := ReadImageMessage(fn)
		test.That(t, err, test.ShouldBeNil)
		decoded, err := DecodeColor(msg)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, decoded, test.ShouldResemble, img)
	}

	test.That(t, WriteImageToFile(filepath.Join(t.TempDir(), "board.gif"), img), test.ShouldNotBeNil)
	_, err = ReadImageFromFile(filepath.Join(t.TempDir(), "missing.png"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReadImageMessage(t *testing.T) {
	img := checkerboard(3, 2)
	fn := filepath.Join(t.TempDir(), "board.png")
	test.That(t, WriteImageToFile(fn, img), test.ShouldBeNil)

	msg, err := ReadImageMessage(fn)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, msg.Encoding, test.ShouldEqual, "png")

	decoded, err := DecodeColor(msg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, decoded, test.ShouldResemble, img)

	_, err = ReadImageMessage(filepath.Join(t.TempDir(), "board.gif"))
	test.That(t, errors.Is(err, ErrUnsupportedEncoding), test.ShouldBeTrue)
	_, err = ReadImageMessage(filepath.Join(t.TempDir(), "missing.jpg"))
	test.That(t, err, test.ShouldNotBeNil)
}
