package rimage

import (
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/lmittmann/ppm"
	"github.com/pkg/errors"
	"github.com/xfmoulet/qoi"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/queryvis/ros"
)

// ReadImageFromFile reads any registered image format from disk.
func ReadImageFromFile(path string) (image.Image, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode %q", path)
	}
	return img, nil
}

// WriteImageToFile writes an image to disk as png, jpeg, ppm or qoi depending on the extension.
func WriteImageToFile(path string, img image.Image) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return png.Encode(f, img)
	case ".jpg", ".jpeg":
		return jpeg.Encode(f, img, nil)
	case ".ppm":
		return ppm.Encode(f, img)
	case ".qoi":
		return qoi.Encode(f, img)
	default:
		return errors.Errorf("rimage.WriteImageToFile unknown extension for %q", path)
	}
}

// compressedEncodings maps file extensions to the compressed ROS image encoding they carry.
var compressedEncodings = map[string]string{
	".png":  ros.EncodingPNG,
	".jpg":  ros.EncodingJPEG,
	".jpeg": ros.EncodingJPEG,
	".bmp":  "bmp",
	".tif":  "tiff",
	".tiff": "tiff",
	".webp": "webp",
	".ppm":  "ppm",
	".qoi":  "qoi",
}

// ReadImageMessage wraps the contents of an image file in a compressed ros.Image without
// decoding it.
func ReadImageMessage(path string) (ros.Image, error) {
	encoding, ok := compressedEncodings[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return ros.Image{}, errors.Wrapf(ErrUnsupportedEncoding, "file %q", path)
	}
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return ros.Image{}, err
	}
	return ros.Image{Encoding: encoding, Data: data}, nil
}
