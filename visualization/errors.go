package visualization

import (
	"fmt"
	"image"

	"github.com/pkg/errors"

	"go.viam.com/queryvis/rimage"
)

// Sources named by a DecodeError.
const (
	SourceImage = "image"
	SourceMask  = "mask"
	SourceCloud = "cloud"
)

// DecodeError reports an encoded image or cloud that could not be decoded. Index is the
// position of the cloud in the retrieval result and -1 for images.
type DecodeError struct {
	Source string
	Index  int
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Source == SourceCloud {
		return fmt.Sprintf("cannot decode retrieved cloud %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("cannot decode query %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DimensionMismatchError reports a mask whose size differs from the color image.
type DimensionMismatchError struct {
	Color image.Point
	Mask  image.Point
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("color image is %dx%d but mask is %dx%d", e.Color.X, e.Color.Y, e.Mask.X, e.Mask.Y)
}

func (e *DimensionMismatchError) Unwrap() error {
	return rimage.ErrDimensionMismatch
}

var errNilComposite = errors.New("composer returned no image")

// CompositionError wraps any failure of the Composer.
type CompositionError struct {
	Err error
}

func (e *CompositionError) Error() string {
	return "composition failed: " + e.Err.Error()
}

func (e *CompositionError) Unwrap() error {
	return e.Err
}

// Error kinds as reported by ErrorKind.
const (
	KindDecode            = "decode"
	KindDimensionMismatch = "dimension_mismatch"
	KindComposition       = "composition"
	KindOther             = "other"
)

// ErrorKind classifies a pipeline error for logs and metrics.
func ErrorKind(err error) string {
	var decodeErr *DecodeError
	var mismatchErr *DimensionMismatchError
	var compositionErr *CompositionError
	switch {
	case errors.As(err, &decodeErr):
		return KindDecode
	case errors.As(err, &mismatchErr):
		return KindDimensionMismatch
	case errors.As(err, &compositionErr):
		return KindComposition
	default:
		return KindOther
	}
}
