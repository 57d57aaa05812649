// Package visualization turns a retrieval query and its retrieved clouds into one
// composite comparison image.
package visualization

import (
	"context"
	"image"
	"strconv"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"go.viam.com/queryvis/logging"
	"go.viam.com/queryvis/pointcloud"
	"go.viam.com/queryvis/rimage"
	"go.viam.com/queryvis/ros"
	"go.viam.com/queryvis/spatialmath"
)

// QueryLabel captions the query panel.
const QueryLabel = "Query Image"

// BackgroundFill replaces every pixel outside the query mask.
var BackgroundFill = rimage.White

// Composer lays out the query image next to the retrieved clouds. Implementations must be
// synchronous and deterministic for identical inputs.
type Composer interface {
	Compose(
		ctx context.Context,
		query image.Image,
		queryLabel string,
		clouds []pointcloud.PointCloud,
		labels []string,
		orientation mgl32.Mat4,
	) (image.Image, error)
}

// ComposerFunc adapts a function to a Composer.
type ComposerFunc func(
	ctx context.Context,
	query image.Image,
	queryLabel string,
	clouds []pointcloud.PointCloud,
	labels []string,
	orientation mgl32.Mat4,
) (image.Image, error)

// Compose calls f.
func (f ComposerFunc) Compose(
	ctx context.Context,
	query image.Image,
	queryLabel string,
	clouds []pointcloud.PointCloud,
	labels []string,
	orientation mgl32.Mat4,
) (image.Image, error) {
	return f(ctx, query, queryLabel, clouds, labels, orientation)
}

// Labels returns the caption of every retrieved cloud, "result0" through "result{n-1}".
func Labels(n int) []string {
	if n <= 0 {
		return []string{}
	}
	return lo.Times(n, func(i int) string {
		return "result" + strconv.Itoa(i)
	})
}

// DecodeQuery decodes the color image and mask of a query.
func DecodeQuery(query ros.RetrievalQuery) (*rimage.Image, *image.Gray, error) {
	color, err := rimage.DecodeColor(query.Image)
	if err != nil {
		return nil, nil, &DecodeError{Source: SourceImage, Index: -1, Err: err}
	}
	mask, err := rimage.DecodeMask(query.Mask)
	if err != nil {
		return nil, nil, &DecodeError{Source: SourceMask, Index: -1, Err: err}
	}
	return color, mask, nil
}

// MaskBackground whites out every pixel outside the mask.
func MaskBackground(color *rimage.Image, mask *image.Gray) (*rimage.Image, error) {
	if cb, mb := color.Bounds().Size(), mask.Bounds().Size(); cb != mb {
		return nil, &DimensionMismatchError{Color: cb, Mask: mb}
	}
	return rimage.ApplyMask(color, mask, BackgroundFill)
}

// DecodeClouds decodes every retrieved cloud in order and labels it. The first cloud that
// fails to decode aborts the whole batch.
func DecodeClouds(clouds []ros.PointCloud2) ([]pointcloud.PointCloud, []string, error) {
	out := make([]pointcloud.PointCloud, 0, len(clouds))
	for i, msg := range clouds {
		pc, err := pointcloud.FromPointCloud2(msg)
		if err != nil {
			return nil, nil, &DecodeError{Source: SourceCloud, Index: i, Err: err}
		}
		out = append(out, pc)
	}
	return out, Labels(len(out)), nil
}

// Compositor runs the query to image pipeline. It holds no per-request state and is safe
// for concurrent use.
type Compositor struct {
	composer Composer
	logger   logging.Logger
	tracer   trace.Tracer
}

// NewCompositor returns a Compositor that renders with composer.
func NewCompositor(composer Composer, logger logging.Logger) *Compositor {
	return &Compositor{
		composer: composer,
		logger:   logger,
		tracer:   otel.Tracer("go.viam.com/queryvis/visualization"),
	}
}

// Visualize decodes, masks and composes one query with its retrieved clouds and returns the
// composite as a bgr8 image. Any error aborts the run.
func (c *Compositor) Visualize(ctx context.Context, query ros.RetrievalQuery, result ros.RetrievalResult) (ros.Image, error) {
	runID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "visualization.Visualize", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("clouds", len(result.RetrievedClouds)),
	))
	defer span.End()

	start := time.Now()
	c.logger.Debugw("visualization started", "run", runID, "clouds", len(result.RetrievedClouds))

	img, err := c.run(ctx, query, result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debugw("visualization failed", "run", runID, "kind", ErrorKind(err), "error", err)
		return ros.Image{}, err
	}
	img.Header = query.Image.Header
	c.logger.Debugw("visualization finished", "run", runID,
		"width", img.Width, "height", img.Height, "took", time.Since(start))
	return img, nil
}

func (c *Compositor) run(ctx context.Context, query ros.RetrievalQuery, result ros.RetrievalResult) (ros.Image, error) {
	color, mask, err := DecodeQuery(query)
	if err != nil {
		return ros.Image{}, err
	}
	masked, err := MaskBackground(color, mask)
	if err != nil {
		return ros.Image{}, err
	}
	orientation := spatialmath.RenderOrientation(spatialmath.TransformFromROS(query.RoomTransform))

	clouds, labels, err := DecodeClouds(result.RetrievedClouds)
	if err != nil {
		return ros.Image{}, err
	}

	composite, err := c.compose(ctx, masked, clouds, labels, orientation)
	if err != nil {
		return ros.Image{}, err
	}
	return rimage.EncodeBGR8(composite), nil
}

// compose runs the composer. Errors, a missing image and panics all come back as a
// CompositionError.
func (c *Compositor) compose(
	ctx context.Context,
	query image.Image,
	clouds []pointcloud.PointCloud,
	labels []string,
	orientation mgl32.Mat4,
) (composite image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			composite = nil
			err = &CompositionError{Err: errors.Errorf("composer panicked: %v", r)}
		}
	}()
	composite, err = c.composer.Compose(ctx, query, QueryLabel, clouds, labels, orientation)
	if err != nil {
		return nil, &CompositionError{Err: err}
	}
	if composite == nil {
		return nil, &CompositionError{Err: errNilComposite}
	}
	return composite, nil
}
