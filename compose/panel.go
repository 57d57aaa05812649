// Package compose lays a query image and rendered point clouds side by side into a single
// labelled comparison image.
package compose

import (
	"context"
	"image"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"go.viam.com/queryvis/pointcloud"
	"go.viam.com/queryvis/rimage"
)

// Defaults for a PanelComposer.
const (
	DefaultPanelHeight   = 480
	DefaultCaptionHeight = 32
	DefaultFontSize      = 18
	DefaultPointRadius   = 1.5
	DefaultMargin        = 16
)

// PanelComposer draws the query image followed by one square panel per cloud. Each panel
// carries its label in a caption strip underneath.
type PanelComposer struct {
	PanelHeight   int
	CaptionHeight int
	FontSize      float64
	PointRadius   float64
	Margin        int
}

// NewPanelComposer returns a PanelComposer with the default layout.
func NewPanelComposer() *PanelComposer {
	return &PanelComposer{
		PanelHeight:   DefaultPanelHeight,
		CaptionHeight: DefaultCaptionHeight,
		FontSize:      DefaultFontSize,
		PointRadius:   DefaultPointRadius,
		Margin:        DefaultMargin,
	}
}

// Compose renders the comparison image. The clouds are rotated by orientation before being
// projected; labels must be 1:1 with clouds.
func (pc *PanelComposer) Compose(
	ctx context.Context,
	query image.Image,
	queryLabel string,
	clouds []pointcloud.PointCloud,
	labels []string,
	orientation mgl32.Mat4,
) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(labels) != len(clouds) {
		return nil, errors.Errorf("got %d labels for %d clouds", len(labels), len(clouds))
	}
	if pc.PanelHeight <= 0 {
		return nil, errors.Errorf("panel height must be positive, got %d", pc.PanelHeight)
	}
	qb := query.Bounds()
	if qb.Empty() {
		return nil, errors.New("query image is empty")
	}

	queryWidth := int(float64(qb.Dx())*float64(pc.PanelHeight)/float64(qb.Dy()) + 0.5)
	if queryWidth < 1 {
		queryWidth = 1
	}
	scaled := imaging.Resize(query, queryWidth, pc.PanelHeight, imaging.Lanczos)

	width := queryWidth + len(clouds)*pc.PanelHeight
	height := pc.PanelHeight + pc.CaptionHeight
	dc := gg.NewContext(width, height)
	dc.SetColor(rimage.White)
	dc.Clear()

	dc.DrawImage(scaled, 0, 0)
	pc.drawCaption(dc, queryLabel, 0, queryWidth)

	for i, cloud := range clouds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		left := queryWidth + i*pc.PanelHeight
		pc.drawCloud(dc, cloud, orientation, image.Rect(left, 0, left+pc.PanelHeight, pc.PanelHeight))
		pc.drawCaption(dc, labels[i], left, pc.PanelHeight)
		rimage.DrawRectangleEmpty(dc, image.Rect(left, 0, left+pc.PanelHeight, height), rimage.Black, 1)
	}
	return dc.Image(), nil
}

func (pc *PanelComposer) drawCaption(dc *gg.Context, label string, left, width int) {
	if pc.CaptionHeight <= 0 || label == "" {
		return
	}
	center := image.Pt(left+width/2, pc.PanelHeight+pc.CaptionHeight/2)
	rimage.DrawStringCentered(dc, label, center, rimage.Black, pc.FontSize)
}
