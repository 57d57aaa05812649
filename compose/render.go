package compose

import (
	"image"
	"math"
	"sort"

	"github.com/fogleman/gg"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/golang/geo/r3"
	"github.com/lucasb-eyer/go-colorful"

	"go.viam.com/queryvis/pointcloud"
	"go.viam.com/queryvis/rimage"
	"go.viam.com/queryvis/spatialmath"
)

// uncolored points are drawn in this color.
var defaultPointColor = rimage.NewColor(70, 110, 180)

// farthest points are blended this much toward black.
const maxDepthShade = 0.6

type projectedPoint struct {
	p r3.Vector
	c rimage.Color
}

// orientCloud rotates every point of the cloud.
func orientCloud(cloud pointcloud.PointCloud, orientation mgl32.Mat4) []projectedPoint {
	out := make([]projectedPoint, 0, cloud.Size())
	cloud.Iterate(func(p r3.Vector, d pointcloud.Data) bool {
		c := defaultPointColor
		if d != nil && d.HasColor() {
			c = rimage.NewColor(d.RGB255())
		}
		out = append(out, projectedPoint{p: spatialmath.RotatePoint(orientation, p), c: c})
		return true
	})
	return out
}

type extent struct {
	min, max r3.Vector
}

func boundsOf(points []projectedPoint) extent {
	e := extent{
		min: r3.Vector{X: math.MaxFloat64, Y: math.MaxFloat64, Z: math.MaxFloat64},
		max: r3.Vector{X: -math.MaxFloat64, Y: -math.MaxFloat64, Z: -math.MaxFloat64},
	}
	for _, pp := range points {
		e.min = r3.Vector{X: math.Min(e.min.X, pp.p.X), Y: math.Min(e.min.Y, pp.p.Y), Z: math.Min(e.min.Z, pp.p.Z)}
		e.max = r3.Vector{X: math.Max(e.max.X, pp.p.X), Y: math.Max(e.max.Y, pp.p.Y), Z: math.Max(e.max.Z, pp.p.Z)}
	}
	return e
}

// shade darkens c with distance; depth is 0 for the nearest point and 1 for the farthest.
func shade(c rimage.Color, depth float64) rimage.Color {
	if depth <= 0 {
		return c
	}
	return rimage.NewColorFromColorful(c.Colorful().BlendLab(colorful.Color{}, depth*maxDepthShade))
}

// drawCloud projects the cloud onto the XY plane of the panel, largest Z nearest to the viewer.
func (pc *PanelComposer) drawCloud(dc *gg.Context, cloud pointcloud.PointCloud, orientation mgl32.Mat4, panel image.Rectangle) {
	if cloud == nil || cloud.Size() == 0 {
		return
	}
	points := orientCloud(cloud, orientation)
	e := boundsOf(points)

	span := math.Max(e.max.X-e.min.X, e.max.Y-e.min.Y)
	usable := float64(panel.Dx() - 2*pc.Margin)
	if usable <= 0 {
		usable = float64(panel.Dx())
	}
	scale := 1.
	if span > 0 {
		scale = usable / span
	}
	cx := float64(panel.Min.X) + float64(panel.Dx())/2
	cy := float64(panel.Min.Y) + float64(panel.Dy())/2
	midX := (e.min.X + e.max.X) / 2
	midY := (e.min.Y + e.max.Y) / 2
	depthSpan := e.max.Z - e.min.Z

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].p.Z < points[j].p.Z
	})

	dc.Push()
	defer dc.Pop()
	dc.DrawRectangle(float64(panel.Min.X), float64(panel.Min.Y), float64(panel.Dx()), float64(panel.Dy()))
	dc.Clip()
	for _, pp := range points {
		depth := 0.
		if depthSpan > 0 {
			depth = (e.max.Z - pp.p.Z) / depthSpan
		}
		x := cx + (pp.p.X-midX)*scale
		y := cy - (pp.p.Y-midY)*scale
		dc.SetColor(shade(pp.c, depth))
		dc.DrawPoint(x, y, pc.PointRadius)
		dc.Fill()
	}
	dc.ResetClip()
}
