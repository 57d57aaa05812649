// Package pointcloud defines a colored point cloud and the codecs used to move one
// between ROS messages, PCD files and memory.
package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/queryvis/spatialmath"
)

// MetaData is data about what's stored in the point cloud.
type MetaData struct {
	HasColor bool

	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64

	totalX, totalY, totalZ float64
}

// NewMetaData returns meta data for an empty cloud.
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64,
		MinY: math.MaxFloat64,
		MinZ: math.MaxFloat64,
		MaxX: -math.MaxFloat64,
		MaxY: -math.MaxFloat64,
		MaxZ: -math.MaxFloat64,
	}
}

// PointCloud is a general purpose container of points. Points are keyed by position;
// setting an existing position replaces its data.
type PointCloud interface {
	// Size returns the number of points in the cloud.
	Size() int

	// MetaData returns the bounds and color flag of the points set so far.
	MetaData() MetaData

	// Set places the given point in the cloud.
	Set(p r3.Vector, d Data) error

	// At returns the point in the cloud at the given position.
	// The 2nd return is if the point exists, the first is data if any.
	At(x, y, z float64) (Data, bool)

	// Iterate calls fn for every point in insertion order until fn returns false.
	Iterate(fn func(p r3.Vector, d Data) bool)
}

// Merge updates the bounds with a newly added point.
func (meta *MetaData) Merge(v r3.Vector, data Data) {
	if data != nil && data.HasColor() {
		meta.HasColor = true
	}

	if v.X > meta.MaxX {
		meta.MaxX = v.X
	}
	if v.Y > meta.MaxY {
		meta.MaxY = v.Y
	}
	if v.Z > meta.MaxZ {
		meta.MaxZ = v.Z
	}

	if v.X < meta.MinX {
		meta.MinX = v.X
	}
	if v.Y < meta.MinY {
		meta.MinY = v.Y
	}
	if v.Z < meta.MinZ {
		meta.MinZ = v.Z
	}

	meta.totalX += v.X
	meta.totalY += v.Y
	meta.totalZ += v.Z
}

// CloudCentroid returns the centroid of a pointcloud as a vector.
func CloudCentroid(pc PointCloud) r3.Vector {
	if pc.Size() == 0 {
		return r3.Vector{}
	}
	meta := pc.MetaData()
	n := float64(pc.Size())
	return r3.Vector{X: meta.totalX / n, Y: meta.totalY / n, Z: meta.totalZ / n}
}

// ApplyTransform returns a new cloud holding every point of pc moved by t. Points that land
// on the same position collapse into one.
func ApplyTransform(pc PointCloud, t spatialmath.Transform) (PointCloud, error) {
	out := NewWithPrealloc(pc.Size())
	var err error
	pc.Iterate(func(p r3.Vector, d Data) bool {
		err = out.Set(t.Apply(p), d)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
