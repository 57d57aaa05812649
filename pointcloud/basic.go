package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// maxPrealloc bounds the capacity reserved up front. Sizes come from message and file
// headers, which are not trusted.
const maxPrealloc = 1 << 20

// basicPointCloud keeps points in insertion order with an index by position.
type basicPointCloud struct {
	points []PointAndData
	index  map[r3.Vector]int
	meta   MetaData
}

// New returns an empty PointCloud.
func New() PointCloud {
	return NewWithPrealloc(0)
}

// NewWithPrealloc returns an empty PointCloud with room for size points.
func NewWithPrealloc(size int) PointCloud {
	size = min(max(size, 0), maxPrealloc)
	return &basicPointCloud{
		points: make([]PointAndData, 0, size),
		index:  make(map[r3.Vector]int, size),
		meta:   NewMetaData(),
	}
}

func (cloud *basicPointCloud) Size() int {
	return len(cloud.points)
}

func (cloud *basicPointCloud) MetaData() MetaData {
	return cloud.meta
}

func (cloud *basicPointCloud) At(x, y, z float64) (Data, bool) {
	i, ok := cloud.index[r3.Vector{X: x, Y: y, Z: z}]
	if !ok {
		return nil, false
	}
	return cloud.points[i].D, true
}

// Set rejects non-finite positions, which can neither be looked up nor rendered. Setting an
// existing position replaces its data and leaves the bounds alone.
func (cloud *basicPointCloud) Set(p r3.Vector, d Data) error {
	if !isFinite(p.X) || !isFinite(p.Y) || !isFinite(p.Z) {
		return errors.Errorf("point %v is not finite", p)
	}
	if i, ok := cloud.index[p]; ok {
		cloud.points[i].D = d
		if d != nil && d.HasColor() {
			cloud.meta.HasColor = true
		}
		return nil
	}
	cloud.index[p] = len(cloud.points)
	cloud.points = append(cloud.points, PointAndData{P: p, D: d})
	cloud.meta.Merge(p, d)
	return nil
}

func (cloud *basicPointCloud) Iterate(fn func(p r3.Vector, d Data) bool) {
	for _, pd := range cloud.points {
		if !fn(pd.P, pd.D) {
			return
		}
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
