// Package spatialmath defines the rigid transforms used to orient rendered point clouds.
package spatialmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/queryvis/ros"
)

// Transform is a rigid transform: a rotation followed by a translation, in double precision.
type Transform struct {
	Translation r3.Vector
	Rotation    quat.Number
}

// NewIdentityTransform returns the transform that leaves points unchanged.
func NewIdentityTransform() Transform {
	return Transform{Rotation: quat.Number{Real: 1}}
}

// NewTransform returns a transform from a translation and a rotation quaternion.
func NewTransform(translation r3.Vector, rotation quat.Number) Transform {
	return Transform{Translation: translation, Rotation: rotation}
}

// TransformFromROS converts a geometry_msgs/Transform.
func TransformFromROS(t ros.Transform) Transform {
	return Transform{
		Translation: r3.Vector{X: t.Translation.X, Y: t.Translation.Y, Z: t.Translation.Z},
		Rotation: quat.Number{
			Real: t.Rotation.W,
			Imag: t.Rotation.X,
			Jmag: t.Rotation.Y,
			Kmag: t.Rotation.Z,
		},
	}
}

// ToROS converts the transform back to a geometry_msgs/Transform.
func (t Transform) ToROS() ros.Transform {
	return ros.Transform{
		Translation: ros.Vector3{X: t.Translation.X, Y: t.Translation.Y, Z: t.Translation.Z},
		Rotation:    ros.Quaternion{X: t.Rotation.Imag, Y: t.Rotation.Jmag, Z: t.Rotation.Kmag, W: t.Rotation.Real},
	}
}

// RotationMatrix returns the homogeneous 4x4 matrix of the rotation alone. The quaternion
// is normalized first; an all-zero quaternion is treated as no rotation.
func (t Transform) RotationMatrix() mgl64.Mat4 {
	q := t.Rotation
	norm := quat.Abs(q)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return mgl64.Ident4()
	}
	return mgl64.Quat{W: q.Real / norm, V: mgl64.Vec3{q.Imag / norm, q.Jmag / norm, q.Kmag / norm}}.Mat4()
}

// Matrix returns the full homogeneous matrix of the transform.
func (t Transform) Matrix() mgl64.Mat4 {
	return mgl64.Translate3D(t.Translation.X, t.Translation.Y, t.Translation.Z).Mul4(t.RotationMatrix())
}

// Apply transforms a point.
func (t Transform) Apply(p r3.Vector) r3.Vector {
	v := t.Matrix().Mul4x1(mgl64.Vec4{p.X, p.Y, p.Z, 1})
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

// RenderOrientation reduces a room transform to the single precision matrix used to orient
// rendered clouds: the rotation block is kept, the translation column becomes (0,0,0,1)
// and the last row is (0,0,0,1). Clouds rendered with it share a canonical origin no matter
// where in the room the query was captured.
func RenderOrientation(t Transform) mgl32.Mat4 {
	m := t.RotationMatrix()
	m.SetCol(3, mgl64.Vec4{0, 0, 0, 1})
	m.SetRow(3, mgl64.Vec4{0, 0, 0, 1})
	return Mat4ToFloat32(m)
}

// Mat4ToFloat32 casts every entry of m to float32.
func Mat4ToFloat32(m mgl64.Mat4) mgl32.Mat4 {
	var out mgl32.Mat4
	for i, v := range m {
		out[i] = float32(v)
	}
	return out
}

// RotatePoint applies the upper 3x3 block of a render orientation to a point.
func RotatePoint(m mgl32.Mat4, p r3.Vector) r3.Vector {
	v := m.Mul4x1(mgl32.Vec4{float32(p.X), float32(p.Y), float32(p.Z), 0})
	return r3.Vector{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
}
