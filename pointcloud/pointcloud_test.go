package pointcloud

import (
	"image/color"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestPointCloudBasic(t *testing.T) {
	pc := New()

	p0 := NewVector(0, 0, 0)
	d0 := NewColoredData(color.NRGBA{R: 5, A: 255})

	test.That(t, pc.Set(p0, d0), test.ShouldBeNil)
	d, got := pc.At(0, 0, 0)
	test.That(t, got, test.ShouldBeTrue)
	test.That(t, d, test.ShouldResemble, d0)

	_, got = pc.At(1, 0, 1)
	test.That(t, got, test.ShouldBeFalse)

	p1 := NewVector(1, 0, 1)
	d1 := NewColoredData(color.NRGBA{G: 17, A: 255})
	test.That(t, pc.Set(p1, d1), test.ShouldBeNil)

	d, got = pc.At(1, 0, 1)
	test.That(t, got, test.ShouldBeTrue)
	test.That(t, d, test.ShouldResemble, d1)
	test.That(t, d, test.ShouldNotResemble, d0)

	p2 := NewVector(-1, -2, 1)
	d2 := NewBasicData()
	test.That(t, pc.Set(p2, d2), test.ShouldBeNil)
	d, got = pc.At(-1, -2, 1)
	test.That(t, got, test.ShouldBeTrue)
	test.That(t, d.HasColor(), test.ShouldBeFalse)

	count := 0
	pc.Iterate(func(p r3.Vector, d Data) bool {
		switch p.X {
		case 0:
			test.That(t, p, test.ShouldResemble, p0)
		case 1:
			test.That(t, p, test.ShouldResemble, p1)
		case -1:
			test.That(t, p, test.ShouldResemble, p2)
		}
		count++
		return true
	})
	test.That(t, count, test.ShouldEqual, 3)

	// same position replaces data without growing the cloud
	test.That(t, pc.Set(p1, d0), test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 3)
	d, _ = pc.At(1, 0, 1)
	test.That(t, d, test.ShouldResemble, d0)

	meta := pc.MetaData()
	test.That(t, meta.HasColor, test.ShouldBeTrue)
	test.That(t, meta.MinX, test.ShouldEqual, -1.)
	test.That(t, meta.MaxX, test.ShouldEqual, 1.)
	test.That(t, meta.MinY, test.ShouldEqual, -2.)
	test.That(t, meta.MaxY, test.ShouldEqual, 0.)
	test.That(t, meta.MinZ, test.ShouldEqual, 0.)
	test.That(t, meta.MaxZ, test.ShouldEqual, 1.)

	centroid := CloudCentroid(pc)
	test.That(t, centroid.X, test.ShouldAlmostEqual, 0)
	test.That(t, centroid.Y, test.ShouldAlmostEqual, -2./3)
	test.That(t, centroid.Z, test.ShouldAlmostEqual, 2./3)
}

func TestPointCloudRejectsNonFinite(t *testing.T) {
	pc := New()
	test.That(t, pc.Set(NewVector(math.NaN(), 0, 0), nil), test.ShouldNotBeNil)
	test.That(t, pc.Set(NewVector(0, math.Inf(1), 0), nil), test.ShouldNotBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 0)
	test.That(t, CloudCentroid(pc), test.ShouldResemble, r3.Vector{})
}

func TestPointCloudIterate(t *testing.T) {
	pc := NewWithPrealloc(10)
	for i := 0; i < 10; i++ {
		test.That(t, pc.Set(NewVector(float64(i), 0, 0), NewBasicData()), test.ShouldBeNil)
	}

	var order []float64
	pc.Iterate(func(p r3.Vector, d Data) bool {
		order = append(order, p.X)
		return true
	})
	test.That(t, order, test.ShouldResemble, []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})

	count := 0
	pc.Iterate(func(p r3.Vector, d Data) bool {
		count++
		return count < 4
	})
	test.That(t, count, test.ShouldEqual, 4)
}

func TestNewWithPreallocBounds(t *testing.T) {
	huge := NewWithPrealloc(math.MaxInt32).(*basicPointCloud)
	test.That(t, cap(huge.points), test.ShouldEqual, maxPrealloc)
	negative := NewWithPrealloc(-5).(*basicPointCloud)
	test.That(t, cap(negative.points), test.ShouldEqual, 0)
}

func TestPackedColor(t *testing.T) {
	c := color.NRGBA{R: 0x12, G: 0x34, B: 0x56, A: 255}
	test.That(t, packedRGB(NewColoredData(c)), test.ShouldEqual, uint32(0x123456))
	test.That(t, unpackRGB(0x123456), test.ShouldResemble, c)
	test.That(t, packedRGB(nil), test.ShouldEqual, uint32(0xFFFFFF))
	test.That(t, packedRGB(NewBasicData()), test.ShouldEqual, uint32(0xFFFFFF))
}
