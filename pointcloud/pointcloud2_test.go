package pointcloud

import (
	"encoding/binary"
	"image/color"
	"math"
	"testing"

	"go.viam.com/test"

	"go.viam.com/queryvis/ros"
)

func xyzFields(datatype uint8, size uint32) []ros.PointField {
	return []ros.PointField{
		{Name: "x", Offset: 0, Datatype: datatype, Count: 1},
		{Name: "y", Offset: size, Datatype: datatype, Count: 1},
		{Name: "z", Offset: 2 * size, Datatype: datatype, Count: 1},
	}
}

func TestPointCloud2RoundTrip(t *testing.T) {
	pc := New()
	test.That(t, pc.Set(NewVector(1, 2, 3), NewColoredData(color.NRGBA{R: 255, A: 255})), test.ShouldBeNil)
	test.That(t, pc.Set(NewVector(-1, 0.5, 2), NewColoredData(color.NRGBA{G: 128, B: 7, A: 255})), test.ShouldBeNil)

	msg := ToPointCloud2(pc)
	test.That(t, msg.Height, test.ShouldEqual, uint32(1))
	test.That(t, msg.Width, test.ShouldEqual, uint32(2))
	test.That(t, msg.PointStep, test.ShouldEqual, uint32(16))
	test.That(t, msg.RowStep, test.ShouldEqual, uint32(32))
	test.That(t, msg.Data, test.ShouldHaveLength, 32)
	test.That(t, msg.Fields, test.ShouldHaveLength, 4)

	back, err := FromPointCloud2(msg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.Size(), test.ShouldEqual, 2)
	d, ok := back.At(1, 2, 3)
	test.That(t, ok, test.ShouldBeTrue)
	r, g, b := d.RGB255()
	test.That(t, []uint8{r, g, b}, test.ShouldResemble, []uint8{255, 0, 0})
	d, ok = back.At(-1, 0.5, 2)
	test.That(t, ok, test.ShouldBeTrue)
	r, g, b = d.RGB255()
	test.That(t, []uint8{r, g, b}, test.ShouldResemble, []uint8{0, 128, 7})
}

func TestPointCloud2Uncolored(t *testing.T) {
	pc := New()
	test.That(t, pc.Set(NewVector(0.25, 0, 0), NewBasicData()), test.ShouldBeNil)
	msg := ToPointCloud2(pc)
	test.That(t, msg.PointStep, test.ShouldEqual, uint32(12))
	test.That(t, msg.Fields, test.ShouldHaveLength, 3)

	back, err := FromPointCloud2(msg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.MetaData().HasColor, test.ShouldBeFalse)
	_, ok := back.At(0.25, 0, 0)
	test.That(t, ok, test.ShouldBeTrue)
}

func TestPointCloud2BigEndianFloat64(t *testing.T) {
	data := make([]byte, 0, 48)
	for _, v := range []float64{1, 2, 3, 4, 5, 6} {
		data = binary.BigEndian.AppendUint64(data, math.Float64bits(v))
	}
	msg := ros.PointCloud2{
		Height:      1,
		Width:       2,
		Fields:      xyzFields(ros.PointFieldFloat64, 8),
		IsBigendian: true,
		PointStep:   24,
		RowStep:     48,
		Data:        data,
	}
	pc, err := FromPointCloud2(msg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 2)
	_, ok := pc.At(4, 5, 6)
	test.That(t, ok, test.ShouldBeTrue)
}

func TestPointCloud2IntegerColorAndPadding(t *testing.T) {
	// organized 2x1 cloud with a padded row and rgba stored as UINT32
	fields := append(xyzFields(ros.PointFieldFloat32, 4),
		ros.PointField{Name: "rgba", Offset: 12, Datatype: ros.PointFieldUint32, Count: 1})
	row := make([]byte, 0, 20)
	for _, v := range []float32{1, 1, 1} {
		row = binary.LittleEndian.AppendUint32(row, math.Float32bits(v))
	}
	row = binary.LittleEndian.AppendUint32(row, 0xFF00FF00)
	row = append(row, 0, 0, 0, 0)
	second := make([]byte, 0, 20)
	for _, v := range []float32{2, 2, 2} {
		second = binary.LittleEndian.AppendUint32(second, math.Float32bits(v))
	}
	second = binary.LittleEndian.AppendUint32(second, 0x000000FF)
	second = append(second, 0, 0, 0, 0)

	msg := ros.PointCloud2{
		Height:    2,
		Width:     1,
		Fields:    fields,
		PointStep: 16,
		RowStep:   20,
		Data:      append(row, second...),
	}
	pc, err := FromPointCloud2(msg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 2)
	d, ok := pc.At(1, 1, 1)
	test.That(t, ok, test.ShouldBeTrue)
	r, g, b := d.RGB255()
	test.That(t, []uint8{r, g, b}, test.ShouldResemble, []uint8{0, 255, 0})
	d, _ = pc.At(2, 2, 2)
	r, g, b = d.RGB255()
	test.That(t, []uint8{r, g, b}, test.ShouldResemble, []uint8{0, 0, 255})
}

func TestPointCloud2SkipsNonFinite(t *testing.T) {
	data := make([]byte, 0, 24)
	for _, v := range []float32{float32(math.NaN()), 0, 0, 1, 1, 1} {
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(v))
	}
	msg := ros.PointCloud2{
		Height:    1,
		Width:     2,
		Fields:    xyzFields(ros.PointFieldFloat32, 4),
		PointStep: 12,
		RowStep:   24,
		Data:      data,
	}
	pc, err := FromPointCloud2(msg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 1)
}

func TestPointCloud2Malformed(t *testing.T) {
	good := ros.PointCloud2{
		Height:    1,
		Width:     1,
		Fields:    xyzFields(ros.PointFieldFloat32, 4),
		PointStep: 12,
		RowStep:   12,
		Data:      make([]byte, 12),
	}
	_, err := FromPointCloud2(good)
	test.That(t, err, test.ShouldBeNil)

	for _, tc := range []struct {
		name   string
		mutate func(*ros.PointCloud2)
		errStr string
	}{
		{"missing z", func(m *ros.PointCloud2) { m.Fields = m.Fields[:2] }, `no "z" field`},
		{"integer x", func(m *ros.PointCloud2) { m.Fields[0].Datatype = ros.PointFieldInt32 }, `field "x" has datatype`},
		{"unknown datatype", func(m *ros.PointCloud2) { m.Fields[1].Datatype = 42 }, "unknown datatype"},
		{"field past point", func(m *ros.PointCloud2) { m.Fields[2].Offset = 10 }, "overruns point_step"},
		{"offset wraps", func(m *ros.PointCloud2) { m.Fields[0].Offset = 0xFFFFFFFE }, "overruns point_step"},
		{"color offset wraps", func(m *ros.PointCloud2) {
			m.Fields = append(m.Fields, ros.PointField{Name: "rgb", Offset: 0xFFFFFFFF, Datatype: ros.PointFieldUint32, Count: 1})
		}, "overruns point_step"},
		{"short row", func(m *ros.PointCloud2) { m.RowStep = 8 }, "row_step"},
		{"short data", func(m *ros.PointCloud2) { m.Data = m.Data[:11] }, "want at least 12"},
		{"narrow color", func(m *ros.PointCloud2) {
			m.PointStep, m.RowStep, m.Data = 14, 14, make([]byte, 14)
			m.Fields = append(m.Fields, ros.PointField{Name: "rgb", Offset: 12, Datatype: ros.PointFieldUint16, Count: 1})
		}, "not 32 bits wide"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			msg := good
			msg.Fields = append([]ros.PointField(nil), good.Fields...)
			tc.mutate(&msg)
			_, err := FromPointCloud2(msg)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errStr)
		})
	}
}

func TestPointCloud2Empty(t *testing.T) {
	pc, err := FromPointCloud2(ros.PointCloud2{Fields: xyzFields(ros.PointFieldFloat32, 4), PointStep: 12})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 0)
}
