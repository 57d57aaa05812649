package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edaniels/lidario"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/queryvis/logging"
	"go.viam.com/queryvis/spatialmath"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
	// PCDCompressed binary format for pcd.
	PCDCompressed PCDType = 2
)

// Float64 values outside this range lose precision once stored as LAS coordinates.
const (
	maxPreciseFloat64 = float64(1 << 53)
	minPreciseFloat64 = -maxPreciseFloat64
)

// NewFromFile returns a pointcloud read in from the given file. The format is chosen by extension.
func NewFromFile(fn string, logger logging.Logger) (PointCloud, error) {
	switch filepath.Ext(fn) {
	case ".las":
		return NewFromLASFile(fn, logger)
	case ".pcd":
		f, err := os.Open(filepath.Clean(fn))
		if err != nil {
			return nil, err
		}
		defer utils.UncheckedErrorFunc(f.Close)
		return ReadPCD(f)
	default:
		return nil, errors.Errorf("do not know how to read file %q", fn)
	}
}

// NewFromPCDFileInViewpoint reads a PCD file and moves its points by the sensor pose on its
// VIEWPOINT line, giving the cloud in the frame the viewpoint is expressed in.
func NewFromPCDFileInViewpoint(fn string) (PointCloud, error) {
	f, err := os.Open(filepath.Clean(fn))
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	pc, viewpoint, err := ReadPCDWithViewpoint(f)
	if err != nil {
		return nil, err
	}
	return ApplyTransform(pc, viewpoint)
}

// NewFromLASFile returns a point cloud from reading a LAS file. If any
// lossiness of points could occur from reading it in, it's reported but is not
// an error.
func NewFromLASFile(fn string, logger logging.Logger) (PointCloud, error) {
	lf, err := lidario.NewLasFile(fn, "r")
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(lf.Close)

	pc := NewWithPrealloc(lf.Header.NumberPoints)
	for i := 0; i < lf.Header.NumberPoints; i++ {
		p, err := lf.LasPoint(i)
		if err != nil {
			return nil, err
		}
		data := p.PointData()

		x, y, z := data.X, data.Y, data.Z
		if x < minPreciseFloat64 || x > maxPreciseFloat64 ||
			y < minPreciseFloat64 || y > maxPreciseFloat64 ||
			z < minPreciseFloat64 || z > maxPreciseFloat64 {
			logger.Warnw("potential floating point lossiness for LAS point",
				"point", data, "range", fmt.Sprintf("[%f,%f]", minPreciseFloat64, maxPreciseFloat64))
		}

		dd := NewBasicData()
		if lf.Header.PointFormatID == 2 && p.RgbData() != nil {
			r := uint8(p.RgbData().Red / 256)
			g := uint8(p.RgbData().Green / 256)
			b := uint8(p.RgbData().Blue / 256)
			dd = NewColoredData(color.NRGBA{R: r, G: g, B: b, A: 255})
		}

		if err := pc.Set(r3.Vector{X: x, Y: y, Z: z}, dd); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

// WriteToLASFile writes the point cloud out to a LAS file.
func WriteToLASFile(cloud PointCloud, fn string) (err error) {
	lf, err := lidario.NewLasFile(fn, "w")
	if err != nil {
		return
	}
	defer func() {
		cerr := lf.Close()
		err = multierr.Combine(err, cerr)
	}()

	meta := cloud.MetaData()

	pointFormatID := 0
	if meta.HasColor {
		pointFormatID = 2
	}
	if err = lf.AddHeader(lidario.LasHeader{
		PointFormatID: byte(pointFormatID),
	}); err != nil {
		return
	}

	var lastErr error
	cloud.Iterate(func(pos r3.Vector, d Data) bool {
		var lp lidario.LasPointer
		pr0 := &lidario.PointRecord0{
			X: pos.X,
			Y: pos.Y,
			Z: pos.Z,
			BitField: lidario.PointBitField{
				Value: (1) | (1 << 3) | (0 << 6) | (0 << 7),
			},
			ClassBitField: lidario.ClassificationBitField{
				Value: 0,
			},
			PointSourceID: 1,
		}
		lp = pr0

		if meta.HasColor {
			red, green, blue := 255, 255, 255
			if d != nil && d.HasColor() {
				r, g, b := d.RGB255()
				red, green, blue = int(r), int(g), int(b)
			}
			lp = &lidario.PointRecord2{
				PointRecord0: pr0,
				RGB: &lidario.RgbData{
					Red:   uint16(red * 256),
					Green: uint16(green * 256),
					Blue:  uint16(blue * 256),
				},
			}
		}
		if lerr := lf.AddLasPoint(lp); lerr != nil {
			lastErr = lerr
			return false
		}
		return true
	})
	if lastErr != nil {
		err = lastErr
	}
	return
}

// ToPCD writes out a point cloud to a PCD file of the given type. Coordinates are written in meters.
func ToPCD(cloud PointCloud, out io.Writer, outputType PCDType) error {
	var err error

	_, err = fmt.Fprintf(out, "VERSION .7\n")
	if err != nil {
		return err
	}
	if cloud.MetaData().HasColor {
		_, err = fmt.Fprintf(out, "FIELDS x y z rgb\n"+
			"SIZE 4 4 4 4\n"+
			"TYPE F F F U\n"+
			"COUNT 1 1 1 1\n")
	} else {
		_, err = fmt.Fprintf(out, "FIELDS x y z\n"+
			"SIZE 4 4 4\n"+
			"TYPE F F F\n"+
			"COUNT 1 1 1\n")
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "WIDTH %d\n"+
		"HEIGHT %d\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n",
		cloud.Size(),
		1,
		cloud.Size())
	if err != nil {
		return err
	}

	switch outputType {
	case PCDBinary:
		_, err = fmt.Fprintf(out, "DATA binary\n")
	case PCDAscii:
		_, err = fmt.Fprintf(out, "DATA ascii\n")
	case PCDCompressed:
		return errors.New("compressed PCD not yet implemented")
	default:
		return errors.Errorf("unknown pcd type %d", outputType)
	}
	if err != nil {
		return err
	}
	return writePCDData(cloud, out, outputType)
}

func writePCDData(cloud PointCloud, out io.Writer, pcdtype PCDType) error {
	hasColor := cloud.MetaData().HasColor
	var err error
	cloud.Iterate(func(pos r3.Vector, d Data) bool {
		x, y, z := float32(pos.X), float32(pos.Y), float32(pos.Z)
		switch pcdtype {
		case PCDBinary:
			buf := make([]byte, 12, 16)
			binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
			binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(y))
			binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(z))
			if hasColor {
				buf = binary.LittleEndian.AppendUint32(buf, packedRGB(d))
			}
			_, err = out.Write(buf)
		case PCDAscii:
			if hasColor {
				_, err = fmt.Fprintf(out, "%f %f %f %d\n", x, y, z, packedRGB(d))
			} else {
				_, err = fmt.Fprintf(out, "%f %f %f\n", x, y, z)
			}
		}
		return err == nil
	})
	return err
}

type pcdFieldType int

const (
	pcdPointOnly  pcdFieldType = 3
	pcdPointColor pcdFieldType = 4
)

type pcdValType string

const (
	pcdValFloat pcdValType = "F"
	pcdValInt   pcdValType = "I"
	pcdValUInt  pcdValType = "U"
)

type pcdHeader struct {
	fields    pcdFieldType
	size      []uint64
	valTypes  []pcdValType
	count     []uint64
	width     uint64
	height    uint64
	viewpoint spatialmath.Transform
	points    uint64
	data      PCDType
}

const pcdCommentChar = "#"

var pcdHeaderFields = []string{"VERSION", "FIELDS", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT", "POINTS", "DATA"}

func parsePCDHeaderLine(line string, index int, header *pcdHeader) error {
	var err error
	name := pcdHeaderFields[index]
	field, value, _ := strings.Cut(line, " ")
	tokens := strings.Fields(value)
	if field != name {
		return errors.Errorf("line is supposed to start with %s but is %s", name, line)
	}

	switch name {
	case "VERSION":
		if value != ".7" && value != "0.7" {
			return errors.Errorf("unsupported pcd version %s", value)
		}
	case "FIELDS":
		switch strings.Join(tokens, " ") {
		case "x y z":
			header.fields = pcdPointOnly
		case "x y z rgb", "x y z rgba":
			header.fields = pcdPointColor
		default:
			return errors.Errorf("unsupported pcd fields %s", value)
		}
	case "SIZE":
		if len(tokens) != int(header.fields) {
			return errors.New("unexpected number of fields in SIZE line")
		}
		header.size = make([]uint64, len(tokens))
		for i, token := range tokens {
			header.size[i], err = strconv.ParseUint(token, 10, 64)
			if err != nil {
				return errors.Errorf("invalid SIZE field %s", token)
			}
			if header.size[i] != 4 && header.size[i] != 8 {
				return errors.Errorf("unsupported SIZE %d", header.size[i])
			}
		}
	case "TYPE":
		if len(tokens) != int(header.fields) {
			return errors.New("unexpected number of fields in TYPE line")
		}
		header.valTypes = make([]pcdValType, len(tokens))
		for i, token := range tokens {
			switch t := pcdValType(token); t {
			case pcdValFloat, pcdValInt, pcdValUInt:
				header.valTypes[i] = t
			default:
				return errors.Errorf("invalid TYPE field %s", token)
			}
		}
	case "COUNT":
		if len(tokens) != int(header.fields) {
			return errors.New("unexpected number of fields in COUNT line")
		}
		header.count = make([]uint64, len(tokens))
		for i, token := range tokens {
			header.count[i], err = strconv.ParseUint(token, 10, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid COUNT field %s", token)
			}
			if header.count[i] != 1 {
				return errors.Errorf("unsupported COUNT %d", header.count[i])
			}
		}
	case "WIDTH":
		header.width, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid WIDTH field %s", value)
		}
	case "HEIGHT":
		header.height, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid HEIGHT field %s", value)
		}
	case "VIEWPOINT":
		if len(tokens) != 7 {
			return errors.Errorf("unexpected number of fields in VIEWPOINT line. Expected 7, got %d", len(tokens))
		}
		viewpoint := [7]float64{}
		for i, token := range tokens {
			viewpoint[i], err = strconv.ParseFloat(token, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid VIEWPOINT field %s", token)
			}
		}
		header.viewpoint = spatialmath.NewTransform(
			r3.Vector{X: viewpoint[0], Y: viewpoint[1], Z: viewpoint[2]},
			quat.Number{Real: viewpoint[3], Imag: viewpoint[4], Jmag: viewpoint[5], Kmag: viewpoint[6]},
		)
	case "POINTS":
		var points uint64
		points, err = strconv.ParseUint(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid POINTS field %s", value)
		}
		if points != header.width*header.height {
			return errors.Errorf("POINTS field %d does not match WIDTH*HEIGHT %d", points, header.width*header.height)
		}
		header.points = points
	case "DATA":
		switch value {
		case "ascii":
			header.data = PCDAscii
		case "binary":
			header.data = PCDBinary
		case "binary_compressed":
			header.data = PCDCompressed
		default:
			return errors.Errorf("unknown DATA type %s", value)
		}
	}

	return nil
}

// ReadPCD reads a PCD file with x y z and an optional packed rgb field.
func ReadPCD(inRaw io.Reader) (PointCloud, error) {
	pc, _, err := ReadPCDWithViewpoint(inRaw)
	return pc, err
}

// ReadPCDWithViewpoint reads a PCD file and also returns the sensor pose from its VIEWPOINT line.
func ReadPCDWithViewpoint(inRaw io.Reader) (PointCloud, spatialmath.Transform, error) {
	header := pcdHeader{}
	in := bufio.NewReader(inRaw)
	headerLineCount := 0
	for headerLineCount < len(pcdHeaderFields) {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, spatialmath.Transform{}, errors.Wrapf(err, "error reading header line %d", headerLineCount)
		}
		line, _, _ = strings.Cut(line, pcdCommentChar)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := parsePCDHeaderLine(line, headerLineCount, &header); err != nil {
			return nil, spatialmath.Transform{}, err
		}
		headerLineCount++
	}
	var pc PointCloud
	var err error
	switch header.data {
	case PCDAscii:
		pc, err = readPCDAscii(in, header)
	case PCDBinary:
		pc, err = readPCDBinary(in, header)
	case PCDCompressed:
		err = errors.New("compressed pcd not yet supported")
	default:
		err = errors.Errorf("unsupported pcd data type %v", header.data)
	}
	if err != nil {
		return nil, spatialmath.Transform{}, err
	}
	return pc, header.viewpoint, nil
}

func readPCDAscii(in *bufio.Reader, header pcdHeader) (PointCloud, error) {
	pc := NewWithPrealloc(int(header.points))
	for i := 0; i < int(header.points); i++ {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, errors.Wrapf(err, "reading point %d", i)
		}
		tokens := strings.Fields(line)
		if len(tokens) != int(header.fields) {
			return nil, errors.Errorf("unexpected number of fields in point %d", i)
		}
		point := make([]float64, len(tokens))
		for j, token := range tokens {
			point[j], err = parseASCIIValue(token, header.valTypes[j], j == 3)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid point %d field %s", i, token)
			}
		}
		if err := setPCDPoint(pc, point, header); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

func parseASCIIValue(token string, valType pcdValType, isColor bool) (float64, error) {
	switch valType {
	case pcdValFloat:
		v, err := strconv.ParseFloat(token, 64)
		if isColor && err == nil {
			return float64(math.Float32bits(float32(v))), nil
		}
		return v, err
	case pcdValUInt:
		v, err := strconv.ParseUint(token, 10, 64)
		return float64(v), err
	case pcdValInt:
		v, err := strconv.ParseInt(token, 10, 64)
		return float64(v), err
	default:
		return 0, errors.Errorf("unknown TYPE %s", valType)
	}
}

func readPCDBinary(in *bufio.Reader, header pcdHeader) (PointCloud, error) {
	pc := NewWithPrealloc(int(header.points))
	for i := 0; i < int(header.points); i++ {
		point := make([]float64, int(header.fields))
		for j := 0; j < int(header.fields); j++ {
			buf := make([]byte, header.size[j])
			if _, err := io.ReadFull(in, buf); err != nil {
				return nil, errors.Wrapf(err, "reading point %d", i)
			}
			point[j] = decodeBinaryValue(buf, header.valTypes[j], j == 3)
		}
		if err := setPCDPoint(pc, point, header); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

// decodeBinaryValue reads one little endian PCD value. A float color field holds the
// packed color bits, so its bits are returned as an integer.
func decodeBinaryValue(buf []byte, valType pcdValType, isColor bool) float64 {
	if len(buf) == 8 {
		bits := binary.LittleEndian.Uint64(buf)
		switch valType {
		case pcdValFloat:
			return math.Float64frombits(bits)
		case pcdValInt:
			return float64(int64(bits))
		default:
			return float64(bits)
		}
	}
	bits := binary.LittleEndian.Uint32(buf)
	switch {
	case isColor:
		return float64(bits)
	case valType == pcdValFloat:
		return float64(math.Float32frombits(bits))
	case valType == pcdValInt:
		return float64(int32(bits))
	default:
		return float64(bits)
	}
}

func setPCDPoint(pc PointCloud, values []float64, header pcdHeader) error {
	pos := r3.Vector{X: values[0], Y: values[1], Z: values[2]}
	if !isFinite(pos.X) || !isFinite(pos.Y) || !isFinite(pos.Z) {
		return nil
	}
	switch header.fields {
	case pcdPointOnly:
		return pc.Set(pos, NewBasicData())
	case pcdPointColor:
		return pc.Set(pos, NewColoredData(unpackRGB(uint32(values[3]))))
	default:
		return errors.Errorf("unsupported pcd field type %d", header.fields)
	}
}
