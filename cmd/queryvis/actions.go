package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/geo/r3"
	"github.com/invopop/jsonschema"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/queryvis/compose"
	"go.viam.com/queryvis/config"
	"go.viam.com/queryvis/logging"
	"go.viam.com/queryvis/pointcloud"
	"go.viam.com/queryvis/rimage"
	"go.viam.com/queryvis/ros"
	"go.viam.com/queryvis/spatialmath"
	"go.viam.com/queryvis/transport/natsbus"
	"go.viam.com/queryvis/visualization"
)

func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

func newLogger(c *cli.Context) logging.Logger {
	logger := logging.NewLogger("queryvis")
	if c.Bool(flagDebug) {
		logger.SetLevel(logging.DEBUG)
	}
	return logger
}

func newCompositor(logger logging.Logger) *visualization.Compositor {
	return visualization.NewCompositor(compose.NewPanelComposer(), logger.Sublogger("compositor"))
}

// writeComposite decodes a composite returned by the pipeline and writes it to path.
func writeComposite(path string, msg ros.Image) error {
	img, err := rimage.DecodeColor(msg)
	if err != nil {
		return errors.Wrap(err, "cannot decode composite")
	}
	return rimage.WriteImageToFile(path, img)
}

// roomTransform builds the query's room transform from an x,y,z,w rotation. No values
// means no rotation.
func roomTransform(values []float64) (ros.Transform, error) {
	switch len(values) {
	case 0:
		return spatialmath.NewIdentityTransform().ToROS(), nil
	case 4:
		rotation := quat.Number{Real: values[3], Imag: values[0], Jmag: values[1], Kmag: values[2]}
		return spatialmath.NewTransform(r3.Vector{}, rotation).ToROS(), nil
	default:
		return ros.Transform{}, errors.Errorf("rotation needs 4 values x,y,z,w, got %d", len(values))
	}
}

// readCloud reads a .pcd or .las file. With inViewpoint set, PCD points are moved by the
// file's VIEWPOINT pose.
func readCloud(fn string, inViewpoint bool, logger logging.Logger) (pointcloud.PointCloud, error) {
	if inViewpoint && filepath.Ext(fn) == ".pcd" {
		return pointcloud.NewFromPCDFileInViewpoint(fn)
	}
	return pointcloud.NewFromFile(fn, logger)
}

// fullMask marks every pixel of a width x height image as foreground.
func fullMask(width, height int) ros.Image {
	data := make([]byte, width*height)
	for i := range data {
		data[i] = 255
	}
	return ros.Image{
		Width:    uint32(width),
		Height:   uint32(height),
		Encoding: ros.EncodingMono8,
		Step:     uint32(width),
		Data:     data,
	}
}

func readQuery(c *cli.Context) (ros.RetrievalQuery, error) {
	transform, err := roomTransform(c.Float64Slice(flagRotation))
	if err != nil {
		return ros.RetrievalQuery{}, err
	}
	img, err := rimage.ReadImageMessage(c.String(flagImage))
	if err != nil {
		return ros.RetrievalQuery{}, err
	}
	var mask ros.Image
	if fn := c.String(flagMask); fn != "" {
		if mask, err = rimage.ReadImageMessage(fn); err != nil {
			return ros.RetrievalQuery{}, err
		}
	} else {
		decoded, err := rimage.DecodeColor(img)
		if err != nil {
			return ros.RetrievalQuery{}, err
		}
		mask = fullMask(decoded.Width(), decoded.Height())
	}
	return ros.RetrievalQuery{
		Image:         img,
		Mask:          mask,
		RoomTransform: transform,
	}, nil
}

// RenderAction composes a visualization from local image and cloud files.
func RenderAction(c *cli.Context) error {
	logger := newLogger(c)
	query, err := readQuery(c)
	if err != nil {
		return err
	}

	var result ros.RetrievalResult
	for _, fn := range c.StringSlice(flagCloud) {
		pc, err := readCloud(fn, c.Bool(flagViewpoint), logger)
		if err != nil {
			return errors.Wrapf(err, "cannot read cloud %q", fn)
		}
		logger.Debugw("read cloud", "file", fn, "points", pc.Size())
		result.RetrievedClouds = append(result.RetrievedClouds, pointcloud.ToPointCloud2(pc))
	}

	composite, err := newCompositor(logger).Visualize(c.Context, query, result)
	if err != nil {
		return err
	}
	out := c.String(flagOut)
	if err := writeComposite(out, composite); err != nil {
		return err
	}
	printf(c.App.Writer, "wrote %s (%dx%d, %d results)", out, composite.Width, composite.Height, len(result.RetrievedClouds))
	return nil
}

func readRequest(fn string) (ros.VisualizeQueryRequest, error) {
	var req ros.VisualizeQueryRequest
	//nolint:gosec
	data, err := os.ReadFile(fn)
	if err != nil {
		return req, err
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, errors.Wrapf(err, "cannot parse request %q", fn)
	}
	return req, nil
}

// CallAction sends a visualize_query request over NATS and writes the returned composite.
func CallAction(c *cli.Context) (err error) {
	logger := newLogger(c)
	req, err := readRequest(c.String(flagRequest))
	if err != nil {
		return err
	}

	bus, err := natsbus.Connect(c.String(flagNATS), natsbus.Names{
		ImageOutput: config.DefaultImageOutput,
		TopicInput:  config.DefaultTopicInput,
		ServiceName: c.String(flagService),
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, bus.Close())
	}()

	ctx := c.Context
	if timeout := c.Duration(flagTimeout); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, err := bus.Call(ctx, req)
	if err != nil {
		return errors.Wrap(err, "visualize_query failed")
	}
	out := c.String(flagOut)
	if err := writeComposite(out, resp.Image); err != nil {
		return err
	}
	printf(c.App.Writer, "wrote %s (%dx%d)", out, resp.Image.Width, resp.Image.Height)
	return nil
}

// ReplayAction runs every retrieval result recorded in a rosbag through the pipeline and
// writes one composite per message. Messages that fail are reported and skipped.
func ReplayAction(c *cli.Context) error {
	logger := newLogger(c)
	rb, err := ros.ReadBag(c.String(flagBag))
	if err != nil {
		return err
	}
	msgs, err := ros.MessagesForTopic[ros.RetrievalQueryResult](rb, c.String(flagTopic))
	if err != nil {
		return err
	}
	outDir := c.String(flagOutDir)
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return err
	}
	return replay(c.Context, c.App.Writer, newCompositor(logger), msgs, outDir, logger)
}

func replay(
	ctx context.Context,
	w io.Writer,
	compositor *visualization.Compositor,
	msgs []ros.RetrievalQueryResult,
	outDir string,
	logger logging.Logger,
) error {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Results", "Composite", "Time"})
	var written int
	var seconds []float64
	for i, msg := range msgs {
		start := time.Now()
		composite, err := compositor.Visualize(ctx, msg.Query, msg.Result)
		elapsed := time.Since(start)
		if err != nil {
			logger.Warnw("skipping message", "index", i, "kind", visualization.ErrorKind(err), "error", err)
			t.AppendRow(table.Row{i, len(msg.Result.RetrievedClouds), "skipped: " + visualization.ErrorKind(err), elapsed.Round(time.Microsecond)})
			continue
		}
		fn := filepath.Join(outDir, fmt.Sprintf("composite_%04d.png", i))
		if err := writeComposite(fn, composite); err != nil {
			return err
		}
		seconds = append(seconds, elapsed.Seconds())
		t.AppendRow(table.Row{
			i,
			len(msg.Result.RetrievedClouds),
			fmt.Sprintf("%s (%dx%d)", filepath.Base(fn), composite.Width, composite.Height),
			elapsed.Round(time.Microsecond),
		})
		written++
	}
	if len(msgs) > 0 {
		printf(w, "%s", t.Render())
	}
	printf(w, "wrote %d of %d composites to %s", written, len(msgs), outDir)
	if len(seconds) > 0 {
		mean, err := stats.Mean(seconds)
		if err != nil {
			return err
		}
		slowest, err := stats.Max(seconds)
		if err != nil {
			return err
		}
		printf(w, "visualize time: mean %v, max %v", secondsToDuration(mean), secondsToDuration(slowest))
	}
	if written == 0 && len(msgs) > 0 {
		return errors.New("no message could be visualized")
	}
	return nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second)).Round(time.Microsecond)
}

// SchemaAction prints the JSON schema of the service config file.
func SchemaAction(c *cli.Context) error {
	schema := jsonschema.Reflect(&config.Config{})
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", data)
	return nil
}
