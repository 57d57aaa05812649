package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"go.viam.com/test"

	"go.viam.com/queryvis/config"
	"go.viam.com/queryvis/logging"
	"go.viam.com/queryvis/ros"
	"go.viam.com/queryvis/transport/natsbus"
)

func startNATS(t *testing.T) *natsserver.Server {
	t.Helper()
	ns, err := natsserver.NewServer(&natsserver.Options{Port: -1, MaxPayload: 8 << 20})
	test.That(t, err, test.ShouldBeNil)
	ns.Start()
	if !ns.ReadyForConnections(2 * time.Second) {
		t.Fatal("nats not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func grayImage(w, h int, v byte) ros.Image {
	data := make([]byte, w*h)
	for i := range data {
		data[i] = v
	}
	return ros.Image{Width: uint32(w), Height: uint32(h), Encoding: ros.EncodingMono8, Step: uint32(w), Data: data}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig(Arguments{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.NATSURL, test.ShouldEqual, config.DefaultNATSURL)

	path := filepath.Join(t.TempDir(), "config.json")
	test.That(t, os.WriteFile(path, []byte(`{"image_output": "/vis", "nats_url": "nats://a:1"}`), 0o600), test.ShouldBeNil)
	cfg, err = loadConfig(Arguments{ConfigFile: path, NATSURL: "nats://b:2", Debug: true, Metrics: ":9100"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ImageOutput, test.ShouldEqual, "/vis")
	test.That(t, cfg.NATSURL, test.ShouldEqual, "nats://b:2")
	test.That(t, cfg.MetricsAddress, test.ShouldEqual, ":9100")
	test.That(t, cfg.Level(), test.ShouldEqual, logging.DEBUG)

	_, err = loadConfig(Arguments{ConfigFile: filepath.Join(t.TempDir(), "missing.json")})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestServeOverNATS(t *testing.T) {
	ns := startNATS(t)
	logger := logging.NewTestLogger(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- mainWithArgs(ctx, []string{"visualization-server", "-nats", ns.ClientURL()}, logger)
	}()

	client, err := natsbus.Connect(ns.ClientURL(), config.Default().Names(), logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() { test.That(t, client.Close(), test.ShouldBeNil) }()

	images := make(chan ros.Image, 1)
	test.That(t, client.ListenImages(func(_ context.Context, img ros.Image) { images <- img }), test.ShouldBeNil)
	test.That(t, client.Conn().Flush(), test.ShouldBeNil)

	req := ros.VisualizeQueryRequest{Query: ros.RetrievalQuery{
		Image:         grayImage(8, 6, 120),
		Mask:          grayImage(8, 6, 1),
		RoomTransform: ros.Transform{Rotation: ros.Quaternion{W: 1}},
	}}

	// the server subscribes asynchronously
	var resp ros.VisualizeQueryResponse
	deadline := time.Now().Add(10 * time.Second)
	for {
		callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
		resp, err = client.Call(callCtx, req)
		callCancel()
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp.Image.Encoding, test.ShouldEqual, ros.EncodingBGR8)
	test.That(t, resp.Image.Width, test.ShouldBeGreaterThan, uint32(0))

	select {
	case img := <-images:
		test.That(t, img.Width, test.ShouldEqual, resp.Image.Width)
	case <-time.After(5 * time.Second):
		t.Fatal("composite was not published")
	}

	cancel()
	test.That(t, <-done, test.ShouldBeNil)
}

func TestConfigFileAndLogFile(t *testing.T) {
	ns := startNATS(t)
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	logFile := filepath.Join(dir, "server.log")
	cfgFile := filepath.Join(dir, "config.json")
	data := `{"nats_url": "` + ns.ClientURL() + `", "log_file": "` + logFile + `", "log_max_size_mb": 1}`
	test.That(t, os.WriteFile(cfgFile, []byte(data), 0o600), test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- mainWithArgs(ctx, []string{"visualization-server", "-config", cfgFile}, logger)
	}()

	deadline := time.Now().Add(10 * time.Second)
	for {
		//nolint:gosec
		contents, err := os.ReadFile(logFile)
		if err == nil && strings.Contains(string(contents), "listening") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("log file never received the startup line")
		}
		time.Sleep(50 * time.Millisecond)
	}
	cancel()
	test.That(t, <-done, test.ShouldBeNil)
}

func TestWatchConfig(t *testing.T) {
	logger := logging.NewTestLogger(t)
	logger.SetLevel(logging.INFO)
	current := config.Default()

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan *config.Config)
	done := make(chan struct{})
	go func() {
		watchConfig(ctx, Arguments{}, current, updates, logger)
		close(done)
	}()

	next := config.Default()
	next.LogLevel = "warn"
	updates <- next
	moved := config.Default()
	moved.LogLevel = "warn"
	moved.ServiceName = "/moved"
	updates <- moved
	test.That(t, logger.GetLevel(), test.ShouldEqual, logging.WARN)

	updates <- config.Default()
	cancel()
	<-done
	test.That(t, logger.GetLevel(), test.ShouldEqual, logging.INFO)

	// the debug flag wins over the file
	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	done = make(chan struct{})
	go func() {
		watchConfig(ctx, Arguments{Debug: true}, current, updates, logger)
		close(done)
	}()
	updates <- config.Default()
	cancel()
	<-done
	test.That(t, logger.GetLevel(), test.ShouldEqual, logging.DEBUG)
}

func TestConnectFailure(t *testing.T) {
	err := mainWithArgs(context.Background(), []string{"visualization-server", "-nats", "nats://127.0.0.1:1"}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot connect to nats")
}
