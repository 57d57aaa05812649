package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.viam.com/test"

	"go.viam.com/queryvis/logging"
)

func TestNewRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Runs.WithLabelValues(EntryCall).Inc()
	m.Runs.WithLabelValues(EntryCall).Inc()
	m.Failures.WithLabelValues(EntryNotification, "decode").Inc()
	m.PublishedImages.Inc()
	m.Duration.WithLabelValues(EntryCall).Observe(0.2)

	test.That(t, testutil.ToFloat64(m.Runs.WithLabelValues(EntryCall)), test.ShouldEqual, 2.)
	test.That(t, testutil.ToFloat64(m.Failures.WithLabelValues(EntryNotification, "decode")), test.ShouldEqual, 1.)
	test.That(t, testutil.ToFloat64(m.PublishedImages), test.ShouldEqual, 1.)
	test.That(t, testutil.CollectAndCount(m.Duration), test.ShouldEqual, 1)

	// a second set cannot share the registry
	test.That(t, func() { New(reg) }, test.ShouldPanic)
}

func TestServe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.PublishedImages.Inc()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	test.That(t, err, test.ShouldBeNil)
	addr := lis.Addr().String()
	test.That(t, lis.Close(), test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, addr, reg, logging.NewTestLogger(t))
	}()

	var body []byte
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			time.Sleep(20 * time.Millisecond)
			continue
		}
		body, err = io.ReadAll(resp.Body)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, resp.Body.Close(), test.ShouldBeNil)
		break
	}
	test.That(t, string(body), test.ShouldContainSubstring, "queryvis_published_images_total 1")

	cancel()
	test.That(t, <-done, test.ShouldBeNil)
}
