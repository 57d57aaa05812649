// Package server hosts the visualization pipeline behind its two entry points: the
// synchronous visualize_query call and the retrieval result notification.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"go.viam.com/queryvis/logging"
	"go.viam.com/queryvis/metrics"
	"go.viam.com/queryvis/ros"
	"go.viam.com/queryvis/transport"
	"go.viam.com/queryvis/visualization"
)

var errNoPublisher = errors.New("an image publisher is required")

// ErrClosed is returned by a closed Service.
var ErrClosed = errors.New("service closed")

// Options are the channels and collectors a Service is built with. Subscriber and Endpoint
// may be nil, in which case that entry point is only reachable by calling the Service.
type Options struct {
	Publisher  transport.ImagePublisher
	Subscriber transport.ResultSubscriber
	Endpoint   transport.ServiceEndpoint
	Metrics    *metrics.Metrics
}

// Service runs one pipeline per trigger and publishes every composite it produces.
type Service struct {
	compositor *visualization.Compositor
	publisher  transport.ImagePublisher
	subscriber transport.ResultSubscriber
	endpoint   transport.ServiceEndpoint
	metrics    *metrics.Metrics
	logger     logging.Logger

	mu      sync.Mutex
	started bool
	closed  bool
}

// New returns a Service. It does not listen on anything until Start.
func New(compositor *visualization.Compositor, opts Options, logger logging.Logger) (*Service, error) {
	if opts.Publisher == nil {
		return nil, errNoPublisher
	}
	if compositor == nil {
		return nil, errors.New("a compositor is required")
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	return &Service{
		compositor: compositor,
		publisher:  opts.Publisher,
		subscriber: opts.Subscriber,
		endpoint:   opts.Endpoint,
		metrics:    m,
		logger:     logger,
	}, nil
}

// Start registers the notification handler and the call handler on their channels.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.started {
		return errors.New("service already started")
	}
	if s.subscriber != nil {
		if err := s.subscriber.SubscribeResults(s.OnRetrievalResult); err != nil {
			return errors.Wrap(err, "cannot subscribe to retrieval results")
		}
	}
	if s.endpoint != nil {
		if err := s.endpoint.ServeQueries(s.VisualizeQuery); err != nil {
			return errors.Wrap(err, "cannot serve visualize_query")
		}
	}
	s.started = true
	s.logger.Info("visualization service started")
	return nil
}

func (s *Service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// process runs the pipeline for one trigger and publishes the result.
func (s *Service) process(
	ctx context.Context,
	entry string,
	query ros.RetrievalQuery,
	result ros.RetrievalResult,
) (ros.Image, error) {
	if s.isClosed() {
		return ros.Image{}, ErrClosed
	}
	s.metrics.Runs.WithLabelValues(entry).Inc()
	start := time.Now()
	img, err := s.compositor.Visualize(ctx, query, result)
	s.metrics.Duration.WithLabelValues(entry).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.Failures.WithLabelValues(entry, visualization.ErrorKind(err)).Inc()
		return ros.Image{}, err
	}
	if err := s.publisher.PublishImage(ctx, img); err != nil {
		s.metrics.PublishFailures.Inc()
		return ros.Image{}, errors.Wrap(err, "cannot publish composite image")
	}
	s.metrics.PublishedImages.Inc()
	return img, nil
}

// VisualizeQuery answers a synchronous call. The composite is published and returned;
// any failure is returned to the caller.
func (s *Service) VisualizeQuery(ctx context.Context, req ros.VisualizeQueryRequest) (ros.VisualizeQueryResponse, error) {
	img, err := s.process(ctx, metrics.EntryCall, req.Query, req.Result)
	if err != nil {
		s.logger.Warnw("visualize_query failed", "kind", visualization.ErrorKind(err), "error", err)
		return ros.VisualizeQueryResponse{}, err
	}
	return ros.VisualizeQueryResponse{Image: img}, nil
}

// OnRetrievalResult handles a retrieval notification. Failures are logged and the
// notification is dropped.
func (s *Service) OnRetrievalResult(ctx context.Context, msg ros.RetrievalQueryResult) {
	if _, err := s.process(ctx, metrics.EntryNotification, msg.Query, msg.Result); err != nil {
		s.logger.Errorw("dropping retrieval result", "kind", visualization.ErrorKind(err), "error", err)
	}
}

// Close tears down the endpoint, the subscriber and the publisher, in that order.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var err error
	if s.endpoint != nil {
		err = multierr.Combine(err, s.endpoint.Close())
	}
	if s.subscriber != nil {
		err = multierr.Combine(err, s.subscriber.Close())
	}
	err = multierr.Combine(err, s.publisher.Close())
	s.logger.Info("visualization service stopped")
	return err
}
