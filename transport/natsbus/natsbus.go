// Package natsbus carries the visualization channels over NATS. Payloads are JSON and
// trace context travels in message headers.
package natsbus

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"go.viam.com/queryvis/logging"
	"go.viam.com/queryvis/ros"
	"go.viam.com/queryvis/transport"
)

// DefaultCallTimeout bounds a Call whose context has no deadline.
const DefaultCallTimeout = 30 * time.Second

// headerCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

func newMsg(ctx context.Context, subject string, v any) (*nats.Msg, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	msg := &nats.Msg{Subject: subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	return msg, nil
}

func msgContext(msg *nats.Msg) context.Context {
	return otel.GetTextMapPropagator().Extract(context.Background(), (*headerCarrier)(msg))
}

// Names holds the ROS style names of the three channels.
type Names struct {
	ImageOutput string
	TopicInput  string
	ServiceName string
}

// serviceReply is the body of a reply to a synchronous call.
type serviceReply struct {
	Response *ros.VisualizeQueryResponse `json:"response,omitempty"`
	Error    string                      `json:"error,omitempty"`
}

// Bus implements transport.ImagePublisher, transport.ResultSubscriber,
// transport.ServiceEndpoint and transport.QueryCaller on a NATS connection.
type Bus struct {
	nc        *nats.Conn
	ownsConn  bool
	logger    logging.Logger
	imageSubj string
	topicSubj string
	svcSubj   string

	mu   sync.Mutex
	subs []*nats.Subscription

	malformed    atomic.Uint64
	malformedLog rate.Sometimes

	closeOnce sync.Once
	closeErr  error
}

var (
	_ transport.ImagePublisher   = (*Bus)(nil)
	_ transport.ResultSubscriber = (*Bus)(nil)
	_ transport.ServiceEndpoint  = (*Bus)(nil)
	_ transport.QueryCaller      = (*Bus)(nil)
)

// NewBus wraps an existing connection. Closing the bus leaves the connection open.
func NewBus(nc *nats.Conn, names Names, logger logging.Logger) *Bus {
	return &Bus{
		nc:        nc,
		logger:    logger,
		imageSubj: transport.SubjectForName(names.ImageOutput),
		topicSubj: transport.SubjectForName(names.TopicInput),
		svcSubj:   transport.SubjectForName(names.ServiceName),

		malformedLog: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// Connect dials url and returns a bus owning the connection.
func Connect(url string, names Names, logger logging.Logger, opts ...nats.Option) (*Bus, error) {
	opts = append([]nats.Option{
		nats.Name("queryvis"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warnw("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infow("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot connect to nats at %q", url)
	}
	bus := NewBus(nc, names, logger)
	bus.ownsConn = true
	return bus, nil
}

// Conn returns the underlying connection.
func (b *Bus) Conn() *nats.Conn {
	return b.nc
}

// dropMalformed counts a message that could not be decoded. Warnings are rate limited.
func (b *Bus) dropMalformed(what string, msg *nats.Msg, err error) {
	total := b.malformed.Add(1)
	b.malformedLog.Do(func() {
		b.logger.Warnw("dropping malformed "+what, "subject", msg.Subject, "dropped", total, "error", err)
	})
}

// Malformed returns how many inbound messages could not be decoded.
func (b *Bus) Malformed() uint64 {
	return b.malformed.Load()
}

func (b *Bus) track(sub *nats.Subscription) {
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
}

// PublishImage publishes img on the image output subject.
func (b *Bus) PublishImage(ctx context.Context, img ros.Image) error {
	msg, err := newMsg(ctx, b.imageSubj, img)
	if err != nil {
		return err
	}
	return b.nc.PublishMsg(msg)
}

// PublishResult publishes a retrieval notification on the input topic.
func (b *Bus) PublishResult(ctx context.Context, result ros.RetrievalQueryResult) error {
	msg, err := newMsg(ctx, b.topicSubj, result)
	if err != nil {
		return err
	}
	return b.nc.PublishMsg(msg)
}

// SubscribeResults delivers every well formed notification on the input topic to handler.
// Malformed messages are logged and dropped.
func (b *Bus) SubscribeResults(handler transport.ResultHandler) error {
	sub, err := b.nc.Subscribe(b.topicSubj, func(msg *nats.Msg) {
		var result ros.RetrievalQueryResult
		if err := json.Unmarshal(msg.Data, &result); err != nil {
			b.dropMalformed("retrieval result", msg, err)
			return
		}
		handler(msgContext(msg), result)
	})
	if err != nil {
		return errors.Wrapf(err, "cannot subscribe to %q", b.topicSubj)
	}
	b.track(sub)
	return nil
}

// ListenImages delivers every image published on the output subject to handler.
func (b *Bus) ListenImages(handler func(ctx context.Context, img ros.Image)) error {
	sub, err := b.nc.Subscribe(b.imageSubj, func(msg *nats.Msg) {
		var img ros.Image
		if err := json.Unmarshal(msg.Data, &img); err != nil {
			b.dropMalformed("image", msg, err)
			return
		}
		handler(msgContext(msg), img)
	})
	if err != nil {
		return errors.Wrapf(err, "cannot subscribe to %q", b.imageSubj)
	}
	b.track(sub)
	return nil
}

// ServeQueries answers requests on the service subject with handler.
func (b *Bus) ServeQueries(handler transport.QueryHandler) error {
	sub, err := b.nc.Subscribe(b.svcSubj, func(msg *nats.Msg) {
		var reply serviceReply
		var req ros.VisualizeQueryRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			b.dropMalformed("request", msg, err)
			reply.Error = errors.Wrap(err, "malformed request").Error()
		} else if resp, err := handler(msgContext(msg), req); err != nil {
			reply.Error = err.Error()
		} else {
			reply.Response = &resp
		}
		data, err := json.Marshal(reply)
		if err != nil {
			b.logger.Errorw("cannot encode reply", "error", err)
			return
		}
		if err := msg.Respond(data); err != nil {
			b.logger.Warnw("cannot send reply", "error", err)
		}
	})
	if err != nil {
		return errors.Wrapf(err, "cannot serve %q", b.svcSubj)
	}
	b.track(sub)
	return nil
}

// Call issues a synchronous visualize_query request.
func (b *Bus) Call(ctx context.Context, req ros.VisualizeQueryRequest) (ros.VisualizeQueryResponse, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCallTimeout)
		defer cancel()
	}
	msg, err := newMsg(ctx, b.svcSubj, req)
	if err != nil {
		return ros.VisualizeQueryResponse{}, err
	}
	resp, err := b.nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return ros.VisualizeQueryResponse{}, errors.Wrapf(err, "request to %q failed", b.svcSubj)
	}
	var reply serviceReply
	if err := json.Unmarshal(resp.Data, &reply); err != nil {
		return ros.VisualizeQueryResponse{}, errors.Wrap(err, "malformed reply")
	}
	if reply.Error != "" {
		return ros.VisualizeQueryResponse{}, errors.New(reply.Error)
	}
	if reply.Response == nil {
		return ros.VisualizeQueryResponse{}, errors.New("reply has neither response nor error")
	}
	return *reply.Response, nil
}

// Close unsubscribes everything the bus subscribed and, when the bus dialed the
// connection itself, drains and closes it.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		subs := b.subs
		b.subs = nil
		b.mu.Unlock()

		var err error
		for _, sub := range subs {
			err = multierr.Combine(err, sub.Unsubscribe())
		}
		if b.ownsConn {
			if ferr := b.nc.Flush(); ferr != nil && !errors.Is(ferr, nats.ErrConnectionClosed) {
				err = multierr.Combine(err, ferr)
			}
			b.nc.Close()
		}
		b.closeErr = err
	})
	return b.closeErr
}
