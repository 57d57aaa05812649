// Package transport defines the channels the visualization service talks over and an
// in-process broker implementing all of them.
package transport

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"go.viam.com/queryvis/ros"
)

// ErrClosed is returned by operations on a closed channel.
var ErrClosed = errors.New("transport closed")

// ImagePublisher broadcasts composite images. It must be safe for concurrent use.
type ImagePublisher interface {
	PublishImage(ctx context.Context, img ros.Image) error
	Close() error
}

// ResultHandler receives one retrieval notification.
type ResultHandler func(ctx context.Context, msg ros.RetrievalQueryResult)

// ResultSubscriber delivers retrieval notifications to a handler.
type ResultSubscriber interface {
	SubscribeResults(handler ResultHandler) error
	Close() error
}

// QueryHandler answers one synchronous visualize_query call.
type QueryHandler func(ctx context.Context, req ros.VisualizeQueryRequest) (ros.VisualizeQueryResponse, error)

// ServiceEndpoint routes synchronous calls to a handler.
type ServiceEndpoint interface {
	ServeQueries(handler QueryHandler) error
	Close() error
}

// QueryCaller is the client side of a ServiceEndpoint.
type QueryCaller interface {
	Call(ctx context.Context, req ros.VisualizeQueryRequest) (ros.VisualizeQueryResponse, error)
}

// SubjectForName maps a ROS graph name to a dotted subject: "/retrieval_result" becomes
// "retrieval_result" and "/a/b" becomes "a.b".
func SubjectForName(name string) string {
	return strings.ReplaceAll(strings.Trim(name, "/"), "/", ".")
}
