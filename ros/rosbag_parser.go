// Package ros defines the ROS message shapes exchanged by the visualization service and
// helpers for reading them back out of rosbags.
package ros

import (
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/edaniels/gobag/rosbag"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// ReadBag reads the contents of a rosbag into a gobag data structure.
func ReadBag(filename string) (*rosbag.RosBag, error) {
	//nolint:gosec
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open input file")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	rb := rosbag.NewRosBag()

	if err := rb.Read(f); err != nil {
		return nil, errors.Wrapf(err, "unable to create ros bag, error")
	}

	return rb, nil
}

// bagMessage is the JSON line gobag emits for every message in a topic.
type bagMessage[T any] struct {
	Meta struct {
		Secs  int
		Nsecs int
	}
	Data T
}

// MessagesForTopic decodes every message recorded on topic into T, in recording order.
func MessagesForTopic[T any](rb *rosbag.RosBag, topic string) ([]T, error) {
	if err := rb.ParseTopicsToJSON(
		"",
		func(int64) bool { return true },
		func(t string) bool { return t == topic },
		false,
	); err != nil {
		return nil, errors.Wrapf(err, "error while parsing bag to JSON")
	}

	msgs := rb.TopicsAsJSON[topic]
	if msgs == nil {
		return nil, errors.Errorf("no messages for topic %s", topic)
	}
	return decodeMessageLines[T](msgs)
}

func decodeMessageLines[T any](msgs *bytes.Buffer) ([]T, error) {
	var all []T
	for {
		line, err := msgs.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var message bagMessage[T]
			if jerr := json.Unmarshal(line, &message); jerr != nil {
				return nil, errors.Wrapf(jerr, "error decoding message %d", len(all))
			}
			all = append(all, message.Data)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
	}
	return all, nil
}
