// Package frame implements the link frame envelope: an optional topic id
// plus a tagged verb payload, and its compact binary encoding.
package frame

import (
	"fmt"
	"io"
)

var (
	// Debug can be set to get frames as they're encoded and decoded
	Debug io.Writer
)

// Frame is the atomic unit carried over the link. Frames without a topic
// are requests that have not been assigned a conversation yet.
type Frame struct {
	Topic    uint32
	HasTopic bool
	Verb     Verb
}

// New returns a request frame for v with the topic unset.
func New(v Verb) Frame {
	return Frame{Verb: v}
}

// Reply returns a frame carrying v on the same topic as f.
func (f Frame) Reply(v Verb) Frame {
	return Frame{
		Topic:    f.Topic,
		HasTopic: f.HasTopic,
		Verb:     v,
	}
}

// TopicID returns the topic of f and whether it is set.
func (f Frame) TopicID() (uint32, bool) {
	return f.Topic, f.HasTopic
}

// WithTopic returns a copy of f addressed to topic id.
func (f Frame) WithTopic(id uint32) Frame {
	f.Topic = id
	f.HasTopic = true
	return f
}

func (f Frame) String() string {
	topic := "-"
	if f.HasTopic {
		topic = fmt.Sprint(f.Topic)
	}
	verb := "<nil>"
	if f.Verb != nil {
		verb = f.Verb.String()
	}
	return fmt.Sprintf("{Frame Topic:%s Verb:%s}", topic, verb)
}
