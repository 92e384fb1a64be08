package events

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/RhineAGI/rhine/pkg/conversation"
)

type EventType string

const (
	EventTypeStart             EventType = "start"
	EventTypePartialCompletion EventType = "partial"
	EventTypeFinal             EventType = "final"
	EventTypeError             EventType = "error"
)

// EventMetadata ties an event to the conversation position it was generated
// for.
type EventMetadata struct {
	ID       conversation.NodeID `json:"message_id"`
	ParentID conversation.NodeID `json:"parent_id"`
	Model    string              `json:"model,omitempty"`
}

// Event is what the streaming loop publishes while a completion is being
// received: one start event, any number of partials, then a final or an
// error.
type Event struct {
	Type EventType     `json:"type"`
	Meta EventMetadata `json:"meta"`

	// Delta is the new fragment for partial events; Completion is the text
	// accumulated so far (final text for final events).
	Delta      string `json:"delta,omitempty"`
	Completion string `json:"completion,omitempty"`
	Error      string `json:"error,omitempty"`
}

func NewStartEvent(meta EventMetadata) *Event {
	return &Event{Type: EventTypeStart, Meta: meta}
}

func NewPartialCompletionEvent(meta EventMetadata, delta string, completion string) *Event {
	return &Event{Type: EventTypePartialCompletion, Meta: meta, Delta: delta, Completion: completion}
}

func NewFinalEvent(meta EventMetadata, text string) *Event {
	return &Event{Type: EventTypeFinal, Meta: meta, Completion: text}
}

func NewErrorEvent(meta EventMetadata, err error) *Event {
	return &Event{Type: EventTypeError, Meta: meta, Error: err.Error()}
}

// NewEventFromJSON decodes an event previously published through a
// PublisherManager.
func NewEventFromJSON(b []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, errors.Wrap(err, "failed to decode event")
	}
	return &ev, nil
}
