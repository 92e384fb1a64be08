package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RhineAGI/rhine/pkg/conversation"
)

func TestEventJSONRoundTrip(t *testing.T) {
	meta := EventMetadata{
		ID:       conversation.NewNodeID(),
		ParentID: conversation.NewNodeID(),
		Model:    "test-model",
	}

	ev := NewPartialCompletionEvent(meta, "wor", "hello wor")

	b, err := json.Marshal(ev)
	require.NoError(t, err)

	decoded, err := NewEventFromJSON(b)
	require.NoError(t, err)
	assert.Equal(t, EventTypePartialCompletion, decoded.Type)
	assert.Equal(t, "wor", decoded.Delta)
	assert.Equal(t, "hello wor", decoded.Completion)
	assert.Equal(t, meta.ID, decoded.Meta.ID)
	assert.Equal(t, "test-model", decoded.Meta.Model)
}

func TestPublisherManagerForwardsToSubscribedTopic(t *testing.T) {
	ch := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer func() { _ = ch.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, err := ch.Subscribe(ctx, "chat")
	require.NoError(t, err)

	pm := NewPublisherManager()
	pm.SubscribePublisher("chat", ch)

	meta := EventMetadata{ID: conversation.NewNodeID(), Model: "test-model"}
	require.NoError(t, pm.Publish(NewStartEvent(meta)))
	require.NoError(t, pm.Publish(NewFinalEvent(meta, "done")))

	msg := <-messages
	msg.Ack()
	assert.Equal(t, "0", msg.Metadata.Get("sequence_number"))

	ev, err := NewEventFromJSON(msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, EventTypeStart, ev.Type)

	msg = <-messages
	msg.Ack()
	assert.Equal(t, "1", msg.Metadata.Get("sequence_number"))

	ev, err = NewEventFromJSON(msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, EventTypeFinal, ev.Type)
	assert.Equal(t, "done", ev.Completion)
}

func TestPublishBlindToleratesNoSubscribers(t *testing.T) {
	pm := NewPublisherManager()
	pm.PublishBlind(NewStartEvent(EventMetadata{ID: conversation.NewNodeID()}))
}
