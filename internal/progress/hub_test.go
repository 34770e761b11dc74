package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesEvents(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	event := Event{SessionID: "s-1", MessageID: "msg-1", Result: "success", Processed: 1, Total: 3}
	h.Publish(event)

	got := <-ch
	assert.Equal(t, event, got)
}

func TestPublishFansOut(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)

	assert.Equal(t, 2, h.SubscriberCount())

	h.Publish(Event{MessageID: "msg-1"})
	assert.Equal(t, "msg-1", (<-a).MessageID)
	assert.Equal(t, "msg-1", (<-b).MessageID)
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	// Overfill the buffer; the extra events are dropped, not blocked on.
	for i := 0; i < 100; i++ {
		h.Publish(Event{Processed: i})
	}

	assert.Len(t, ch, cap(ch))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	h.Unsubscribe(ch)

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, h.SubscriberCount())

	// Double unsubscribe is a no-op.
	h.Unsubscribe(ch)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	h := NewHub()
	h.Publish(Event{MessageID: "msg-1"})
}

func TestCloseShutsDownSubscribers(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	h.Close()

	_, ok := <-ch
	require.False(t, ok)

	// Subscribing after close yields an already-closed channel.
	late := h.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}
