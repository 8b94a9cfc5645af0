package progresshub

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishDeliversToRegisteredSubscriber(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Close()

	sub := &Subscriber{ID: "s1", Events: make(chan Event, 4)}
	h.Register(sub)
	require.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, time.Millisecond)

	id := uuid.New()
	h.Publish(Event{Kind: EventProgress, ConversionID: id, Progress: 0.5})

	select {
	case ev := <-sub.Events:
		require.Equal(t, EventProgress, ev.Kind)
		require.Equal(t, id, ev.ConversionID)
		require.Equal(t, 0.5, ev.Progress)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestHub_UnregisterClosesEventsChannel(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Close()

	sub := &Subscriber{ID: "s1", Events: make(chan Event, 1)}
	h.Register(sub)
	require.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, time.Millisecond)

	h.Unregister(sub)
	require.Eventually(t, func() bool {
		_, ok := <-sub.Events
		return !ok
	}, time.Second, time.Millisecond)
}

func TestHub_CloseClosesAllSubscribers(t *testing.T) {
	h := NewHub()
	go h.Run()

	sub := &Subscriber{ID: "s1", Events: make(chan Event, 1)}
	h.Register(sub)
	require.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, time.Millisecond)

	h.Close()
	require.Eventually(t, func() bool {
		_, ok := <-sub.Events
		return !ok
	}, time.Second, time.Millisecond)
}
