package dashboard

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/karwanua/internal/gibs"
	"github.com/i474232898/karwanua/internal/observability"
)

func TestBus_FanOut(t *testing.T) {
	bus := NewBus(observability.Discard())
	a, b := bus.Subscribe(), bus.Subscribe()
	defer bus.Unsubscribe(a)
	defer bus.Unsubscribe(b)

	bus.Publish(Event{Kind: EventLayerChanged, Layer: gibs.LayerNDVI})

	for _, ch := range []chan Event{a, b} {
		select {
		case e := <-ch:
			assert.Equal(t, EventLayerChanged, e.Kind)
			assert.Equal(t, gibs.LayerNDVI, e.Layer)
		default:
			t.Fatal("event not delivered")
		}
	}
}

func TestBus_UnsubscribeClosesAndIsIdempotent(t *testing.T) {
	bus := NewBus(observability.Discard())
	ch := bus.Subscribe()
	bus.Unsubscribe(ch)
	bus.Unsubscribe(ch)

	_, ok := <-ch
	assert.False(t, ok)

	require.NotPanics(t, func() { bus.Publish(Event{Kind: EventDateChanged, Date: "2024-06-01"}) })
}

func TestBus_SlowSubscriberDoesNotBlockAndDropIsLogged(t *testing.T) {
	var buf bytes.Buffer
	bus := NewBus(slog.New(slog.NewTextHandler(&buf, nil)))
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	for i := 0; i < cap(ch); i++ {
		bus.Publish(Event{Kind: EventDateChanged})
	}
	assert.Empty(t, buf.String())

	bus.Publish(Event{Kind: EventLocationDetected})
	assert.Len(t, ch, cap(ch))
	assert.Contains(t, buf.String(), "dashboard event dropped")
	assert.Contains(t, buf.String(), "kind=location_detected")
}

func TestBus_NilDropsEvents(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() { bus.Publish(Event{Kind: EventLocationDetected}) })
}
