package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []string
	)
	d := NewDispatcher(SenderFunc(func(ctx context.Context, msg Message) error {
		mu.Lock()
		sent = append(sent, msg.To)
		mu.Unlock()
		return nil
	}), discardLogger(), 8)

	d.Start()
	require.True(t, d.Enqueue(Message{To: "a@example.test"}))
	require.True(t, d.Enqueue(Message{To: "b@example.test"}))
	d.Stop()

	require.Equal(t, []string{"a@example.test", "b@example.test"}, sent)
}

func TestDispatcherStopDrainsQueue(t *testing.T) {
	delivered := make(chan Message, 4)
	d := NewDispatcher(SenderFunc(func(ctx context.Context, msg Message) error {
		delivered <- msg
		return nil
	}), discardLogger(), 4)

	// Queue before the worker runs; Stop must still flush everything.
	require.True(t, d.Enqueue(Message{To: "a@example.test"}))
	require.True(t, d.Enqueue(Message{To: "b@example.test"}))
	d.Start()
	d.Stop()

	require.Len(t, delivered, 2)
}

func TestDispatcherRejectsWhenFull(t *testing.T) {
	// Capacity 1, no worker running: the second enqueue has nowhere to go.
	d := NewDispatcher(SenderFunc(func(ctx context.Context, msg Message) error {
		return nil
	}), discardLogger(), 1)

	require.True(t, d.Enqueue(Message{To: "a@example.test"}))
	require.False(t, d.Enqueue(Message{To: "b@example.test"}))
}

func TestDispatcherSurvivesSenderErrors(t *testing.T) {
	delivered := make(chan string, 2)
	d := NewDispatcher(SenderFunc(func(ctx context.Context, msg Message) error {
		if msg.To == "bad@example.test" {
			return errors.New("relay refused")
		}
		delivered <- msg.To
		return nil
	}), discardLogger(), 4)

	d.Start()
	require.True(t, d.Enqueue(Message{To: "bad@example.test"}))
	require.True(t, d.Enqueue(Message{To: "good@example.test"}))

	select {
	case to := <-delivered:
		require.Equal(t, "good@example.test", to)
	case <-time.After(2 * time.Second):
		t.Fatal("delivery after a failed send never happened")
	}
	d.Stop()
}
