package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/agentoven/agentmarket/internal/ledger"
)

func event(name string) ledger.Event {
	return ledger.Event{
		Program:   ledger.AddressFromSeed("program"),
		Name:      name,
		Data:      map[string]string{"job_id": "j1"},
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestBufferKeepsLastN(t *testing.T) {
	b := NewBuffer(2)
	b.Publish(context.Background(), []ledger.Event{event("a"), event("b"), event("c")})

	recent := b.Recent(0)
	require.Len(t, recent, 2)
	require.Equal(t, "b", recent[0].Name)
	require.Equal(t, uint64(3), recent[1].Seq)

	require.Len(t, b.Recent(1), 1)
	since := b.Since(2)
	require.Len(t, since, 1)
	require.Equal(t, "c", since[0].Name)
}

func TestBufferSubscribe(t *testing.T) {
	b := NewBuffer(10)
	ch := b.Subscribe()
	b.Publish(context.Background(), []ledger.Event{event("jobInitialized")})

	select {
	case rec := <-ch:
		require.Equal(t, "jobInitialized", rec.Name)
		require.Equal(t, uint64(1), rec.Seq)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	b.Unsubscribe(ch)
	b.Unsubscribe(ch)
	_, open := <-ch
	require.False(t, open)
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSinkEncodesEvents(t *testing.T) {
	w := &fakeWriter{}
	s := NewKafkaSink(w, 0)
	s.Publish(context.Background(), []ledger.Event{event("escrowReleased")})

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	require.Equal(t, ledger.AddressFromSeed("program").Hex(), string(msg.Key))
	require.Equal(t, "event", msg.Headers[0].Key)
	require.Equal(t, "escrowReleased", string(msg.Headers[0].Value))

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	require.Equal(t, "escrowReleased", got["name"])

	require.NoError(t, s.Close())
	require.True(t, w.closed)
}

func TestKafkaSinkSwallowsWriteErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	s := NewKafkaSink(w, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Publish(ctx, []ledger.Event{event("a")})
	require.Len(t, w.msgs, 1)
}
