// Package events fans committed ledger events out to in-process
// subscribers, the log and Kafka.
package events

import (
	"context"
	"sync"

	"github.com/agentoven/agentmarket/internal/ledger"
)

// Record is a committed event with its position in the stream.
type Record struct {
	Seq uint64 `json:"seq"`
	ledger.Event
}

// Buffer is a thread-safe ring buffer that keeps the last N events and
// streams new ones to subscribers.
type Buffer struct {
	mu          sync.RWMutex
	records     []Record
	maxRecords  int
	seq         uint64
	subscribers map[chan Record]struct{}
}

// NewBuffer creates a buffer that retains up to maxRecords events.
func NewBuffer(maxRecords int) *Buffer {
	if maxRecords <= 0 {
		maxRecords = 1
	}
	return &Buffer{
		records:     make([]Record, 0, maxRecords),
		maxRecords:  maxRecords,
		subscribers: make(map[chan Record]struct{}),
	}
}

// Publish implements ledger.EventSink.
func (b *Buffer) Publish(_ context.Context, evs []ledger.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ev := range evs {
		b.seq++
		rec := Record{Seq: b.seq, Event: ev}
		if len(b.records) >= b.maxRecords {
			b.records = b.records[1:]
		}
		b.records = append(b.records, rec)

		for ch := range b.subscribers {
			select {
			case ch <- rec:
			default:
				// slow subscriber, drop
			}
		}
	}
}

// Recent returns the last n events, oldest first. n <= 0 returns all.
func (b *Buffer) Recent(n int) []Record {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := len(b.records)
	if n <= 0 || n > total {
		n = total
	}
	out := make([]Record, n)
	copy(out, b.records[total-n:])
	return out
}

// Since returns retained events with a sequence number above seq.
func (b *Buffer) Since(seq uint64) []Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := []Record{}
	for _, rec := range b.records {
		if rec.Seq > seq {
			out = append(out, rec)
		}
	}
	return out
}

// Subscribe returns a channel that receives new events. Call Unsubscribe
// when done.
func (b *Buffer) Subscribe() chan Record {
	ch := make(chan Record, 64)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Buffer) Unsubscribe(ch chan Record) {
	b.mu.Lock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
	b.mu.Unlock()
}
