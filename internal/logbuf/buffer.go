// Package logbuf holds each chain's captured node output: a bounded ring
// of recent lines plus live subscriptions for streaming consumers.
package logbuf

import (
	"sync"
	"time"

	"github.com/localchain-dev/localchain/internal/domain"
)

// subscriber channels are buffered; a consumer that falls this far
// behind starts losing lines (detectable via Seq gaps).
const subscriberBacklog = 256

// Buffer is a bounded, append-only ring of log lines. Appends beyond
// capacity overwrite the oldest entries. Safe for one writer (the
// runner's pump) and many readers.
type Buffer struct {
	mu      sync.Mutex
	lines   []domain.LogLine
	head    int // next write position
	count   int
	seq     uint64
	subs    map[int]chan domain.LogLine
	nextSub int
	closed  bool
}

// New creates a buffer retaining the most recent capacity lines.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		lines: make([]domain.LogLine, capacity),
		subs:  make(map[int]chan domain.LogLine),
	}
}

// Append records one line and fans it out to live subscribers. Slow
// subscribers lose lines rather than blocking the reader pump.
func (b *Buffer) Append(source domain.LogSource, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.seq++
	line := domain.LogLine{
		Seq:    b.seq,
		Time:   time.Now(),
		Source: source,
		Text:   text,
	}

	b.lines[b.head] = line
	b.head = (b.head + 1) % len(b.lines)
	if b.count < len(b.lines) {
		b.count++
	}

	for _, ch := range b.subs {
		select {
		case ch <- line:
		default:
		}
	}
}

// Lines returns the retained lines, oldest first.
func (b *Buffer) Lines() []domain.LogLine {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.linesLocked()
}

// Subscribe returns a replay of the retained lines plus a live channel
// for subsequent appends. The replay and the live feed do not overlap.
// cancel must be called when the consumer is done; the channel is closed
// on cancel or when the buffer itself closes.
func (b *Buffer) Subscribe() (replay []domain.LogLine, ch <-chan domain.LogLine, cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	replay = b.linesLocked()

	c := make(chan domain.LogLine, subscriberBacklog)
	if b.closed {
		close(c)
		return replay, c, func() {}
	}

	id := b.nextSub
	b.nextSub++
	b.subs[id] = c

	cancel = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return replay, c, cancel
}

// Close drops all subscribers. Retained lines stay readable so the API
// can still serve the tail of a stopped chain until deletion.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

func (b *Buffer) linesLocked() []domain.LogLine {
	out := make([]domain.LogLine, 0, b.count)
	start := b.head - b.count
	if start < 0 {
		start += len(b.lines)
	}
	for i := 0; i < b.count; i++ {
		out = append(out, b.lines[(start+i)%len(b.lines)])
	}
	return out
}
