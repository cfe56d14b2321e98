package analytics

import (
	"sort"
	"sync"
	"time"
)

// bufferEntry is one buffered event together with its delivery bookkeeping.
// seq is a monotonically increasing number assigned on every push, including
// requeues; flush waiters track attempt completion by seq.
type bufferEntry struct {
	event   *Event
	seq     uint64
	readyAt time.Time
}

// eventBuffer holds events waiting for their next send attempt, ordered by
// readyAt (earliest first). Fresh events carry a zero delay and sort before
// retry entries scheduled in the future, so retried events never starve new
// ones. All methods are safe for concurrent use.
type eventBuffer struct {
	mu       sync.Mutex
	entries  []bufferEntry
	nextSeq  uint64
	capacity int // 0 means unbounded
}

func newEventBuffer(capacity int) *eventBuffer {
	return &eventBuffer{capacity: capacity}
}

// push inserts an event that becomes eligible for sending after delay.
// It returns ErrBufferOverflow without inserting when the buffer is bounded
// and full; push never blocks.
func (b *eventBuffer) push(event *Event, delay time.Duration) (uint64, error) {
	return b.pushAt(event, time.Now().Add(delay))
}

// pushAt inserts an event that becomes eligible at readyAt, keeping the
// buffer sorted. Entries with equal readyAt keep insertion order.
func (b *eventBuffer) pushAt(event *Event, readyAt time.Time) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.capacity > 0 && len(b.entries) >= b.capacity {
		return 0, ErrBufferOverflow
	}

	b.nextSeq++
	entry := bufferEntry{event: event, seq: b.nextSeq, readyAt: readyAt}

	i := sort.Search(len(b.entries), func(i int) bool {
		return b.entries[i].readyAt.After(readyAt)
	})
	b.entries = append(b.entries, bufferEntry{})
	copy(b.entries[i+1:], b.entries[i:])
	b.entries[i] = entry

	return entry.seq, nil
}

// pull removes and returns up to max entries whose readyAt is not after now.
func (b *eventBuffer) pull(max int, now time.Time) []bufferEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := sort.Search(len(b.entries), func(i int) bool {
		return b.entries[i].readyAt.After(now)
	})
	if n > max {
		n = max
	}
	if n == 0 {
		return nil
	}
	out := make([]bufferEntry, n)
	copy(out, b.entries[:n])
	b.entries = append(b.entries[:0], b.entries[n:]...)
	return out
}

// pullAll removes and returns every buffered entry regardless of readiness.
// Used by explicit flushes and by the shutdown drain.
func (b *eventBuffer) pullAll() []bufferEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.entries
	b.entries = nil
	return out
}

// size returns the number of buffered entries.
func (b *eventBuffer) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// readyCount returns the number of entries eligible for sending at now.
func (b *eventBuffer) readyCount(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sort.Search(len(b.entries), func(i int) bool {
		return b.entries[i].readyAt.After(now)
	})
}

// nextReadyAt returns the earliest readiness time, or false when empty.
func (b *eventBuffer) nextReadyAt() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return time.Time{}, false
	}
	return b.entries[0].readyAt, true
}

// seqSnapshot returns the set of sequence numbers currently buffered.
func (b *eventBuffer) seqSnapshot() map[uint64]struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	seqs := make(map[uint64]struct{}, len(b.entries))
	for _, e := range b.entries {
		seqs[e.seq] = struct{}{}
	}
	return seqs
}
