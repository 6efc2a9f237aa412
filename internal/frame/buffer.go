package frame

import "sync"

// Buffer is a fixed-capacity ring of frames ordered by capture timestamp.
// Once full, appending evicts the oldest frame first, so the buffer always
// holds the most recent span of the stream. All access goes through one
// mutex; readers never observe a partially evicted state.
type Buffer struct {
	mu    sync.Mutex
	ring  []Frame
	head  int // index of the oldest frame
	count int
}

// NewBuffer creates a buffer holding at most capacity frames.
// Capacity must be positive.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		panic("frame: buffer capacity must be positive")
	}
	return &Buffer{ring: make([]Frame, capacity)}
}

// Append inserts f, evicting the oldest frame if the buffer is full.
func (b *Buffer) Append(f Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tail := (b.head + b.count) % len(b.ring)
	b.ring[tail] = f
	if b.count == len(b.ring) {
		b.head = (b.head + 1) % len(b.ring)
	} else {
		b.count++
	}
}

// Len returns the number of buffered frames.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return len(b.ring)
}

// Latest returns the most recently appended frame, or false if empty.
func (b *Buffer) Latest() (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return Frame{}, false
	}
	return b.ring[(b.head+b.count-1)%len(b.ring)], true
}

// Slice returns a copy of the contiguous frames with timestamps in
// [from, to]. If from precedes the oldest retained frame the slice silently
// starts at the oldest available frame: near the start of the stream the
// pre-roll may be shorter than requested. The returned slice is a snapshot;
// later appends and evictions do not touch it.
func (b *Buffer) Slice(from, to float64) []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Frame
	for i := 0; i < b.count; i++ {
		f := b.ring[(b.head+i)%len(b.ring)]
		if f.Timestamp < from {
			continue
		}
		if f.Timestamp > to {
			break
		}
		out = append(out, f)
	}
	return out
}
