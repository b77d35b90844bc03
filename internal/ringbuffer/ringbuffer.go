// Package ringbuffer implements a fixed-capacity, overwrite-oldest
// window of recent packet samples for in-memory inspection (e.g. a
// debug UI), independent of the append-only on-disk stream.
//
// Author: KleaSCM
// Email: KleaSCM@gmail.com
package ringbuffer

import (
	"sync"

	"github.com/kleaSCM/tunnelscope/internal/model"
)

// RingBuffer holds up to capacity samples, overwriting the oldest once
// full. Safe for concurrent use by one producer and one or more
// concurrent snapshot readers.
type RingBuffer struct {
	mu       sync.Mutex
	entries  []model.PacketSample
	capacity int
	start    int // index of the oldest entry
	size     int
}

// New creates a RingBuffer with the given fixed capacity. capacity
// must be >= 1 (the configuration layer enforces this floor).
func New(capacity int) *RingBuffer {
	return &RingBuffer{
		entries:  make([]model.PacketSample, capacity),
		capacity: capacity,
	}
}

// Append adds a sample, overwriting the oldest entry once the buffer
// is full.
func (r *RingBuffer) Append(sample model.PacketSample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size < r.capacity {
		idx := (r.start + r.size) % r.capacity
		r.entries[idx] = sample
		r.size++
		return
	}

	r.entries[r.start] = sample
	r.start = (r.start + 1) % r.capacity
}

// Snapshot returns up to limit of the most recent samples, oldest
// first. limit<=0 means "no limit" (return everything currently
// held).
func (r *RingBuffer) Snapshot(limit int) []model.PacketSample {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := r.size
	if limit > 0 && limit < count {
		count = limit
	}

	out := make([]model.PacketSample, count)
	// Oldest-first ordering over the last `count` entries: skip the
	// (size-count) oldest entries within the current window.
	skip := r.size - count
	for i := 0; i < count; i++ {
		idx := (r.start + skip + i) % r.capacity
		out[i] = r.entries[idx]
	}
	return out
}

// Len reports the number of samples currently held.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}
