// Package bursttracker accumulates packet/byte counters and
// throughput for a (flowId, burstId) pair, resetting whenever a gap
// between packets on that pair exceeds its TTL.
//
// Author: KleaSCM
// Email: KleaSCM@gmail.com
package bursttracker

import (
	"math"
	"sync"

	"github.com/kleaSCM/tunnelscope/internal/heapindex"
	"github.com/kleaSCM/tunnelscope/internal/model"
)

type burstKey struct {
	flowID  uint64
	burstID uint64
}

type state struct {
	packetCount uint64
	byteCount   uint64
	firstSeen   float64
	lastSeen    float64
}

// Tracker computes rolling BurstMetrics per (flowId, burstId),
// evicting the least-recently-touched burst once maxBursts is
// exceeded.
type Tracker struct {
	mu sync.Mutex

	ttl       float64
	maxBursts int

	bursts map[burstKey]*state
	index  *heapindex.Index
}

// New creates a Tracker. ttlSeconds is the inactivity gap past which a
// burst's counters reset rather than accumulate.
func New(ttlSeconds float64, maxBursts int) *Tracker {
	return &Tracker{
		ttl:       ttlSeconds,
		maxBursts: maxBursts,
		bursts:    make(map[burstKey]*state),
		index:     heapindex.New(),
	}
}

// Record folds one packet of the given length into the burst
// identified by (flowID, burstID) and returns the resulting metrics.
// A flowID of 0 (untracked flow) yields an absent result. Negative
// lengths clamp to 0.
func (t *Tracker) Record(flowID, burstID uint64, timestamp float64, length int) (*model.BurstMetrics, bool) {
	if flowID == 0 {
		return nil, false
	}
	if length < 0 {
		length = 0
	}

	key := burstKey{flowID: flowID, burstID: burstID}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictExpired(timestamp)
	t.compactIfBloated()

	s, ok := t.bursts[key]
	if !ok {
		if len(t.bursts) >= t.maxBursts {
			t.evictOldest()
		}
		s = &state{firstSeen: timestamp, lastSeen: timestamp}
		t.bursts[key] = s
	} else if timestamp-s.lastSeen > t.ttl {
		s.packetCount = 0
		s.byteCount = 0
		s.firstSeen = timestamp
	}

	s.packetCount++
	s.byteCount += uint64(length)
	s.lastSeen = timestamp
	t.index.Touch(key, timestamp)

	durationMs := int64(math.Round((s.lastSeen - s.firstSeen) * 1000))
	if durationMs < 1 {
		durationMs = 1
	}

	return &model.BurstMetrics{
		PacketCount:      s.packetCount,
		ByteCount:        s.byteCount,
		DurationMs:       durationMs,
		PacketsPerSecond: float64(s.packetCount) * 1000 / float64(durationMs),
		BytesPerSecond:   float64(s.byteCount) * 1000 / float64(durationMs),
	}, true
}

// evictExpired drops bursts idle for strictly longer than ttl; a gap
// exactly equal to ttl keeps the burst. index.EvictExpired removes
// entries with lastSeen+ttl <= its cutoff, so the cutoff is the float
// just below now.
func (t *Tracker) evictExpired(now float64) {
	cutoff := math.Nextafter(now, math.Inf(-1))
	for _, k := range t.index.EvictExpired(cutoff, t.ttl) {
		delete(t.bursts, k.(burstKey))
	}
}

func (t *Tracker) compactIfBloated() {
	if t.index.HeapSize() > t.maxBursts*4 {
		t.index.Compact()
	}
}

func (t *Tracker) evictOldest() {
	if k, ok := t.index.PopOldest(); ok {
		delete(t.bursts, k.(burstKey))
	}
}

// Len reports the number of currently tracked bursts.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.bursts)
}
