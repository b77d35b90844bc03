// Package flowtracker correlates packets into direction-insensitive
// flows and assigns each a stable flowId and a burstId that advances
// when a gap between packets on the flow exceeds a threshold.
//
// Author: KleaSCM
// Email: KleaSCM@gmail.com
package flowtracker

import (
	"sync"

	"github.com/kleaSCM/tunnelscope/internal/heapindex"
	"github.com/kleaSCM/tunnelscope/internal/model"
)

// state is the bookkeeping kept per live flow.
type state struct {
	flowID    uint64
	firstSeen float64
	lastSeen  float64
	burstID   uint64
}

// Tracker assigns flow and burst identifiers to packets, evicting the
// least-recently-touched flow once capacity is exceeded and expiring
// flows that have gone quiet past flowTTL.
type Tracker struct {
	mu sync.Mutex

	flowTTL         float64
	burstThreshold  float64
	maxTrackedFlows int

	flows      map[model.FlowKey]*state
	index      *heapindex.Index
	nextFlowID uint64

	onEvict func(key model.FlowKey, flowID uint64, firstSeen, lastSeen float64)
}

// New creates a Tracker. flowTTLSeconds and maxTrackedFlows are
// expected to already satisfy the configuration floors (>=1);
// burstThresholdMs is converted to seconds internally.
func New(flowTTLSeconds float64, burstThresholdMs float64, maxTrackedFlows int) *Tracker {
	return &Tracker{
		flowTTL:         flowTTLSeconds,
		burstThreshold:  burstThresholdMs / 1000.0,
		maxTrackedFlows: maxTrackedFlows,
		flows:           make(map[model.FlowKey]*state),
		index:           heapindex.New(),
	}
}

// OnEvict registers a callback invoked whenever a flow is evicted,
// either by TTL expiry or by capacity eviction. Used by the core to
// archive flow summaries before they're forgotten.
func (t *Tracker) OnEvict(fn func(key model.FlowKey, flowID uint64, firstSeen, lastSeen float64)) {
	t.onEvict = fn
}

// Record correlates metadata into a flow and returns its (flowId,
// burstId). Packets with an absent source or destination port are not
// trackable flows and yield (0, 0).
func (t *Tracker) Record(meta *model.PacketMetadata, timestamp float64) (flowID, burstID uint64) {
	if meta == nil || meta.SrcPort == nil || meta.DstPort == nil {
		return 0, 0
	}

	key := model.NewFlowKey(meta.SrcAddress, meta.DstAddress, *meta.SrcPort, *meta.DstPort, meta.Transport)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictExpired(timestamp)
	t.compactIfBloated()

	if s, ok := t.flows[key]; ok {
		if timestamp-s.lastSeen > t.burstThreshold {
			s.burstID++
		}
		s.lastSeen = timestamp
		t.index.Touch(key, timestamp)
		return s.flowID, s.burstID
	}

	if len(t.flows) >= t.maxTrackedFlows {
		t.evictOldest()
	}

	t.nextFlowID++
	s := &state{flowID: t.nextFlowID, firstSeen: timestamp, lastSeen: timestamp}
	t.flows[key] = s
	t.index.Touch(key, timestamp)
	return s.flowID, s.burstID
}

// evictExpired drops every flow whose lastSeen+flowTTL <= now. Caller
// holds the lock.
func (t *Tracker) evictExpired(now float64) {
	for _, k := range t.index.EvictExpired(now, t.flowTTL) {
		key := k.(model.FlowKey)
		t.notifyEvict(key)
		delete(t.flows, key)
	}
}

func (t *Tracker) notifyEvict(key model.FlowKey) {
	if t.onEvict == nil {
		return
	}
	if s, ok := t.flows[key]; ok {
		t.onEvict(key, s.flowID, s.firstSeen, s.lastSeen)
	}
}

// compactIfBloated reclaims the heap's lazily-deleted entries once
// they substantially outnumber live flows.
func (t *Tracker) compactIfBloated() {
	if t.index.HeapSize() > t.maxTrackedFlows*4 {
		t.index.Compact()
	}
}

// evictOldest removes the least-recently-touched live flow. Caller
// holds the lock.
func (t *Tracker) evictOldest() {
	if k, ok := t.index.PopOldest(); ok {
		key := k.(model.FlowKey)
		t.notifyEvict(key)
		delete(t.flows, key)
	}
}

// Len reports the number of currently tracked flows.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.flows)
}
