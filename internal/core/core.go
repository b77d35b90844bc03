// Package core wires the packet parser, flow/burst trackers, traffic
// classifier, ring buffer, sample stream, metrics store, and flow
// archive into the single synchronous pipeline a tunnel provider calls
// from its packet-ingest loop: parse -> track -> burst -> classify ->
// fan out to the ring buffer, the append-only stream, and (on flow
// eviction) the flow archive.
//
// Author: KleaSCM
// Email: KleaSCM@gmail.com
package core

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kleaSCM/tunnelscope/internal/bursttracker"
	"github.com/kleaSCM/tunnelscope/internal/classifier"
	"github.com/kleaSCM/tunnelscope/internal/config"
	"github.com/kleaSCM/tunnelscope/internal/corelog"
	"github.com/kleaSCM/tunnelscope/internal/flowarchive"
	"github.com/kleaSCM/tunnelscope/internal/flowtracker"
	"github.com/kleaSCM/tunnelscope/internal/metricsstore"
	"github.com/kleaSCM/tunnelscope/internal/model"
	"github.com/kleaSCM/tunnelscope/internal/parser"
	"github.com/kleaSCM/tunnelscope/internal/ringbuffer"
	"github.com/kleaSCM/tunnelscope/internal/samplestream"
	"github.com/kleaSCM/tunnelscope/internal/signatures"
)

// flowAccumulator is the per-live-flow bookkeeping Core keeps so that,
// when FlowTracker eventually evicts the flow, there is something
// worth handing to the archive besides a bare key.
type flowAccumulator struct {
	key               model.FlowKey
	packetCount       uint64
	byteCount         uint64
	registrableDomain string
	tlsServerName     string
	label             string
}

// Core is the analytics pipeline facade. One Core instance owns all
// the bounded in-memory state (flows, bursts, classifier cache, ring
// buffer) plus the optional on-disk sinks (sample stream, metrics
// store, flow archive) for one tunnel session.
type Core struct {
	log *zap.SugaredLogger

	flows   *flowtracker.Tracker
	bursts  *bursttracker.Tracker
	classy  *classifier.Classifier
	ring    *ringbuffer.RingBuffer
	stream  *samplestream.Stream
	store   *metricsstore.Store
	archive *flowarchive.Archive
	geoASN  *classifier.GeoASN

	streamEnabled bool

	mu          sync.Mutex
	accumulated map[uint64]*flowAccumulator
}

// NewCore builds a Core from a resolved Config. Signature loading
// failure is not fatal: an empty catalog still lets the pipeline run,
// it simply never matches anything until signatures are installed.
func NewCore(cfg config.Config, logger *zap.Logger) (*Core, error) {
	if logger == nil {
		logger = corelog.Noop()
	}
	log := logger.Sugar().Named("core")

	var initial []model.AppSignature
	if cfg.SignatureFileName != "" {
		if loaded := signatures.Load(cfg.SignatureFileName); loaded != nil {
			if err := signatures.Validate(loaded); err == nil {
				initial = signatures.Normalize(loaded)
			} else {
				log.Warnw("initial signature catalog failed validation, starting empty", "error", err)
			}
		}
	}

	var geoASN *classifier.GeoASN
	if cfg.GeoASNPath != "" {
		g, err := classifier.OpenGeoASN(cfg.GeoASNPath)
		if err != nil {
			log.Warnw("geoip ASN database unavailable, continuing without it", "error", err)
		} else {
			geoASN = g
		}
	}

	classy := classifier.New(initial, classifier.Config{
		MaxEntries:             cfg.ClassifierMaxEntries,
		TTLCache:               cfg.ClassifierTTLCache,
		SignatureFilePath:      cfg.SignatureFileName,
		SignatureCheckInterval: cfg.SignatureCheckInterval,
	}, geoASN)

	var store *metricsstore.Store
	if cfg.MetricsStoreMaxSnapshots > 0 {
		format := metricsstore.FormatJSON
		if cfg.MetricsStoreFormat == "ndjson" {
			format = metricsstore.FormatNDJSON
		}
		store = metricsstore.New("metrics_snapshots."+cfg.MetricsStoreFormat, format, cfg.MetricsStoreMaxSnapshots, cfg.MetricsStoreMaxBytes)
	}

	var archive *flowarchive.Archive
	if cfg.FlowArchivePath != "" {
		a, err := flowarchive.Open(cfg.FlowArchivePath)
		if err != nil {
			log.Warnw("flow archive unavailable, evicted flows will not be persisted", "error", err)
		} else {
			archive = a
		}
	}

	c := &Core{
		log:           log,
		flows:         flowtracker.New(cfg.FlowTTLSeconds, cfg.BurstThresholdMs, cfg.MaxTrackedFlows),
		bursts:        bursttracker.New(cfg.FlowTTLSeconds, cfg.MaxBursts),
		classy:        classy,
		ring:          ringbuffer.New(cfg.MetricsRingBufferSize),
		store:         store,
		archive:       archive,
		geoASN:        geoASN,
		streamEnabled: cfg.PacketStreamEnabled,
		accumulated:   make(map[uint64]*flowAccumulator),
	}
	if cfg.PacketStreamEnabled {
		c.stream = samplestream.New("packet_samples.ndjson", cfg.PacketStreamMaxBytes)
	}
	c.flows.OnEvict(c.onFlowEvict)
	return c, nil
}

// OnPacket is the packet-ingest entry point: parse raw into
// PacketMetadata, assign flow/burst identifiers, classify, and fan the
// resulting PacketSample out to the ring buffer and (if enabled) the
// append-only stream. ok is false only when raw cannot be parsed as
// any IP packet at all; that is not logged as an error, since
// malformed input is an expected, non-exceptional occurrence on a raw
// capture path (§7 of the design).
func (c *Core) OnPacket(raw []byte, protocolHint int, direction model.Direction, timestamp float64) (model.PacketSample, bool) {
	hint := parser.HintNone
	switch protocolHint {
	case 4:
		hint = parser.HintV4
	case 6:
		hint = parser.HintV6
	}

	meta, ok := parser.Parse(raw, hint)
	if !ok {
		return model.PacketSample{}, false
	}

	outbound := direction == model.Outbound
	flowID, burstID := c.flows.Record(meta, timestamp)
	burstMetrics, _ := c.bursts.Record(flowID, burstID, timestamp, meta.Length)
	classification, classified := c.classy.Classify(meta, outbound, timestamp)

	sample := model.PacketSample{
		Timestamp:    timestamp,
		Direction:    direction,
		Metadata:     *meta,
		FlowID:       flowID,
		BurstID:      burstID,
		BurstMetrics: burstMetrics,
	}
	if classified {
		sample.TrafficClassification = &classification
	}

	c.track(flowID, meta, &sample, classification, classified)

	c.ring.Append(sample)
	if c.streamEnabled && c.stream != nil {
		if err := c.stream.Append([]model.PacketSample{sample}); err != nil {
			c.log.Warnw("sample stream append failed, will retry on next packet", "error", err)
		}
	}

	return sample, true
}

// track folds a packet's contribution into its flow's running
// accumulator, so an eventual eviction has something to archive.
func (c *Core) track(flowID uint64, meta *model.PacketMetadata, sample *model.PacketSample, classification model.TrafficClassification, classified bool) {
	if flowID == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	acc, ok := c.accumulated[flowID]
	if !ok {
		acc = &flowAccumulator{key: model.NewFlowKey(meta.SrcAddress, meta.DstAddress, portOrZero(meta.SrcPort), portOrZero(meta.DstPort), meta.Transport)}
		c.accumulated[flowID] = acc
	}
	acc.packetCount++
	acc.byteCount += uint64(meta.Length)
	if meta.RegistrableDomain != "" {
		acc.registrableDomain = meta.RegistrableDomain
	}
	if meta.TLSServerName != "" {
		acc.tlsServerName = meta.TLSServerName
	}
	if classified && classification.Label != "" {
		acc.label = classification.Label
	}
}

func portOrZero(p *uint16) uint16 {
	if p == nil {
		return 0
	}
	return *p
}

// onFlowEvict is FlowTracker's eviction callback: it hands the
// accumulated lifetime summary of the forgotten flow to the archive,
// if one is configured, and always drops the accumulator regardless
// so Core's own memory stays bounded in step with FlowTracker's.
func (c *Core) onFlowEvict(key model.FlowKey, flowID uint64, firstSeen, lastSeen float64) {
	c.mu.Lock()
	acc, ok := c.accumulated[flowID]
	delete(c.accumulated, flowID)
	c.mu.Unlock()

	if c.archive == nil {
		return
	}

	row := flowarchive.ArchivedFlow{
		FlowID:     flowID,
		SrcAddress: key.LowAddress.String(),
		DstAddress: key.HighAddress.String(),
		SrcPort:    key.LowPort,
		DstPort:    key.HighPort,
		Transport:  key.Transport,
		FirstSeen:  firstSeen,
		LastSeen:   lastSeen,
	}
	if ok {
		row.PacketCount = acc.packetCount
		row.ByteCount = acc.byteCount
		row.RegistrableDomain = acc.registrableDomain
		row.TLSServerName = acc.tlsServerName
		row.ClassificationLabel = acc.label
	}
	if err := c.archive.Save(row); err != nil {
		c.log.Warnw("failed to archive evicted flow", "flowId", flowID, "error", err)
	}
}

// Snapshot aggregates the ring buffer's current contents into one
// MetricsSnapshot and, if a metrics store is configured, persists it.
// The host calls this on its own metricsSnapshotInterval timer; Core
// spawns no goroutines of its own.
func (c *Core) Snapshot() model.MetricsSnapshot {
	samples := c.ring.Snapshot(0)

	snap := model.MetricsSnapshot{}
	labelBytes := make(map[string]uint64)
	flowSeen := make(map[uint64]bool)

	for i, s := range samples {
		if i == 0 {
			snap.WindowStart = s.Timestamp
		}
		snap.WindowEnd = s.Timestamp
		snap.PacketCount++
		snap.ByteCount += uint64(s.Metadata.Length)
		if s.FlowID != 0 {
			flowSeen[s.FlowID] = true
		}
		if s.TrafficClassification != nil && s.TrafficClassification.Label != "" {
			labelBytes[s.TrafficClassification.Label] += uint64(s.Metadata.Length)
		}
	}
	snap.FlowCount = len(flowSeen)
	snap.TopLabels = topLabels(labelBytes)

	if c.store != nil {
		if err := c.store.Append(snap); err != nil {
			c.log.Warnw("failed to persist metrics snapshot", "error", err)
		}
	}
	return snap
}

// topLabels sorts a label->bytes map into descending-byte-count order.
// Ties break on label name for deterministic output.
func topLabels(byLabel map[string]uint64) []model.LabelByteCount {
	out := make([]model.LabelByteCount, 0, len(byLabel))
	for label, bytes := range byLabel {
		out = append(out, model.LabelByteCount{Label: label, ByteCount: bytes})
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0; j-- {
			a, b := out[j-1], out[j]
			if a.ByteCount > b.ByteCount || (a.ByteCount == b.ByteCount && a.Label <= b.Label) {
				break
			}
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Close releases every file/db handle Core opened. Idempotent enough
// for a single call at shutdown; safe to call even when optional sinks
// were never configured.
func (c *Core) Close() error {
	var firstErr error
	if c.stream != nil {
		if err := c.stream.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing sample stream: %w", err)
		}
	}
	if c.archive != nil {
		if err := c.archive.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing flow archive: %w", err)
		}
	}
	if c.geoASN != nil {
		if err := c.geoASN.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing geoip ASN database: %w", err)
		}
	}
	return firstErr
}

// FlowCount reports the number of currently tracked live flows.
func (c *Core) FlowCount() int { return c.flows.Len() }

// BurstCount reports the number of currently tracked live bursts.
func (c *Core) BurstCount() int { return c.bursts.Len() }

// ClassifierCacheLen reports the number of live classifier IP-cache entries.
func (c *Core) ClassifierCacheLen() int { return c.classy.Len() }
