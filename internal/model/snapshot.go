package model

// LabelByteCount is one entry in a MetricsSnapshot's top-label list.
type LabelByteCount struct {
	Label     string `json:"label"`
	ByteCount uint64 `json:"byteCount"`
}

// MetricsSnapshot is the aggregate record persisted by MetricsStore,
// built by the core from the ring buffer's contents on each
// metricsSnapshotInterval tick.
type MetricsSnapshot struct {
	WindowStart float64          `json:"windowStart"`
	WindowEnd   float64          `json:"windowEnd"`
	FlowCount   int              `json:"flowCount"`
	PacketCount uint64           `json:"packetCount"`
	ByteCount   uint64           `json:"byteCount"`
	TopLabels   []LabelByteCount `json:"topLabels,omitempty"`
}
