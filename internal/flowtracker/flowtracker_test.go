package flowtracker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kleaSCM/tunnelscope/internal/ipaddr"
	"github.com/kleaSCM/tunnelscope/internal/model"
)

func meta(src, dst ipaddr.IPAddress, srcPort, dstPort uint16, transport uint8) *model.PacketMetadata {
	sp, dp := srcPort, dstPort
	return &model.PacketMetadata{SrcAddress: src, DstAddress: dst, SrcPort: &sp, DstPort: &dp, Transport: transport}
}

func TestRecordAbsentPortYieldsZeroFlow(t *testing.T) {
	tr := New(300, 1000, 10)
	m := &model.PacketMetadata{SrcAddress: ipaddr.FromV4(1, 1, 1, 1), DstAddress: ipaddr.FromV4(2, 2, 2, 2)}
	flowID, burstID := tr.Record(m, 1.0)
	require.Zero(t, flowID)
	require.Zero(t, burstID)
}

func TestRecordAssignsStableFlowIDBothDirections(t *testing.T) {
	tr := New(300, 1000, 10)
	a := ipaddr.FromV4(10, 0, 0, 1)
	b := ipaddr.FromV4(10, 0, 0, 2)

	flowID1, burst1 := tr.Record(meta(a, b, 1234, 53, 17), 1.0)
	require.NotZero(t, flowID1)
	require.Zero(t, burst1)

	flowID2, _ := tr.Record(meta(b, a, 53, 1234, 17), 1.01)
	require.Equal(t, flowID1, flowID2, "reverse-direction packet must share the same flow")
}

func TestBurstAdvancesOnlyWhenGapStrictlyExceedsThreshold(t *testing.T) {
	tr := New(10, 125, 10) // burstThreshold = 125ms = 0.125s, exact in binary floating point
	a := ipaddr.FromV4(10, 0, 0, 1)
	b := ipaddr.FromV4(10, 0, 0, 2)

	_, burst0 := tr.Record(meta(a, b, 1, 2, 17), 1.0)
	require.Equal(t, uint64(0), burst0)

	// Exactly at the threshold: does not advance.
	_, burst1 := tr.Record(meta(a, b, 1, 2, 17), 1.125)
	require.Equal(t, uint64(0), burst1)

	// Strictly exceeds: advances.
	_, burst2 := tr.Record(meta(a, b, 1, 2, 17), 1.251)
	require.Equal(t, uint64(1), burst2)
}

func TestFlowExpiresAfterTTLAndIsReissued(t *testing.T) {
	tr := New(0.5, 1000, 10)
	a := ipaddr.FromV4(10, 0, 0, 1)
	b := ipaddr.FromV4(10, 0, 0, 2)

	flowID1, _ := tr.Record(meta(a, b, 1, 2, 17), 1.0)
	flowID2, burst2 := tr.Record(meta(a, b, 1, 2, 17), 2.0) // gap 1.0s > flowTTL 0.5s
	require.NotEqual(t, flowID1, flowID2)
	require.Zero(t, burst2, "a freshly re-issued flow restarts its burst at 0")
}

func TestCapacityEvictsLeastRecentlyTouched(t *testing.T) {
	tr := New(300, 1000, 2)
	a := ipaddr.FromV4(10, 0, 0, 1)
	b := ipaddr.FromV4(10, 0, 0, 2)
	c := ipaddr.FromV4(10, 0, 0, 3)
	d := ipaddr.FromV4(10, 0, 0, 4)

	flowA, _ := tr.Record(meta(a, b, 1, 2, 17), 1.0)
	_, _ = tr.Record(meta(a, c, 1, 2, 17), 1.0)
	require.Equal(t, 2, tr.Len())

	// A third distinct flow at capacity must evict the oldest (flow A's key).
	_, _ = tr.Record(meta(a, d, 1, 2, 17), 1.0)
	require.Equal(t, 2, tr.Len())

	// Flow A is gone: recording it again assigns a brand new flow ID.
	flowAAgain, _ := tr.Record(meta(a, b, 1, 2, 17), 1.0)
	require.NotEqual(t, flowA, flowAAgain)
}

func TestOnEvictCallbackFiresOnTTLExpiry(t *testing.T) {
	tr := New(0.5, 1000, 10)
	a := ipaddr.FromV4(10, 0, 0, 1)
	b := ipaddr.FromV4(10, 0, 0, 2)

	var evicted []uint64
	tr.OnEvict(func(key model.FlowKey, flowID uint64, firstSeen, lastSeen float64) {
		evicted = append(evicted, flowID)
	})

	flowID, _ := tr.Record(meta(a, b, 1, 2, 17), 1.0)
	tr.Record(meta(a, b, 1, 2, 17), 2.0) // gap exceeds TTL, triggers expiry of the first flow
	require.Equal(t, []uint64{flowID}, evicted)
}
