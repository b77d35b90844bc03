package flowarchive

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFlowArchiveSaveAndQueryByDomain(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test_flows.db")
	defer os.Remove(dbPath)

	archive, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer archive.Close()

	flow := ArchivedFlow{
		FlowID:              1,
		SrcAddress:          "10.0.0.2",
		DstAddress:          "93.184.216.34",
		SrcPort:             51234,
		DstPort:             443,
		Transport:           6,
		FirstSeen:           1.0,
		LastSeen:            5.0,
		PacketCount:         10,
		ByteCount:           1400,
		RegistrableDomain:   "example.com",
		TLSServerName:       "example.com",
		ClassificationLabel: "web",
	}
	if err := archive.Save(flow); err != nil {
		t.Fatalf("failed to save flow: %v", err)
	}

	other := flow
	other.FlowID = 2
	other.FirstSeen = 10.0
	other.LastSeen = 20.0
	if err := archive.Save(other); err != nil {
		t.Fatalf("failed to save second flow: %v", err)
	}

	rows, err := archive.RecentByDomain("example.com", 10)
	if err != nil {
		t.Fatalf("failed to query by domain: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].FlowID != 2 {
		t.Errorf("expected most recent flow (id 2) first, got id %d", rows[0].FlowID)
	}
	if rows[0].TLSServerName != "example.com" {
		t.Errorf("expected tls server name example.com, got %s", rows[0].TLSServerName)
	}
}

func TestFlowArchiveRecentByDomainRespectsLimit(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test_flows.db")
	defer os.Remove(dbPath)

	archive, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer archive.Close()

	for i := uint64(1); i <= 5; i++ {
		f := ArchivedFlow{FlowID: i, RegistrableDomain: "example.com", FirstSeen: float64(i), LastSeen: float64(i)}
		if err := archive.Save(f); err != nil {
			t.Fatalf("failed to save flow %d: %v", i, err)
		}
	}

	rows, err := archive.RecentByDomain("example.com", 2)
	if err != nil {
		t.Fatalf("failed to query by domain: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
}

func TestFlowArchiveUnmatchedDomainReturnsEmpty(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test_flows.db")
	defer os.Remove(dbPath)

	archive, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer archive.Close()

	rows, err := archive.RecentByDomain("nowhere.example", 10)
	if err != nil {
		t.Fatalf("failed to query by domain: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected 0 rows, got %d", len(rows))
	}
}
