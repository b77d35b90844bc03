package flowarchive

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ArchivedFlow is one evicted flow's lifetime summary.
type ArchivedFlow struct {
	FlowID               uint64
	SrcAddress           string
	DstAddress           string
	SrcPort              uint16
	DstPort              uint16
	Transport            uint8
	FirstSeen            float64
	LastSeen             float64
	PacketCount          uint64
	ByteCount            uint64
	RegistrableDomain    string
	TLSServerName        string
	ClassificationLabel  string
}

// Archive stores evicted flows for later querying. It is independent
// of the live FlowTracker: the core calls Save as flows fall out of
// the tracker's LRU, not on every packet.
type Archive struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at path and applies the
// schema.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("flowarchive: opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("flowarchive: pinging database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("flowarchive: applying schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close closes the underlying database handle.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Save inserts one archived flow row.
func (a *Archive) Save(f ArchivedFlow) error {
	_, err := a.db.Exec(`
		INSERT INTO archived_flows (
			flow_id, src_address, dst_address, src_port, dst_port, transport,
			first_seen, last_seen, packet_count, byte_count,
			registrable_domain, tls_server_name, classification_label
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.FlowID, f.SrcAddress, f.DstAddress, f.SrcPort, f.DstPort, f.Transport,
		f.FirstSeen, f.LastSeen, f.PacketCount, f.ByteCount,
		f.RegistrableDomain, f.TLSServerName, f.ClassificationLabel,
	)
	if err != nil {
		return fmt.Errorf("flowarchive: saving flow %d: %w", f.FlowID, err)
	}
	return nil
}

// RecentByDomain returns the most recent archived flows matching a
// registrable domain, most-recent-first, bounded by limit.
func (a *Archive) RecentByDomain(domain string, limit int) ([]ArchivedFlow, error) {
	rows, err := a.db.Query(`
		SELECT flow_id, src_address, dst_address, src_port, dst_port, transport,
		       first_seen, last_seen, packet_count, byte_count,
		       registrable_domain, tls_server_name, classification_label
		FROM archived_flows
		WHERE registrable_domain = ?
		ORDER BY last_seen DESC
		LIMIT ?`, domain, limit)
	if err != nil {
		return nil, fmt.Errorf("flowarchive: querying by domain: %w", err)
	}
	defer rows.Close()

	var out []ArchivedFlow
	for rows.Next() {
		var f ArchivedFlow
		if err := rows.Scan(
			&f.FlowID, &f.SrcAddress, &f.DstAddress, &f.SrcPort, &f.DstPort, &f.Transport,
			&f.FirstSeen, &f.LastSeen, &f.PacketCount, &f.ByteCount,
			&f.RegistrableDomain, &f.TLSServerName, &f.ClassificationLabel,
		); err != nil {
			return nil, fmt.Errorf("flowarchive: scanning row: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
