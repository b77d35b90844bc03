// Package flowarchive persists flows evicted from the in-memory
// FlowTracker to a local SQLite database, so the core can answer
// "what talked to what" questions about conversations long gone from
// the live tables.
//
// Author: KleaSCM
// Email: KleaSCM@gmail.com
package flowarchive

// schema contains the DDL applied on Open. Unlike the live analytics
// pipeline this is pure history: one row per flow, written once on
// eviction.
const schema = `
CREATE TABLE IF NOT EXISTS archived_flows (
	id INTEGER PRIMARY KEY,
	flow_id INTEGER NOT NULL,
	src_address TEXT NOT NULL,
	dst_address TEXT NOT NULL,
	src_port INTEGER,
	dst_port INTEGER,
	transport INTEGER NOT NULL,
	first_seen REAL NOT NULL,
	last_seen REAL NOT NULL,
	packet_count INTEGER NOT NULL,
	byte_count INTEGER NOT NULL,
	registrable_domain TEXT,
	tls_server_name TEXT,
	classification_label TEXT
);
CREATE INDEX IF NOT EXISTS idx_archived_flows_flow_id ON archived_flows(flow_id);
CREATE INDEX IF NOT EXISTS idx_archived_flows_last_seen ON archived_flows(last_seen);
CREATE INDEX IF NOT EXISTS idx_archived_flows_domain ON archived_flows(registrable_domain);
`
