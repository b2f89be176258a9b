// Package history keeps delivered messages and seen peers in a SQLite file
// (WAL mode) so a restarted node can show what it received.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/1ureka/nearchat/internal/protocol"
)

// DB wraps *sql.DB with domain helpers.
type DB struct {
	*sql.DB
}

// Message is one delivered transfer.
type Message struct {
	ID         int64
	OriginID   string
	Command    protocol.Command
	Body       string
	ReceivedAt time.Time
}

// PeerRecord is the last sighting of a device.
type PeerRecord struct {
	DeviceID string
	Address  string
	LastSeen time.Time
}

// Open opens (or creates) the SQLite file at path with WAL journal mode.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	raw, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	if err := raw.Ping(); err != nil {
		raw.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	// One writer; WAL still lets readers proceed.
	raw.SetMaxOpenConns(1)
	return &DB{raw}, nil
}

// Migrate creates the schema. It is idempotent.
func Migrate(db *DB) error {
	for _, stmt := range []string{ddlMessages, ddlPeers} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("history: migrate: %w", err)
		}
	}
	return nil
}

// Record stores a delivered message and returns its row id.
func (db *DB) Record(originID string, cmd protocol.Command, body string, at time.Time) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO messages (origin_id, command, body, received_at) VALUES (?, ?, ?, ?)`,
		originID, cmd.String(), body, at.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("history: record: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to n messages, newest first.
func (db *DB) Recent(n int) ([]Message, error) {
	rows, err := db.Query(
		`SELECT id, origin_id, command, body, received_at FROM messages
		 ORDER BY received_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m     Message
			token string
			ms    int64
		)
		if err := rows.Scan(&m.ID, &m.OriginID, &token, &m.Body, &ms); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if m.Command, err = protocol.ParseCommand(token); err != nil {
			return nil, fmt.Errorf("history: row %d: %w", m.ID, err)
		}
		m.ReceivedAt = time.UnixMilli(ms)
		out = append(out, m)
	}
	return out, rows.Err()
}

// SeePeer upserts the last known address of a device.
func (db *DB) SeePeer(deviceID, address string, at time.Time) error {
	_, err := db.Exec(
		`INSERT INTO peers (device_id, address, last_seen) VALUES (?, ?, ?)
		 ON CONFLICT(device_id) DO UPDATE SET address = excluded.address, last_seen = excluded.last_seen`,
		deviceID, address, at.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("history: see peer: %w", err)
	}
	return nil
}

// Peers returns every recorded device, most recently seen first.
func (db *DB) Peers() ([]PeerRecord, error) {
	rows, err := db.Query(`SELECT device_id, address, last_seen FROM peers ORDER BY last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("history: peers: %w", err)
	}
	defer rows.Close()

	var out []PeerRecord
	for rows.Next() {
		var (
			p  PeerRecord
			ms int64
		)
		if err := rows.Scan(&p.DeviceID, &p.Address, &ms); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		p.LastSeen = time.UnixMilli(ms)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ── DDL statements ────────────────────────────────────────────────────────

const ddlMessages = `
CREATE TABLE IF NOT EXISTS messages (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    origin_id   TEXT    NOT NULL,
    command     TEXT    NOT NULL,          -- GENERIC | GET_PROFILE | CHAT | BROADCAST
    body        TEXT    NOT NULL,
    received_at INTEGER NOT NULL           -- Unix milliseconds
);
CREATE INDEX IF NOT EXISTS idx_messages_received_at ON messages (received_at DESC);
`

const ddlPeers = `
CREATE TABLE IF NOT EXISTS peers (
    device_id TEXT    PRIMARY KEY,
    address   TEXT    NOT NULL,
    last_seen INTEGER NOT NULL             -- Unix milliseconds
);
`
