// Package store implements the durable account, friendship, group and
// message record stores on top of an embedded SQLite database. Each
// store still serialises its own mutations behind a sync.Mutex: that
// describes the store's observable critical section and is not an
// accident of SQLite's own internal locking.
package store

import (
	"database/sql"
	"fmt"
	"sync/atomic"

	_ "modernc.org/sqlite"
)

// memDBSeq names each in-memory database so separate Open calls do not
// share one.
var memDBSeq atomic.Int64

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	salt     TEXT NOT NULL,
	digest   TEXT NOT NULL,
	email    TEXT NOT NULL,
	active   INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS friend_edges (
	user_lo    INTEGER NOT NULL,
	user_hi    INTEGER NOT NULL,
	state      TEXT NOT NULL,
	inviter    INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (user_lo, user_hi)
);

CREATE TABLE IF NOT EXISTS groups (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	owner      INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS group_members (
	group_id INTEGER NOT NULL,
	user_id  INTEGER NOT NULL,
	PRIMARY KEY (group_id, user_id)
);

CREATE TABLE IF NOT EXISTS pm_messages (
	msg_id  INTEGER PRIMARY KEY,
	from_id INTEGER NOT NULL,
	user_lo INTEGER NOT NULL,
	user_hi INTEGER NOT NULL,
	content TEXT NOT NULL,
	ts      INTEGER NOT NULL,
	read    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_pm_pair ON pm_messages(user_lo, user_hi, msg_id);

CREATE TABLE IF NOT EXISTS gm_messages (
	msg_id   INTEGER PRIMARY KEY,
	from_id  INTEGER NOT NULL,
	group_id INTEGER NOT NULL,
	content  TEXT NOT NULL,
	ts       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_gm_group ON gm_messages(group_id, msg_id);
`

// Open opens (creating if necessary) the SQLite-backed record file at
// path and ensures its schema exists. The path ":memory:" opens a fresh
// in-memory database shared by every pooled connection of the handle.
func Open(path string) (*sql.DB, error) {
	// A single file-backed database shared by every store; busy_timeout
	// lets concurrent writers from different stores queue briefly
	// instead of failing with SQLITE_BUSY. The driver applies both
	// pragmas to each connection it opens for the pool.
	const pragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	dsn := path + "?" + pragmas
	if path == ":memory:" {
		dsn = fmt.Sprintf("file:chattcp-mem-%d?mode=memory&cache=shared&%s", memDBSeq.Add(1), pragmas)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate schema: %w", err)
	}
	return db, nil
}

// pairKey normalises an unordered user pair into (lo, hi) so a
// conversation's key does not depend on who initiated it.
func pairKey(a, b int64) (lo, hi int64) {
	if a < b {
		return a, b
	}
	return b, a
}
