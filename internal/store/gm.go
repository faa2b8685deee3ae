package store

import (
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// GMMessage is one stored group message.
type GMMessage struct {
	MsgID   int64
	FromID  int64
	Content string
	Sent    time.Time
}

// GMStore owns the gm_messages table.
type GMStore struct {
	db    *sql.DB
	mu    sync.Mutex
	log   zerolog.Logger
	alloc *IDAllocator
}

func NewGMStore(db *sql.DB, alloc *IDAllocator, log zerolog.Logger) *GMStore {
	return &GMStore{db: db, alloc: alloc, log: log.With().Str("component", "gm").Logger()}
}

// Send stores a message from fromID into groupID. Callers must check
// group membership (via GroupStore.IsMember) before calling Send.
func (s *GMStore) Send(fromID, groupID int64, content string) (msgID int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.alloc.Next()
	_, err = s.db.Exec(`INSERT INTO gm_messages (msg_id, from_id, group_id, content, ts) VALUES (?, ?, ?, ?, ?)`,
		id, fromID, groupID, content, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return id, nil
}

// History returns up to limit messages from groupID, most recent
// first.
func (s *GMStore) History(groupID int64, limit int) ([]GMMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	s.mu.Lock()
	rows, err := s.db.Query(`SELECT msg_id, from_id, content, ts FROM gm_messages
		WHERE group_id = ? ORDER BY msg_id DESC LIMIT ?`, groupID, limit)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GMMessage
	for rows.Next() {
		var m GMMessage
		var ts int64
		if err := rows.Scan(&m.MsgID, &m.FromID, &m.Content, &ts); err != nil {
			return nil, err
		}
		m.Sent = time.Unix(ts, 0)
		out = append(out, m)
	}
	return out, rows.Err()
}
