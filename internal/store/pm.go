package store

import (
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PMMessage is one stored private message.
type PMMessage struct {
	MsgID   int64
	FromID  int64
	Content string
	Sent    time.Time
	Read    bool
}

// PMConversation summarises one conversation from a user's point of
// view: who it's with and how many unread messages are waiting.
type PMConversation struct {
	PeerID   int64
	Username string
	Unread   int
}

// PMStore owns the pm_messages table.
type PMStore struct {
	db    *sql.DB
	mu    sync.Mutex
	log   zerolog.Logger
	alloc *IDAllocator
}

func NewPMStore(db *sql.DB, alloc *IDAllocator, log zerolog.Logger) *PMStore {
	return &PMStore{db: db, alloc: alloc, log: log.With().Str("component", "pm").Logger()}
}

// Send stores a message from fromID to the account named toUsername
// and returns the new message's id.
func (s *PMStore) Send(fromID int64, toUsername, content string, accounts *AccountStore, friends *FriendStore) (toID, msgID int64, err error) {
	toID, ok := accounts.LookupID(toUsername)
	if !ok {
		return 0, 0, ErrNotFound
	}
	if toID == fromID {
		return 0, 0, ErrSelf
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lo, hi := pairKey(fromID, toID)
	id := s.alloc.Next()
	now := time.Now()
	_, err = s.db.Exec(`INSERT INTO pm_messages (msg_id, from_id, user_lo, user_hi, content, ts, read) VALUES (?, ?, ?, ?, ?, ?, 0)`,
		id, fromID, lo, hi, content, now.Unix())
	if err != nil {
		return 0, 0, err
	}
	return toID, id, nil
}

// History returns up to limit messages between userID and the account
// named otherUsername, most recent first.
func (s *PMStore) History(userID int64, otherUsername string, limit int, accounts *AccountStore) ([]PMMessage, error) {
	otherID, ok := accounts.LookupID(otherUsername)
	if !ok {
		return nil, ErrNotFound
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	lo, hi := pairKey(userID, otherID)

	s.mu.Lock()
	rows, err := s.db.Query(`SELECT msg_id, from_id, content, ts, read FROM pm_messages
		WHERE user_lo = ? AND user_hi = ? ORDER BY msg_id DESC LIMIT ?`, lo, hi, limit)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PMMessage
	for rows.Next() {
		var m PMMessage
		var ts int64
		var read int
		if err := rows.Scan(&m.MsgID, &m.FromID, &m.Content, &ts, &read); err != nil {
			return nil, err
		}
		m.Sent = time.Unix(ts, 0)
		m.Read = read != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// Conversations lists every peer userID has exchanged messages with,
// along with the number of unread messages from each.
func (s *PMStore) Conversations(userID int64, accounts *AccountStore) ([]PMConversation, error) {
	s.mu.Lock()
	rows, err := s.db.Query(`SELECT user_lo, user_hi, from_id, read FROM pm_messages WHERE user_lo = ? OR user_hi = ?`, userID, userID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	unread := make(map[int64]int)
	seen := make(map[int64]bool)
	var order []int64
	for rows.Next() {
		var lo, hi, from int64
		var read int
		if err := rows.Scan(&lo, &hi, &from, &read); err != nil {
			return nil, err
		}
		peer := lo
		if lo == userID {
			peer = hi
		}
		if !seen[peer] {
			seen[peer] = true
			order = append(order, peer)
		}
		if read == 0 && from != userID {
			unread[peer]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]PMConversation, 0, len(order))
	for _, peer := range order {
		uname, _ := accounts.LookupUsername(peer)
		out = append(out, PMConversation{PeerID: peer, Username: uname, Unread: unread[peer]})
	}
	return out, nil
}

// MarkRead marks every message from otherID to userID as read.
func (s *PMStore) MarkRead(userID, otherID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lo, hi := pairKey(userID, otherID)
	_, err := s.db.Exec(`UPDATE pm_messages SET read = 1 WHERE user_lo = ? AND user_hi = ? AND from_id = ?`, lo, hi, otherID)
	return err
}
