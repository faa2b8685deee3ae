package store

import (
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	friendPending  = "pending"
	friendAccepted = "accepted"
)

// Friend is one entry in a user's friend list or pending queue.
type Friend struct {
	UserID   int64
	Username string
	State    string
	Inviter  int64
}

// FriendStore owns the friend_edges table: invites, acceptance,
// rejection and listing, keyed by the unordered (user_lo, user_hi) pair.
type FriendStore struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

func NewFriendStore(db *sql.DB, log zerolog.Logger) *FriendStore {
	return &FriendStore{db: db, log: log.With().Str("component", "friends").Logger()}
}

// Invite records a pending invite from fromID to the account named
// toUsername. It fails with ErrSelf if the invite targets the caller,
// ErrNotFound if no such account exists, and ErrExists if the pair is
// already pending or accepted in either direction.
func (s *FriendStore) Invite(fromID int64, toUsername string, accounts *AccountStore) (toID int64, err error) {
	toID, ok := accounts.LookupID(toUsername)
	if !ok {
		return 0, ErrNotFound
	}
	if toID == fromID {
		return 0, ErrSelf
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lo, hi := pairKey(fromID, toID)
	var state string
	err = s.db.QueryRow(`SELECT state FROM friend_edges WHERE user_lo = ? AND user_hi = ?`, lo, hi).Scan(&state)
	if err == nil {
		return 0, ErrExists
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	_, err = s.db.Exec(`INSERT INTO friend_edges (user_lo, user_hi, state, inviter, created_at) VALUES (?, ?, ?, ?, ?)`,
		lo, hi, friendPending, fromID, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	s.log.Info().Int64("from", fromID).Int64("to", toID).Msg("friend invite sent")
	return toID, nil
}

// Accept moves a pending invite addressed to toID, from fromUsername,
// into the accepted state.
func (s *FriendStore) Accept(toID int64, fromUsername string, accounts *AccountStore) (fromID int64, err error) {
	fromID, ok := accounts.LookupID(fromUsername)
	if !ok {
		return 0, ErrNotFound
	}
	if fromID == toID {
		return 0, ErrSelf
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lo, hi := pairKey(fromID, toID)
	var state string
	var inviter int64
	err = s.db.QueryRow(`SELECT state, inviter FROM friend_edges WHERE user_lo = ? AND user_hi = ?`, lo, hi).Scan(&state, &inviter)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if state == friendAccepted {
		return 0, ErrExists
	}
	if state != friendPending || inviter != fromID {
		return 0, ErrNotFound
	}

	if _, err := s.db.Exec(`UPDATE friend_edges SET state = ? WHERE user_lo = ? AND user_hi = ?`, friendAccepted, lo, hi); err != nil {
		return 0, err
	}
	return fromID, nil
}

// Reject deletes a pending invite addressed to toID, from fromUsername.
func (s *FriendStore) Reject(toID int64, fromUsername string, accounts *AccountStore) (fromID int64, err error) {
	fromID, ok := accounts.LookupID(fromUsername)
	if !ok {
		return 0, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lo, hi := pairKey(fromID, toID)
	res, err := s.db.Exec(`DELETE FROM friend_edges WHERE user_lo = ? AND user_hi = ? AND state = ? AND inviter = ?`,
		lo, hi, friendPending, fromID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return 0, ErrNotFound
	}
	return fromID, nil
}

// Pending lists invites addressed to userID still awaiting a decision.
func (s *FriendStore) Pending(userID int64, accounts *AccountStore) ([]Friend, error) {
	s.mu.Lock()
	rows, err := s.db.Query(`SELECT user_lo, user_hi, inviter FROM friend_edges WHERE (user_lo = ? OR user_hi = ?) AND state = ?`,
		userID, userID, friendPending)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Friend
	for rows.Next() {
		var lo, hi, inviter int64
		if err := rows.Scan(&lo, &hi, &inviter); err != nil {
			return nil, err
		}
		if inviter == userID {
			continue // invites userID sent, not received
		}
		uname, _ := accounts.LookupUsername(inviter)
		out = append(out, Friend{UserID: inviter, Username: uname, State: friendPending, Inviter: inviter})
	}
	return out, rows.Err()
}

// List returns userID's accepted friends.
func (s *FriendStore) List(userID int64, accounts *AccountStore) ([]Friend, error) {
	s.mu.Lock()
	rows, err := s.db.Query(`SELECT user_lo, user_hi FROM friend_edges WHERE (user_lo = ? OR user_hi = ?) AND state = ?`,
		userID, userID, friendAccepted)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Friend
	for rows.Next() {
		var lo, hi int64
		if err := rows.Scan(&lo, &hi); err != nil {
			return nil, err
		}
		other := lo
		if lo == userID {
			other = hi
		}
		uname, _ := accounts.LookupUsername(other)
		out = append(out, Friend{UserID: other, Username: uname, State: friendAccepted})
	}
	return out, rows.Err()
}

// Delete removes an accepted friendship between userID and the account
// named otherUsername.
func (s *FriendStore) Delete(userID int64, otherUsername string, accounts *AccountStore) (otherID int64, err error) {
	otherID, ok := accounts.LookupID(otherUsername)
	if !ok {
		return 0, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lo, hi := pairKey(userID, otherID)
	res, err := s.db.Exec(`DELETE FROM friend_edges WHERE user_lo = ? AND user_hi = ? AND state = ?`, lo, hi, friendAccepted)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return 0, ErrNotFound
	}
	return otherID, nil
}

// AreFriends reports whether a and b are accepted friends.
func (s *FriendStore) AreFriends(a, b int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	lo, hi := pairKey(a, b)
	var state string
	err := s.db.QueryRow(`SELECT state FROM friend_edges WHERE user_lo = ? AND user_hi = ?`, lo, hi).Scan(&state)
	return err == nil && state == friendAccepted
}
