package store

import (
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Group describes one chat group's identity.
type Group struct {
	ID      int64
	Name    string
	Owner   int64
	Created time.Time
}

// GroupStore owns the groups and group_members tables.
type GroupStore struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

func NewGroupStore(db *sql.DB, log zerolog.Logger) *GroupStore {
	return &GroupStore{db: db, log: log.With().Str("component", "groups").Logger()}
}

// Create makes a new group owned by ownerID, adding the owner as its
// first member.
func (s *GroupStore) Create(ownerID int64, name string) (int64, error) {
	if name == "" {
		return 0, ErrInvalidFields
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO groups (name, owner, created_at) VALUES (?, ?, ?)`, name, ownerID, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	gid, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(`INSERT INTO group_members (group_id, user_id) VALUES (?, ?)`, gid, ownerID); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	s.log.Info().Int64("group_id", gid).Int64("owner", ownerID).Msg("group created")
	return gid, nil
}

// ListForUser returns every group userID belongs to.
func (s *GroupStore) ListForUser(userID int64) ([]Group, error) {
	s.mu.Lock()
	rows, err := s.db.Query(`SELECT g.id, g.name, g.owner, g.created_at FROM groups g
		JOIN group_members m ON m.group_id = g.id WHERE m.user_id = ?`, userID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Group
	for rows.Next() {
		var g Group
		var ts int64
		if err := rows.Scan(&g.ID, &g.Name, &g.Owner, &ts); err != nil {
			return nil, err
		}
		g.Created = time.Unix(ts, 0)
		out = append(out, g)
	}
	return out, rows.Err()
}

// IsMember reports whether userID belongs to groupID.
func (s *GroupStore) IsMember(groupID, userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID).Scan(&one)
	return err == nil
}

// Owner returns groupID's owner id.
func (s *GroupStore) Owner(groupID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var owner int64
	err := s.db.QueryRow(`SELECT owner FROM groups WHERE id = ?`, groupID).Scan(&owner)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return owner, err
}

// Get returns groupID's full record.
func (s *GroupStore) Get(groupID int64) (Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var g Group
	var ts int64
	err := s.db.QueryRow(`SELECT id, name, owner, created_at FROM groups WHERE id = ?`, groupID).
		Scan(&g.ID, &g.Name, &g.Owner, &ts)
	if err == sql.ErrNoRows {
		return Group{}, ErrNotFound
	}
	if err != nil {
		return Group{}, err
	}
	g.Created = time.Unix(ts, 0)
	return g, nil
}

// Members returns the user ids of every member of groupID.
func (s *GroupStore) Members(groupID int64) ([]int64, error) {
	s.mu.Lock()
	rows, err := s.db.Query(`SELECT user_id FROM group_members WHERE group_id = ?`, groupID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		out = append(out, uid)
	}
	return out, rows.Err()
}

// AddMember adds the account named username to groupID. Only the
// group's owner may do this.
func (s *GroupStore) AddMember(callerID, groupID int64, username string, accounts *AccountStore) (addedID int64, err error) {
	addedID, ok := accounts.LookupID(username)
	if !ok {
		return 0, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var owner int64
	if err := s.db.QueryRow(`SELECT owner FROM groups WHERE id = ?`, groupID).Scan(&owner); err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, err
	}
	if owner != callerID {
		return 0, ErrPermission
	}

	var exists int
	if err := s.db.QueryRow(`SELECT 1 FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, addedID).Scan(&exists); err == nil {
		return 0, ErrExists
	} else if err != sql.ErrNoRows {
		return 0, err
	}

	if _, err := s.db.Exec(`INSERT INTO group_members (group_id, user_id) VALUES (?, ?)`, groupID, addedID); err != nil {
		return 0, err
	}
	return addedID, nil
}

// RemoveMember removes the account named username from groupID (a
// kick). Only the group's owner may do this, and the owner cannot
// remove themselves this way.
func (s *GroupStore) RemoveMember(callerID, groupID int64, username string, accounts *AccountStore) (removedID int64, err error) {
	removedID, ok := accounts.LookupID(username)
	if !ok {
		return 0, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var owner int64
	if err := s.db.QueryRow(`SELECT owner FROM groups WHERE id = ?`, groupID).Scan(&owner); err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, err
	}
	if owner != callerID {
		return 0, ErrPermission
	}
	if removedID == owner {
		return 0, ErrSelf
	}

	res, err := s.db.Exec(`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, removedID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return 0, ErrNotMember
	}
	return removedID, nil
}

// Leave removes userID from groupID voluntarily. The owner cannot
// leave their own group (ErrPermission).
func (s *GroupStore) Leave(userID, groupID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var owner int64
	if err := s.db.QueryRow(`SELECT owner FROM groups WHERE id = ?`, groupID).Scan(&owner); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	}
	if owner == userID {
		return ErrPermission
	}

	res, err := s.db.Exec(`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotMember
	}
	return nil
}
