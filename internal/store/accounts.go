package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	usernameMin = 3
	usernameMax = 32
	passwordMin = 6
	passwordMax = 64
	emailMax    = 96
)

// AccountStore owns the accounts table: registration, authentication
// and username/id lookups.
type AccountStore struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

func NewAccountStore(db *sql.DB, log zerolog.Logger) *AccountStore {
	return &AccountStore{db: db, log: log.With().Str("component", "accounts").Logger()}
}

func isValidUsername(s string) bool {
	if len(s) < usernameMin || len(s) > usernameMax {
		return false
	}
	for _, c := range s {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_') {
			return false
		}
	}
	return true
}

func isValidPassword(s string) bool {
	if len(s) < passwordMin || len(s) > passwordMax {
		return false
	}
	return !strings.ContainsRune(s, ' ')
}

func isValidEmail(s string) bool {
	if len(s) < 5 || len(s) > emailMax || strings.ContainsRune(s, ' ') {
		return false
	}
	at := strings.IndexByte(s, '@')
	if at <= 0 {
		return false
	}
	dot := strings.IndexByte(s[at+1:], '.')
	if dot < 0 || dot == 0 || at+1+dot == len(s)-1 {
		return false
	}
	return true
}

func randomSalt() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// Register creates a new account and returns its id. bcrypt already
// mixes in its own salt; the stored salt additionally seeds the digest
// so two accounts with the same password never share a hash prefix.
func (s *AccountStore) Register(username, password, email string) (int64, error) {
	if !isValidUsername(username) || !isValidPassword(password) || !isValidEmail(email) {
		return 0, ErrInvalidFields
	}

	salt, err := randomSalt()
	if err != nil {
		return 0, fmt.Errorf("store: generate salt: %w", err)
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(salt+password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("store: hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	if err := s.db.QueryRow(`SELECT 1 FROM accounts WHERE username = ?`, username).Scan(&exists); err == nil {
		return 0, ErrExists
	} else if err != sql.ErrNoRows {
		return 0, err
	}

	res, err := s.db.Exec(`INSERT INTO accounts (username, salt, digest, email, active) VALUES (?, ?, ?, ?, 1)`,
		username, salt, digest, email)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.log.Info().Int64("user_id", id).Str("username", username).Msg("account registered")
	return id, nil
}

// Authenticate verifies username/password and returns the account id.
func (s *AccountStore) Authenticate(username, password string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	var salt, digest string
	var active int
	err := s.db.QueryRow(`SELECT id, salt, digest, active FROM accounts WHERE username = ?`, username).
		Scan(&id, &salt, &digest, &active)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if active == 0 {
		return 0, ErrInactive
	}
	if err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(salt+password)); err != nil {
		return 0, ErrBadPassword
	}
	return id, nil
}

// LookupID resolves a username to its account id.
func (s *AccountStore) LookupID(username string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var id int64
	err := s.db.QueryRow(`SELECT id FROM accounts WHERE username = ?`, username).Scan(&id)
	return id, err == nil
}

// LookupUsername resolves an account id to its username.
func (s *AccountStore) LookupUsername(id int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var username string
	err := s.db.QueryRow(`SELECT username FROM accounts WHERE id = ?`, id).Scan(&username)
	return username, err == nil
}
