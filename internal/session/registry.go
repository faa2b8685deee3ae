// Package session implements the process-wide session registry: the
// single-writer table binding token ↔ user-id ↔ connection ↔
// last-activity ↔ subscription.
package session

import (
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sentinel errors surfaced to handlers, mapped to wire codes at the
// chatserver boundary.
var (
	ErrAlreadyLoggedIn = errors.New("session: user already has an active session")
	ErrRegistryFull    = errors.New("session: registry at capacity")
	ErrNotFound        = errors.New("session: token not found")
	ErrExpired         = errors.New("session: token expired")
	ErrTokenCollision  = errors.New("session: could not allocate a unique token")
)

// DefaultMaxSessions and DefaultTimeout are the registry's defaults:
// 1000 active sessions, one hour idle timeout.
const (
	DefaultMaxSessions = 1000
	DefaultTimeout     = time.Hour
)

const tokenCollisionRetries = 8

// entry is the registry's internal record for one active session.
type entry struct {
	token        string
	userID       int64
	conn         Connection
	createdAt    time.Time
	lastActivity time.Time
	sub          Subscription
}

// Registry is the single mutex-guarded owner of session state. All
// methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	max     int
	timeout time.Duration
	log     zerolog.Logger

	byToken map[string]*entry
	byUser  map[int64]*entry
	byConn  map[Connection]*entry
}

// NewRegistry constructs an empty registry with the given capacity and
// idle timeout (0 picks the spec defaults).
func NewRegistry(max int, timeout time.Duration, log zerolog.Logger) *Registry {
	if max <= 0 {
		max = DefaultMaxSessions
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		max:     max,
		timeout: timeout,
		log:     log.With().Str("component", "session").Logger(),
		byToken: make(map[string]*entry),
		byUser:  make(map[int64]*entry),
		byConn:  make(map[Connection]*entry),
	}
}

// Create opens a new session for userID on conn. If conn already holds
// a session it is dropped first (the connection is reauthenticating).
// If userID already has an active session on a different connection,
// Create fails with ErrAlreadyLoggedIn.
func (r *Registry) Create(userID int64, conn Connection) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byConn[conn]; ok {
		r.removeLocked(old)
	}

	if existing, ok := r.byUser[userID]; ok && existing.conn != conn {
		return "", ErrAlreadyLoggedIn
	}

	if len(r.byToken) >= r.max {
		return "", ErrRegistryFull
	}

	token, err := r.freshTokenLocked()
	if err != nil {
		return "", err
	}

	now := time.Now()
	e := &entry{
		token:        token,
		userID:       userID,
		conn:         conn,
		createdAt:    now,
		lastActivity: now,
		sub:          NoneSub,
	}
	r.byToken[token] = e
	r.byUser[userID] = e
	r.byConn[conn] = e

	r.log.Info().Int64("user_id", userID).Msg("session created")
	return token, nil
}

func (r *Registry) freshTokenLocked() (string, error) {
	for i := 0; i < tokenCollisionRetries; i++ {
		id := uuid.New()
		token := hex.EncodeToString(id[:]) // 32 printable hex chars
		if _, exists := r.byToken[token]; !exists {
			return token, nil
		}
	}
	return "", ErrTokenCollision
}

// Validate is the per-request authentication step: it returns the
// session's user-id and bumps last-activity, or fails if the token is
// unknown or has been idle for at least the configured timeout.
func (r *Registry) Validate(token string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byToken[token]
	if !ok {
		return 0, ErrNotFound
	}
	if time.Since(e.lastActivity) >= r.timeout {
		r.removeLocked(e)
		return 0, ErrExpired
	}
	e.lastActivity = time.Now()
	return e.userID, nil
}

// Destroy releases the session identified by token, if any. Returns
// the subscription it held at the time of removal and true, so the
// caller (LOGOUT handling) can emit the right LEAVE pushes.
func (r *Registry) Destroy(token string) (userID int64, sub Subscription, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, found := r.byToken[token]
	if !found {
		return 0, NoneSub, false
	}
	userID, sub = e.userID, e.sub
	r.removeLocked(e)
	return userID, sub, true
}

// RemoveByConnection releases whatever session conn holds, if any.
// Used on socket loss / oversize record / protocol teardown.
func (r *Registry) RemoveByConnection(conn Connection) (userID int64, sub Subscription, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, found := r.byConn[conn]
	if !found {
		return 0, NoneSub, false
	}
	userID, sub = e.userID, e.sub
	r.removeLocked(e)
	return userID, sub, true
}

func (r *Registry) removeLocked(e *entry) {
	delete(r.byToken, e.token)
	delete(r.byConn, e.conn)
	if cur, ok := r.byUser[e.userID]; ok && cur == e {
		delete(r.byUser, e.userID)
	}
}

// IsOnline reports whether userID currently has an active session.
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byUser[userID]
	return ok
}

// ConnectionOf returns the connection backing userID's active session.
func (r *Registry) ConnectionOf(userID int64) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byUser[userID]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// SubscriptionOf returns userID's current subscription, if they are
// online.
func (r *Registry) SubscriptionOf(userID int64) (Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byUser[userID]
	if !ok {
		return NoneSub, false
	}
	return e.sub, true
}

// SetSubscription mutates userID's subscription in place. Returns
// ErrNotFound if the user has no active session.
func (r *Registry) SetSubscription(userID int64, sub Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byUser[userID]
	if !ok {
		return ErrNotFound
	}
	e.sub = sub
	return nil
}

// ClearSubscriptionByConn forces a connection's subscription back to
// None — used when a kicked member's session must be detached without
// the caller reaching into the registry's internals directly.
func (r *Registry) ClearSubscriptionByConn(conn Connection) (userID int64, had Subscription, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, found := r.byConn[conn]
	if !found {
		return 0, NoneSub, false
	}
	had = e.sub
	e.sub = NoneSub
	return e.userID, had, true
}

// IsSubscribedToPMWith reports whether userID is online and currently
// subscribed to a PM conversation with partner.
func (r *Registry) IsSubscribedToPMWith(userID, partner int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byUser[userID]
	if !ok {
		return false
	}
	return e.sub.Kind == PMWith && e.sub.PeerUserID == partner
}

// Snapshot is an immutable view of one session, returned by fan-out
// helpers so the delivery engine can write outside the registry lock.
type Snapshot struct {
	UserID int64
	Conn   Connection
}

// SubscribedToGroup returns a snapshot of every online member among
// userIDs whose subscription is GM-in(groupID), excluding excludeUser
// if non-zero (used by GM_SEND, where the sender never receives its
// own push).
func (r *Registry) SubscribedToGroup(userIDs []int64, groupID int64, excludeUser int64) []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Snapshot
	for _, uid := range userIDs {
		if uid == excludeUser {
			continue
		}
		e, ok := r.byUser[uid]
		if !ok {
			continue
		}
		if e.sub.Kind == GMIn && e.sub.GroupID == groupID {
			out = append(out, Snapshot{UserID: uid, Conn: e.conn})
		}
	}
	return out
}

// Reap expires every session idle for at least the configured timeout
// and returns what it removed, so the caller can emit the same
// LEAVE/GM_LEAVE pushes a DISCONNECT would. Validate also removes an
// expired session but returns only ErrExpired, so no pushes follow an
// expiry it finds.
type ReapedSession struct {
	UserID int64
	Sub    Subscription
	Conn   Connection
}

func (r *Registry) Reap() []ReapedSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*entry
	now := time.Now()
	for _, e := range r.byToken {
		if now.Sub(e.lastActivity) >= r.timeout {
			expired = append(expired, e)
		}
	}

	out := make([]ReapedSession, 0, len(expired))
	for _, e := range expired {
		out = append(out, ReapedSession{UserID: e.userID, Sub: e.sub, Conn: e.conn})
		r.removeLocked(e)
	}
	return out
}

// Count returns the number of active sessions (diagnostics/metrics).
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byToken)
}
