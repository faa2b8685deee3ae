package store

import (
	"database/sql"
	"sync"
)

// IDAllocator hands out the single monotonically increasing message-id
// sequence shared by PM and GM messages. On cold start it recovers the
// counter from the union of both message tables rather than starting
// from zero, so ids never collide with anything already on disk.
type IDAllocator struct {
	mu   sync.Mutex
	next int64
}

// NewIDAllocator recovers the counter from the union of both message
// tables' highest msg_id.
func NewIDAllocator(db *sql.DB) (*IDAllocator, error) {
	var maxPM, maxGM sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(msg_id) FROM pm_messages`).Scan(&maxPM); err != nil {
		return nil, err
	}
	if err := db.QueryRow(`SELECT MAX(msg_id) FROM gm_messages`).Scan(&maxGM); err != nil {
		return nil, err
	}
	var highest int64
	if maxPM.Valid && maxPM.Int64 > highest {
		highest = maxPM.Int64
	}
	if maxGM.Valid && maxGM.Int64 > highest {
		highest = maxGM.Int64
	}
	return &IDAllocator{next: highest + 1}, nil
}

// Next returns the next id in the sequence.
func (a *IDAllocator) Next() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.next
	a.next++
	return id
}
