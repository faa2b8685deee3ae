// Package chatserver implements the listener, per-connection worker,
// request router and verb handlers of the chat server.
package chatserver

import (
	"context"
	"database/sql"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/chattcp/internal/delivery"
	"github.com/adred-codev/chattcp/internal/metrics"
	"github.com/adred-codev/chattcp/internal/session"
	"github.com/adred-codev/chattcp/internal/store"
)

// Server owns every shared dependency a connection worker needs:
// stores, the session registry and the delivery engine.
type Server struct {
	log      zerolog.Logger
	registry *session.Registry
	delivery *delivery.Engine

	accounts *store.AccountStore
	friends  *store.FriendStore
	groups   *store.GroupStore
	pm       *store.PMStore
	gm       *store.GMStore

	handlers map[string]handlerFunc

	listener net.Listener
	wg       sync.WaitGroup

	reapInterval time.Duration
}

// handlerFunc is one verb's implementation. userID is 0 for the
// unauthenticated verbs (PING, REGISTER, LOGIN).
type handlerFunc func(s *Server, userID int64, req request) string

// New wires a Server from an already-open database handle.
func New(db *sql.DB, maxSessions int, sessionTimeout, reapInterval time.Duration, log zerolog.Logger) (*Server, error) {
	alloc, err := store.NewIDAllocator(db)
	if err != nil {
		return nil, err
	}

	registry := session.NewRegistry(maxSessions, sessionTimeout, log)
	s := &Server{
		log:          log.With().Str("component", "chatserver").Logger(),
		registry:     registry,
		accounts:     store.NewAccountStore(db, log),
		friends:      store.NewFriendStore(db, log),
		groups:       store.NewGroupStore(db, log),
		pm:           store.NewPMStore(db, alloc, log),
		gm:           store.NewGMStore(db, alloc, log),
		reapInterval: reapInterval,
	}
	s.delivery = delivery.NewEngine(registry, log)
	s.handlers = buildRouter()
	return s, nil
}

// Listen opens the TCP listener without accepting connections yet, so
// callers (including tests using an ephemeral ":0" port) can learn the
// bound address before Serve starts handling traffic.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Addr returns the listener's bound address. Valid only after Listen.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled. Listen must have
// been called first.
func (s *Server) Serve(ctx context.Context) error {
	ln := s.listener
	s.log.Info().Str("addr", ln.Addr().String()).Msg("chat server listening")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reapLoop(ctx)
	}()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		raw, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				return err
			}
		}
		metrics.ConnectionsTotal.Inc()
		metrics.ConnectionsActive.Inc()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer metrics.ConnectionsActive.Dec()
			s.handleConnection(raw)
		}()
	}
}

// reapLoop periodically expires idle sessions, closing their sockets
// and emitting the same departure pushes an explicit DISCONNECT would.
func (s *Server) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(s.reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, reaped := range s.registry.Reap() {
				metrics.SessionsExpired.Inc()
				metrics.SessionsActive.Dec()
				s.announceDeparture(reaped.UserID, reaped.Sub)
				if reaped.Conn != nil {
					if c, ok := reaped.Conn.(*conn); ok {
						c.Close()
					}
				}
			}
		}
	}
}
