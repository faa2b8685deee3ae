package chatserver

import (
	"errors"

	"github.com/adred-codev/chattcp/internal/metrics"
	"github.com/adred-codev/chattcp/internal/protocol"
	"github.com/adred-codev/chattcp/internal/session"
	"github.com/adred-codev/chattcp/internal/store"
)

func handlePing(s *Server, _ int64, req request) string {
	return protocol.EncodeOK(req.ReqID, protocol.Kv("pong", "1"))
}

func handleRegister(s *Server, _ int64, req request) string {
	vals, ok := req.Require("username", "password", "email")
	if !ok {
		return s.errLine(req.ReqID, errMissingFields)
	}
	userID, err := s.accounts.Register(vals[0], vals[1], vals[2])
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInvalidFields):
			return s.errLine(req.ReqID, errInvalidFields)
		case errors.Is(err, store.ErrExists):
			return s.errLine(req.ReqID, errUsernameExists)
		default:
			s.log.Error().Err(err).Msg("register failed")
			return s.errLine(req.ReqID, errServer)
		}
	}
	return protocol.EncodeOK(req.ReqID, protocol.Kv("user_id", formatInt(userID)))
}

func handleLogin(s *Server, _ int64, req request) string {
	vals, ok := req.Require("username", "password")
	if !ok {
		return s.errLine(req.ReqID, errMissingFields)
	}
	userID, err := s.accounts.Authenticate(vals[0], vals[1])
	if err != nil {
		return s.errLine(req.ReqID, errInvalidCreds)
	}

	token, err := s.registry.Create(userID, req.conn)
	if err != nil {
		if errors.Is(err, session.ErrAlreadyLoggedIn) {
			return s.errLine(req.ReqID, errAlreadyLoggedIn)
		}
		s.log.Error().Err(err).Msg("session create failed")
		return s.errLine(req.ReqID, errServer)
	}
	metrics.SessionsActive.Inc()

	return protocol.EncodeOK(req.ReqID,
		protocol.Kv("token", token),
		protocol.Kv("user_id", formatInt(userID)),
	)
}

func handleLogout(s *Server, _ int64, req request) string {
	token := req.Payload["token"]
	userID, sub, ok := s.registry.Destroy(token)
	if ok {
		metrics.SessionsActive.Dec()
		s.announceDeparture(userID, sub)
	}
	return protocol.EncodeOK(req.ReqID, protocol.Kv("ok", "1"))
}

func handleWhoami(s *Server, userID int64, req request) string {
	return protocol.EncodeOK(req.ReqID, protocol.Kv("user_id", formatInt(userID)))
}

func handleDisconnect(s *Server, _ int64, req request) string {
	return protocol.EncodeOK(req.ReqID, protocol.Kv("ok", "1"))
}
