package chatserver

import (
	"errors"
	"strings"

	"github.com/adred-codev/chattcp/internal/protocol"
	"github.com/adred-codev/chattcp/internal/store"
)

func handleFriendInvite(s *Server, userID int64, req request) string {
	vals, ok := req.Require("username")
	if !ok {
		return s.errLine(req.ReqID, errMissingFields)
	}
	username := vals[0]

	toID, found := s.accounts.LookupID(username)
	if !found {
		return s.errLine(req.ReqID, errUserNotFound)
	}
	if toID == userID {
		return s.errLine(req.ReqID, errCannotInvSelf)
	}

	if _, err := s.friends.Invite(userID, username, s.accounts); err != nil {
		if errors.Is(err, store.ErrExists) {
			return s.errLine(req.ReqID, errAlreadyFriendOP)
		}
		s.log.Error().Err(err).Msg("friend invite failed")
		return s.errLine(req.ReqID, errServer)
	}
	return protocol.EncodeOK(req.ReqID,
		protocol.Kv("username", username),
		protocol.Kv("status", "pending"),
	)
}

func handleFriendAccept(s *Server, userID int64, req request) string {
	vals, ok := req.Require("username")
	if !ok {
		return s.errLine(req.ReqID, errMissingFields)
	}
	username := vals[0]

	fromID, found := s.accounts.LookupID(username)
	if !found {
		return s.errLine(req.ReqID, errUserNotFound)
	}
	if fromID == userID {
		return s.errLine(req.ReqID, errCannotAccSelf)
	}

	if _, err := s.friends.Accept(userID, username, s.accounts); err != nil {
		switch {
		case errors.Is(err, store.ErrExists):
			return s.errLine(req.ReqID, errAlreadyFriends)
		case errors.Is(err, store.ErrNotFound):
			return s.errLine(req.ReqID, errInviteNotFound)
		default:
			s.log.Error().Err(err).Msg("friend accept failed")
			return s.errLine(req.ReqID, errServer)
		}
	}
	return protocol.EncodeOK(req.ReqID,
		protocol.Kv("username", username),
		protocol.Kv("status", "accepted"),
	)
}

func handleFriendReject(s *Server, userID int64, req request) string {
	vals, ok := req.Require("username")
	if !ok {
		return s.errLine(req.ReqID, errMissingFields)
	}
	username := vals[0]

	fromID, found := s.accounts.LookupID(username)
	if !found {
		return s.errLine(req.ReqID, errUserNotFound)
	}
	if fromID == userID {
		return s.errLine(req.ReqID, errCannotRejSelf)
	}

	if _, err := s.friends.Reject(userID, username, s.accounts); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.errLine(req.ReqID, errInviteNotFound)
		}
		s.log.Error().Err(err).Msg("friend reject failed")
		return s.errLine(req.ReqID, errServer)
	}
	return protocol.EncodeOK(req.ReqID,
		protocol.Kv("username", username),
		protocol.Kv("status", "rejected"),
	)
}

func handleFriendPending(s *Server, userID int64, req request) string {
	pending, err := s.friends.Pending(userID, s.accounts)
	if err != nil {
		s.log.Error().Err(err).Msg("friend pending failed")
		return s.errLine(req.ReqID, errServer)
	}
	names := make([]string, 0, len(pending))
	for _, f := range pending {
		names = append(names, f.Username)
	}
	return protocol.EncodeOK(req.ReqID, protocol.Kv("username", strings.Join(names, ",")))
}

func handleFriendList(s *Server, userID int64, req request) string {
	friends, err := s.friends.List(userID, s.accounts)
	if err != nil {
		s.log.Error().Err(err).Msg("friend list failed")
		return s.errLine(req.ReqID, errServer)
	}
	entries := make([]string, 0, len(friends))
	for _, f := range friends {
		status := "offline"
		if s.registry.IsOnline(f.UserID) {
			status = "online"
		}
		entries = append(entries, f.Username+":"+status)
	}
	return protocol.EncodeOK(req.ReqID, protocol.Kv("username", strings.Join(entries, ",")))
}

func handleFriendDelete(s *Server, userID int64, req request) string {
	vals, ok := req.Require("username")
	if !ok {
		return s.errLine(req.ReqID, errMissingFields)
	}
	username := vals[0]

	otherID, found := s.accounts.LookupID(username)
	if !found {
		return s.errLine(req.ReqID, errUserNotFound)
	}
	if otherID == userID {
		return s.errLine(req.ReqID, errCannotDelSelf)
	}

	if _, err := s.friends.Delete(userID, username, s.accounts); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.errLine(req.ReqID, errFriendNotFound)
		}
		s.log.Error().Err(err).Msg("friend delete failed")
		return s.errLine(req.ReqID, errServer)
	}
	return protocol.EncodeOK(req.ReqID,
		protocol.Kv("username", username),
		protocol.Kv("status", "deleted"),
	)
}
