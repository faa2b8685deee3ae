package chatserver

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/adred-codev/chattcp/internal/protocol"
	"github.com/adred-codev/chattcp/internal/session"
	"github.com/adred-codev/chattcp/internal/store"
)

func handlePMConversations(s *Server, userID int64, req request) string {
	convos, err := s.pm.Conversations(userID, s.accounts)
	if err != nil {
		s.log.Error().Err(err).Msg("pm conversations failed")
		return s.errLine(req.ReqID, errServer)
	}
	if len(convos) == 0 {
		return protocol.EncodeOK(req.ReqID, protocol.Kv("conversations", "empty"))
	}
	parts := make([]string, 0, len(convos))
	for _, c := range convos {
		parts = append(parts, c.Username+":"+strconv.Itoa(c.Unread))
	}
	return protocol.EncodeOK(req.ReqID, protocol.Kv("conversations", strings.Join(parts, ",")))
}

func handlePMChatStart(s *Server, userID int64, req request) string {
	vals, ok := req.Require("with")
	if !ok {
		return s.errLine(req.ReqID, errMissingFields)
	}
	peerUsername := vals[0]
	peerID, found := s.accounts.LookupID(peerUsername)
	if !found {
		return s.errLine(req.ReqID, errUserNotFound)
	}

	username, _ := s.accounts.LookupUsername(userID)
	s.endSubscription(userID, username)

	if err := s.pm.MarkRead(userID, peerID); err != nil {
		s.log.Error().Err(err).Msg("pm mark read failed")
		return s.errLine(req.ReqID, errServer)
	}
	msgs, err := s.pm.History(userID, peerUsername, 50, s.accounts)
	if err != nil {
		s.log.Error().Err(err).Msg("pm history failed")
		return s.errLine(req.ReqID, errServer)
	}

	if err := s.registry.SetSubscription(userID, session.PMWithSub(peerID)); err != nil {
		s.log.Error().Err(err).Msg("pm chat start set subscription failed")
		return s.errLine(req.ReqID, errServer)
	}
	s.delivery.PMJoin(userID, peerID, username)

	return protocol.EncodeOK(req.ReqID,
		protocol.Kv("with", peerUsername),
		protocol.Kv("me", username),
		protocol.Kv("history", joinHistory(pmHistoryLines(msgs, s.accounts))),
	)
}

func handlePMChatEnd(s *Server, userID int64, req request) string {
	sub, online := s.registry.SubscriptionOf(userID)
	if online && sub.Kind == session.PMWith {
		if err := s.pm.MarkRead(userID, sub.PeerUserID); err != nil {
			s.log.Error().Err(err).Msg("pm mark read failed")
			return s.errLine(req.ReqID, errServer)
		}
		username, _ := s.accounts.LookupUsername(userID)
		s.delivery.PMLeave(userID, sub.PeerUserID, username)
		s.registry.SetSubscription(userID, session.NoneSub)
	}
	return protocol.EncodeOK(req.ReqID, protocol.Kv("status", "chat_ended"))
}

func handlePMSend(s *Server, userID int64, req request) string {
	vals, ok := req.Require("to", "content")
	if !ok {
		return s.errLine(req.ReqID, errMissingFields)
	}
	toUsername, content := vals[0], vals[1]

	toID, found := s.accounts.LookupID(toUsername)
	if !found {
		return s.errLine(req.ReqID, errUserNotFound)
	}
	if toID == userID {
		return s.errLine(req.ReqID, errCannotSendSelf)
	}

	_, msgID, err := s.pm.Send(userID, toUsername, content, s.accounts, s.friends)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return s.errLine(req.ReqID, errUserNotFound)
		case errors.Is(err, store.ErrSelf):
			return s.errLine(req.ReqID, errCannotSendSelf)
		default:
			s.log.Error().Err(err).Msg("pm send failed")
			return s.errLine(req.ReqID, errServer)
		}
	}

	username, _ := s.accounts.LookupUsername(userID)
	s.delivery.PM(userID, toID, msgID, username, content, time.Now().Unix())

	return protocol.EncodeOK(req.ReqID,
		protocol.Kv("msg_id", formatInt(msgID)),
		protocol.Kv("to", toUsername),
		protocol.Kv("status", "sent"),
	)
}

func handlePMHistory(s *Server, userID int64, req request) string {
	vals, ok := req.Require("with")
	if !ok {
		return s.errLine(req.ReqID, errMissingFields)
	}
	withUsername := vals[0]

	limit := 50
	if raw, present := req.Payload["limit"]; present {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	msgs, err := s.pm.History(userID, withUsername, limit, s.accounts)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.errLine(req.ReqID, errUserNotFound)
		}
		s.log.Error().Err(err).Msg("pm history failed")
		return s.errLine(req.ReqID, errServer)
	}

	return protocol.EncodeOK(req.ReqID,
		protocol.Kv("with", withUsername),
		protocol.Kv("messages", joinHistory(pmHistoryLines(msgs, s.accounts))),
	)
}
