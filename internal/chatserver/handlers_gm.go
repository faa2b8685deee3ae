package chatserver

import (
	"errors"
	"time"

	"github.com/adred-codev/chattcp/internal/protocol"
	"github.com/adred-codev/chattcp/internal/session"
	"github.com/adred-codev/chattcp/internal/store"
)

func handleGMChatStart(s *Server, userID int64, req request) string {
	groupID, ok := parseGroupID(req)
	if !ok {
		return s.errLine(req.ReqID, errInvalidGroupID)
	}
	group, err := s.groups.Get(groupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.errLine(req.ReqID, errInvalidGroupID)
		}
		s.log.Error().Err(err).Msg("gm chat start lookup failed")
		return s.errLine(req.ReqID, errServer)
	}
	if !s.groups.IsMember(groupID, userID) {
		return s.errLine(req.ReqID, errNotGroupMember)
	}

	username, _ := s.accounts.LookupUsername(userID)
	s.endSubscription(userID, username)

	msgs, err := s.gm.History(groupID, 50)
	if err != nil {
		s.log.Error().Err(err).Msg("gm history failed")
		return s.errLine(req.ReqID, errServer)
	}

	if err := s.registry.SetSubscription(userID, session.GMInSub(groupID)); err != nil {
		s.log.Error().Err(err).Msg("gm chat start set subscription failed")
		return s.errLine(req.ReqID, errServer)
	}
	if members, err := s.groups.Members(groupID); err == nil {
		s.delivery.GroupJoin(groupID, userID, username, members)
	}

	return protocol.EncodeOK(req.ReqID,
		protocol.Kv("group_name", group.Name),
		protocol.Kv("me", username),
		protocol.Kv("history", joinHistory(gmHistoryLines(msgs, s.accounts))),
	)
}

func handleGMChatEnd(s *Server, userID int64, req request) string {
	sub, online := s.registry.SubscriptionOf(userID)
	if online && sub.Kind == session.GMIn {
		username, _ := s.accounts.LookupUsername(userID)
		if members, err := s.groups.Members(sub.GroupID); err == nil {
			s.delivery.GroupLeave(sub.GroupID, userID, username, members)
		}
		s.registry.SetSubscription(userID, session.NoneSub)
	}
	return protocol.EncodeOK(req.ReqID, protocol.Kv("status", "chat_ended"))
}

func handleGMSend(s *Server, userID int64, req request) string {
	groupID, ok := parseGroupID(req)
	if !ok {
		return s.errLine(req.ReqID, errInvalidGroupID)
	}
	vals, ok := req.Require("content")
	if !ok {
		return s.errLine(req.ReqID, errMissingFields)
	}
	content := vals[0]

	if _, err := s.groups.Owner(groupID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.errLine(req.ReqID, errInvalidGroupID)
		}
		s.log.Error().Err(err).Msg("gm send group lookup failed")
		return s.errLine(req.ReqID, errServer)
	}
	if !s.groups.IsMember(groupID, userID) {
		return s.errLine(req.ReqID, errNotGroupMember)
	}

	msgID, err := s.gm.Send(userID, groupID, content)
	if err != nil {
		s.log.Error().Err(err).Msg("gm send failed")
		return s.errLine(req.ReqID, errServer)
	}

	username, _ := s.accounts.LookupUsername(userID)
	if members, err := s.groups.Members(groupID); err == nil {
		s.delivery.GM(userID, groupID, msgID, username, content, time.Now().Unix(), members)
	}

	return protocol.EncodeOK(req.ReqID,
		protocol.Kv("msg_id", formatInt(msgID)),
		protocol.Kv("group_id", formatInt(groupID)),
		protocol.Kv("status", "sent"),
	)
}
