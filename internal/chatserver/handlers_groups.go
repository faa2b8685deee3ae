package chatserver

import (
	"errors"
	"strconv"
	"strings"

	"github.com/adred-codev/chattcp/internal/protocol"
	"github.com/adred-codev/chattcp/internal/session"
	"github.com/adred-codev/chattcp/internal/store"
)

func parseGroupID(req request) (int64, bool) {
	v, ok := req.Payload["group_id"]
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	return id, err == nil
}

func handleGroupCreate(s *Server, userID int64, req request) string {
	vals, ok := req.Require("name")
	if !ok {
		return s.errLine(req.ReqID, errMissingFields)
	}
	gid, err := s.groups.Create(userID, vals[0])
	if err != nil {
		if errors.Is(err, store.ErrInvalidFields) {
			return s.errLine(req.ReqID, errInvalidFields)
		}
		s.log.Error().Err(err).Msg("group create failed")
		return s.errLine(req.ReqID, errServer)
	}
	return protocol.EncodeOK(req.ReqID,
		protocol.Kv("group_id", formatInt(gid)),
		protocol.Kv("name", vals[0]),
	)
}

func handleGroupList(s *Server, userID int64, req request) string {
	groups, err := s.groups.ListForUser(userID)
	if err != nil {
		s.log.Error().Err(err).Msg("group list failed")
		return s.errLine(req.ReqID, errServer)
	}
	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, formatInt(g.ID))
	}
	return protocol.EncodeOK(req.ReqID, protocol.Kv("groups", strings.Join(ids, ",")))
}

func handleGroupMembers(s *Server, userID int64, req request) string {
	groupID, ok := parseGroupID(req)
	if !ok {
		return s.errLine(req.ReqID, errInvalidGroupID)
	}
	if !s.groups.IsMember(groupID, userID) {
		return s.errLine(req.ReqID, errGroupNotVisible)
	}
	members, err := s.groups.Members(groupID)
	if err != nil {
		s.log.Error().Err(err).Msg("group members failed")
		return s.errLine(req.ReqID, errServer)
	}
	names := make([]string, 0, len(members))
	for _, uid := range members {
		uname, _ := s.accounts.LookupUsername(uid)
		names = append(names, uname)
	}
	return protocol.EncodeOK(req.ReqID, protocol.Kv("members", strings.Join(names, ",")))
}

func handleGroupAdd(s *Server, userID int64, req request) string {
	groupID, ok := parseGroupID(req)
	if !ok {
		return s.errLine(req.ReqID, errInvalidGroupID)
	}
	vals, ok := req.Require("username")
	if !ok {
		return s.errLine(req.ReqID, errMissingFields)
	}
	username := vals[0]

	if _, found := s.accounts.LookupID(username); !found {
		return s.errLine(req.ReqID, errUserNotFound)
	}

	if _, err := s.groups.AddMember(userID, groupID, username, s.accounts); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return s.errLine(req.ReqID, errInvalidGroupID)
		case errors.Is(err, store.ErrPermission):
			return s.errLine(req.ReqID, errNotGroupOwner)
		case errors.Is(err, store.ErrExists):
			return s.errLine(req.ReqID, errAlreadyMember)
		default:
			s.log.Error().Err(err).Msg("group add failed")
			return s.errLine(req.ReqID, errServer)
		}
	}
	return protocol.EncodeOK(req.ReqID,
		protocol.Kv("group_id", formatInt(groupID)),
		protocol.Kv("username", username),
		protocol.Kv("status", "added"),
	)
}

func handleGroupRemove(s *Server, userID int64, req request) string {
	groupID, ok := parseGroupID(req)
	if !ok {
		return s.errLine(req.ReqID, errInvalidGroupID)
	}
	vals, ok := req.Require("username")
	if !ok {
		return s.errLine(req.ReqID, errMissingFields)
	}
	username := vals[0]

	removedID, found := s.accounts.LookupID(username)
	if !found {
		return s.errLine(req.ReqID, errUserNotFound)
	}

	if _, err := s.groups.RemoveMember(userID, groupID, username, s.accounts); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return s.errLine(req.ReqID, errInvalidGroupID)
		case errors.Is(err, store.ErrPermission):
			return s.errLine(req.ReqID, errNotGroupOwner)
		case errors.Is(err, store.ErrSelf):
			return s.errLine(req.ReqID, errOwnerCantLeave)
		case errors.Is(err, store.ErrNotMember):
			return s.errLine(req.ReqID, errMemberNotFound)
		default:
			s.log.Error().Err(err).Msg("group remove failed")
			return s.errLine(req.ReqID, errServer)
		}
	}

	// A kicked member who is currently subscribed to this group loses
	// that subscription immediately: they get a targeted GM_KICKED, and
	// the remaining members see the same GM_LEAVE a voluntary departure
	// would produce.
	if conn, online := s.registry.ConnectionOf(removedID); online {
		if sub, had := s.registry.SubscriptionOf(removedID); had && sub.Kind == session.GMIn && sub.GroupID == groupID {
			s.registry.ClearSubscriptionByConn(conn)
			s.delivery.GroupKicked(conn, removedID)
			if members, err := s.groups.Members(groupID); err == nil {
				s.delivery.GroupLeave(groupID, removedID, username, members)
			}
		}
	}

	return protocol.EncodeOK(req.ReqID,
		protocol.Kv("group_id", formatInt(groupID)),
		protocol.Kv("username", username),
		protocol.Kv("status", "removed"),
	)
}

func handleGroupLeave(s *Server, userID int64, req request) string {
	groupID, ok := parseGroupID(req)
	if !ok {
		return s.errLine(req.ReqID, errInvalidGroupID)
	}
	if err := s.groups.Leave(userID, groupID); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return s.errLine(req.ReqID, errInvalidGroupID)
		case errors.Is(err, store.ErrPermission):
			return s.errLine(req.ReqID, errOwnerCantLeave)
		case errors.Is(err, store.ErrNotMember):
			return s.errLine(req.ReqID, errMemberNotFound)
		default:
			s.log.Error().Err(err).Msg("group leave failed")
			return s.errLine(req.ReqID, errServer)
		}
	}

	if sub, online := s.registry.SubscriptionOf(userID); online && sub.Kind == session.GMIn && sub.GroupID == groupID {
		username, _ := s.accounts.LookupUsername(userID)
		s.registry.SetSubscription(userID, session.NoneSub)
		if members, err := s.groups.Members(groupID); err == nil {
			s.delivery.GroupLeave(groupID, userID, username, members)
		}
	}

	return protocol.EncodeOK(req.ReqID,
		protocol.Kv("group_id", formatInt(groupID)),
		protocol.Kv("status", "left"),
	)
}
