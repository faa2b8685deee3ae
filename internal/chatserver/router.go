package chatserver

import (
	"errors"
	"time"

	"github.com/adred-codev/chattcp/internal/metrics"
	"github.com/adred-codev/chattcp/internal/protocol"
	"github.com/adred-codev/chattcp/internal/session"
)

// request bundles a parsed record with per-connection context a
// handler needs beyond the payload itself.
type request struct {
	protocol.Request
	conn *conn
}

// unauthenticatedVerbs may be dispatched without a valid token.
var unauthenticatedVerbs = map[string]bool{
	"PING":     true,
	"REGISTER": true,
	"LOGIN":    true,
}

func buildRouter() map[string]handlerFunc {
	return map[string]handlerFunc{
		"PING":     handlePing,
		"REGISTER": handleRegister,
		"LOGIN":    handleLogin,
		"LOGOUT":   handleLogout,
		"WHOAMI":   handleWhoami,
		"DISCONNECT": handleDisconnect,

		"FRIEND_INVITE":  handleFriendInvite,
		"FRIEND_ACCEPT":  handleFriendAccept,
		"FRIEND_REJECT":  handleFriendReject,
		"FRIEND_PENDING": handleFriendPending,
		"FRIEND_LIST":    handleFriendList,
		"FRIEND_DELETE":  handleFriendDelete,

		"GROUP_CREATE":  handleGroupCreate,
		"GROUP_LIST":    handleGroupList,
		"GROUP_MEMBERS": handleGroupMembers,
		"GROUP_ADD":     handleGroupAdd,
		"GROUP_REMOVE":  handleGroupRemove,
		"GROUP_LEAVE":   handleGroupLeave,

		"PM_CONVERSATIONS": handlePMConversations,
		"PM_CHAT_START":    handlePMChatStart,
		"PM_CHAT_END":      handlePMChatEnd,
		"PM_SEND":          handlePMSend,
		"PM_HISTORY":       handlePMHistory,

		"GM_CHAT_START": handleGMChatStart,
		"GM_CHAT_END":   handleGMChatEnd,
		"GM_SEND":       handleGMSend,
	}
}

// dispatch implements the router contract of spec §4.10: unauthenticated
// verbs run without a token; everything else requires one, resolved via
// the session registry; unknown verbs and missing fields are reported
// as a single ERR record carrying the request's own REQ_ID.
func (s *Server) dispatch(c *conn, req protocol.Request) string {
	start := time.Now()
	defer func() {
		metrics.VerbLatency.WithLabelValues(req.Verb).Observe(time.Since(start).Seconds())
	}()

	handler, known := s.handlers[req.Verb]
	if !known {
		return s.errLine(req.ReqID, errUnknownCommand)
	}

	var userID int64
	if !unauthenticatedVerbs[req.Verb] {
		token, ok := req.Payload["token"]
		if !ok {
			return s.errLine(req.ReqID, errMissingFields)
		}
		uid, err := s.registry.Validate(token)
		if err != nil {
			if errors.Is(err, session.ErrExpired) {
				metrics.SessionsActive.Dec()
			}
			return s.errLine(req.ReqID, errInvalidToken)
		}
		userID = uid
	}

	return handler(s, userID, request{Request: req, conn: c})
}

func (s *Server) errLine(reqID string, e wireError) string {
	metrics.ErrorsTotal.WithLabelValues(e.Tag).Inc()
	return protocol.EncodeErr(reqID, e.Code, e.Tag)
}

// announceDeparture emits whichever LEAVE-style pushes correspond to
// sub, the subscription a user held at the moment their session ended
// (logout, disconnect, or idle expiry). It does not touch session
// state; callers have already removed the session.
func (s *Server) announceDeparture(userID int64, sub session.Subscription) {
	username, _ := s.accounts.LookupUsername(userID)
	switch sub.Kind {
	case session.PMWith:
		s.delivery.PMLeave(userID, sub.PeerUserID, username)
	case session.GMIn:
		members, err := s.groups.Members(sub.GroupID)
		if err != nil {
			s.log.Warn().Err(err).Int64("group_id", sub.GroupID).Msg("lookup members on departure")
			return
		}
		s.delivery.GroupLeave(sub.GroupID, userID, username, members)
	}
}
