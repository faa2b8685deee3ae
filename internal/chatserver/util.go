package chatserver

import (
	"strconv"
	"strings"

	"github.com/adred-codev/chattcp/internal/session"
	"github.com/adred-codev/chattcp/internal/store"
)

func formatInt(n int64) string { return strconv.FormatInt(n, 10) }

// historyLine renders one PM or group message as
// "msg_id:from_username:content_b64:ts", the wire format shared by
// PM_HISTORY, PM_CHAT_START and GM_CHAT_START. content is already the
// base64 blob the client sent; the server never touches it.
func historyLine(msgID int64, fromUsername, content string, ts int64) string {
	return strings.Join([]string{
		formatInt(msgID),
		fromUsername,
		content,
		formatInt(ts),
	}, ":")
}

func joinHistory(lines []string) string {
	if len(lines) == 0 {
		return "empty"
	}
	return strings.Join(lines, ",")
}

func pmHistoryLines(msgs []store.PMMessage, accounts *store.AccountStore) []string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		uname, _ := accounts.LookupUsername(m.FromID)
		lines = append(lines, historyLine(m.MsgID, uname, m.Content, m.Sent.Unix()))
	}
	return lines
}

func gmHistoryLines(msgs []store.GMMessage, accounts *store.AccountStore) []string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		uname, _ := accounts.LookupUsername(m.FromID)
		lines = append(lines, historyLine(m.MsgID, uname, m.Content, m.Sent.Unix()))
	}
	return lines
}

// endSubscription implicitly ends whatever PM/GM subscription userID
// currently holds, emitting the same LEAVE-style push a deliberate
// PM_CHAT_END/GM_CHAT_END would have, then clears it. PM_CHAT_START and
// GM_CHAT_START call this before establishing a new subscription, since
// the connection worker's state machine has only one subscription slot.
func (s *Server) endSubscription(userID int64, username string) {
	sub, online := s.registry.SubscriptionOf(userID)
	if !online || sub.Kind == session.None {
		return
	}
	switch sub.Kind {
	case session.PMWith:
		s.delivery.PMLeave(userID, sub.PeerUserID, username)
	case session.GMIn:
		if members, err := s.groups.Members(sub.GroupID); err == nil {
			s.delivery.GroupLeave(sub.GroupID, userID, username, members)
		}
	}
	s.registry.SetSubscription(userID, session.NoneSub)
}
