// Package delivery turns a stored PM or GM message, or a subscription
// lifecycle transition, into PUSH records for whichever recipients are
// currently subscribed to it.
package delivery

import (
	"strconv"

	"github.com/rs/zerolog"

	"github.com/adred-codev/chattcp/internal/protocol"
	"github.com/adred-codev/chattcp/internal/session"
)

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

// Engine fans out pushes using the session registry's subscription
// snapshots. It never mutates session state itself.
type Engine struct {
	registry *session.Registry
	log      zerolog.Logger
}

func NewEngine(registry *session.Registry, log zerolog.Logger) *Engine {
	return &Engine{registry: registry, log: log.With().Str("component", "delivery").Logger()}
}

// PM pushes a just-sent private message to the recipient, but only if
// that recipient is online and currently subscribed to a PM
// conversation with the sender. Offline or unsubscribed recipients
// pick the message up later via PM_HISTORY.
func (e *Engine) PM(fromID, toID, msgID int64, fromUsername, content string, ts int64) {
	if !e.registry.IsSubscribedToPMWith(toID, fromID) {
		return
	}
	conn, ok := e.registry.ConnectionOf(toID)
	if !ok {
		return
	}
	line := protocol.EncodePush("PM",
		protocol.Kv("from", fromUsername),
		protocol.Kv("content", content),
		protocol.Kv("msg_id", itoa(msgID)),
		protocol.Kv("ts", itoa(ts)),
	)
	conn.WriteRecord(line)
}

// PMJoin notifies peerID, if it is online and itself subscribed to a
// PM conversation with userID, that userID has entered the
// conversation (the two-sided "X has entered the chat" indicator).
func (e *Engine) PMJoin(userID, peerID int64, username string) {
	if !e.registry.IsSubscribedToPMWith(peerID, userID) {
		return
	}
	conn, ok := e.registry.ConnectionOf(peerID)
	if !ok {
		return
	}
	conn.WriteRecord(protocol.EncodePush("JOIN", protocol.Kv("user", username)))
}

// PMLeave notifies peerID, if it is online and still subscribed to a
// PM conversation with userID, that userID has left the conversation.
func (e *Engine) PMLeave(userID, peerID int64, username string) {
	if !e.registry.IsSubscribedToPMWith(peerID, userID) {
		return
	}
	conn, ok := e.registry.ConnectionOf(peerID)
	if !ok {
		return
	}
	conn.WriteRecord(protocol.EncodePush("LEAVE", protocol.Kv("user", username)))
}

// GM pushes a just-sent group message to every member of groupID who
// is online and currently subscribed to that group's chat, excluding
// the sender (whose client renders its own message optimistically).
func (e *Engine) GM(fromID, groupID, msgID int64, fromUsername, content string, ts int64, memberIDs []int64) {
	snaps := e.registry.SubscribedToGroup(memberIDs, groupID, fromID)
	if len(snaps) == 0 {
		return
	}
	line := protocol.EncodePush("GM",
		protocol.Kv("from", fromUsername),
		protocol.Kv("content", content),
		protocol.Kv("msg_id", itoa(msgID)),
		protocol.Kv("ts", itoa(ts)),
	)
	for _, s := range snaps {
		s.Conn.WriteRecord(line)
	}
}

// GroupJoin announces a new group-chat subscriber to every other
// online, subscribed member of groupID.
func (e *Engine) GroupJoin(groupID, joinedID int64, joinedUsername string, memberIDs []int64) {
	snaps := e.registry.SubscribedToGroup(memberIDs, groupID, joinedID)
	line := protocol.EncodePush("GM_JOIN", protocol.Kv("user", joinedUsername))
	for _, s := range snaps {
		s.Conn.WriteRecord(line)
	}
}

// GroupLeave announces a departure (voluntary leave or kick) to every
// other online, subscribed member of groupID.
func (e *Engine) GroupLeave(groupID, leftID int64, leftUsername string, memberIDs []int64) {
	snaps := e.registry.SubscribedToGroup(memberIDs, groupID, leftID)
	line := protocol.EncodePush("GM_LEAVE", protocol.Kv("user", leftUsername))
	for _, s := range snaps {
		s.Conn.WriteRecord(line)
	}
}

// GroupKicked sends the kicked member their own targeted notice. The
// caller has already cleared their subscription via
// Registry.ClearSubscriptionByConn before this is called, so conn is
// passed directly rather than looked up by user-id.
func (e *Engine) GroupKicked(conn session.Connection, userID int64) {
	conn.WriteRecord(protocol.EncodePush("GM_KICKED"))
}
