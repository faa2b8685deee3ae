package delivery

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/chattcp/internal/session"
)

type recordingConn struct {
	id    int
	lines []string
}

func (c *recordingConn) WriteRecord(line string) error {
	c.lines = append(c.lines, line)
	return nil
}

func TestPMDeliversOnlyToSubscribedRecipient(t *testing.T) {
	reg := session.NewRegistry(10, time.Hour, zerolog.Nop())
	conn := &recordingConn{id: 1}
	reg.Create(2, conn)
	reg.SetSubscription(2, session.PMWithSub(1))

	eng := NewEngine(reg, zerolog.Nop())
	eng.PM(1, 2, 42, "alice", "SGVsbG8=", 1700000000)

	if len(conn.lines) != 1 || !strings.HasPrefix(conn.lines[0], "PUSH PM ") {
		t.Fatalf("expected one PM push, got %v", conn.lines)
	}
	if !strings.Contains(conn.lines[0], "from=alice") {
		t.Fatalf("expected from=alice in push, got %q", conn.lines[0])
	}
}

func TestPMSkipsUnsubscribedRecipient(t *testing.T) {
	reg := session.NewRegistry(10, time.Hour, zerolog.Nop())
	conn := &recordingConn{id: 1}
	reg.Create(2, conn)
	// No subscription set.

	eng := NewEngine(reg, zerolog.Nop())
	eng.PM(1, 2, 42, "alice", "SGVsbG8=", 1700000000)

	if len(conn.lines) != 0 {
		t.Fatalf("expected no push, got %v", conn.lines)
	}
}

func TestPMJoinAndLeaveAreTwoSided(t *testing.T) {
	reg := session.NewRegistry(10, time.Hour, zerolog.Nop())
	aliceConn := &recordingConn{id: 1}
	bobConn := &recordingConn{id: 2}
	reg.Create(1, aliceConn)
	reg.Create(2, bobConn)
	reg.SetSubscription(1, session.PMWithSub(2))
	reg.SetSubscription(2, session.PMWithSub(1))

	eng := NewEngine(reg, zerolog.Nop())
	eng.PMJoin(2, 1, "bob")
	if len(aliceConn.lines) != 1 || !strings.Contains(aliceConn.lines[0], "PUSH JOIN user=bob") {
		t.Fatalf("expected alice to see bob's join, got %v", aliceConn.lines)
	}

	eng.PMLeave(2, 1, "bob")
	if len(aliceConn.lines) != 2 || !strings.Contains(aliceConn.lines[1], "PUSH LEAVE user=bob") {
		t.Fatalf("expected alice to see bob's leave, got %v", aliceConn.lines)
	}
}

func TestGMExcludesSenderAndUnsubscribed(t *testing.T) {
	reg := session.NewRegistry(10, time.Hour, zerolog.Nop())
	sender := &recordingConn{id: 1}
	member := &recordingConn{id: 2}
	idle := &recordingConn{id: 3}
	reg.Create(1, sender)
	reg.Create(2, member)
	reg.Create(3, idle)
	reg.SetSubscription(1, session.GMInSub(9))
	reg.SetSubscription(2, session.GMInSub(9))
	// user 3 never subscribes

	eng := NewEngine(reg, zerolog.Nop())
	eng.GM(1, 9, 7, "alice", "aGk=", 1700000000, []int64{1, 2, 3})

	if len(sender.lines) != 0 {
		t.Fatalf("sender should not receive its own push")
	}
	if len(member.lines) != 1 || !strings.HasPrefix(member.lines[0], "PUSH GM ") {
		t.Fatalf("expected member push, got %v", member.lines)
	}
	if len(idle.lines) != 0 {
		t.Fatalf("unsubscribed member should not receive push")
	}
}

func TestGroupKickedAddressesKickedConnDirectly(t *testing.T) {
	reg := session.NewRegistry(10, time.Hour, zerolog.Nop())
	conn := &recordingConn{id: 1}
	reg.Create(5, conn)
	reg.SetSubscription(5, session.GMInSub(9))

	eng := NewEngine(reg, zerolog.Nop())
	uid, _, ok := reg.ClearSubscriptionByConn(conn)
	if !ok || uid != 5 {
		t.Fatalf("clear subscription: uid=%d ok=%v", uid, ok)
	}
	eng.GroupKicked(conn, 5)

	if len(conn.lines) != 1 || conn.lines[0] != "PUSH GM_KICKED" {
		t.Fatalf("expected GM_KICKED push, got %v", conn.lines)
	}
}

func TestGroupJoinAndLeaveExcludeSelf(t *testing.T) {
	reg := session.NewRegistry(10, time.Hour, zerolog.Nop())
	a := &recordingConn{id: 1}
	b := &recordingConn{id: 2}
	reg.Create(1, a)
	reg.Create(2, b)
	reg.SetSubscription(1, session.GMInSub(9))
	reg.SetSubscription(2, session.GMInSub(9))

	eng := NewEngine(reg, zerolog.Nop())
	eng.GroupJoin(9, 2, "bob", []int64{1, 2})
	if len(a.lines) != 1 || a.lines[0] != "PUSH GM_JOIN user=bob" {
		t.Fatalf("expected a to see bob's join, got %v", a.lines)
	}
	if len(b.lines) != 0 {
		t.Fatalf("joiner should not see its own join push, got %v", b.lines)
	}

	eng.GroupLeave(9, 2, "bob", []int64{1, 2})
	if len(a.lines) != 2 || a.lines[1] != "PUSH GM_LEAVE user=bob" {
		t.Fatalf("expected a to see bob's leave, got %v", a.lines)
	}
}
