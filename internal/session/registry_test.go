package session

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeConn struct{ id int }

func (f *fakeConn) WriteRecord(string) error { return nil }

func newTestRegistry(timeout time.Duration) *Registry {
	return NewRegistry(4, timeout, zerolog.Nop())
}

func TestCreateAndValidate(t *testing.T) {
	r := newTestRegistry(time.Hour)
	c := &fakeConn{1}
	token, err := r.Create(42, c)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(token) != 32 {
		t.Fatalf("want 32-char token, got %d chars", len(token))
	}
	uid, err := r.Validate(token)
	if err != nil || uid != 42 {
		t.Fatalf("validate: uid=%d err=%v", uid, err)
	}
}

func TestSingleActiveSessionPerUser(t *testing.T) {
	r := newTestRegistry(time.Hour)
	c1, c2 := &fakeConn{1}, &fakeConn{2}
	if _, err := r.Create(1, c1); err != nil {
		t.Fatalf("create c1: %v", err)
	}
	if _, err := r.Create(1, c2); err != ErrAlreadyLoggedIn {
		t.Fatalf("want ErrAlreadyLoggedIn got %v", err)
	}
	// Same connection re-authenticating replaces its own prior session.
	if _, err := r.Create(1, c1); err != nil {
		t.Fatalf("reauth on same conn: %v", err)
	}
}

func TestDestroyFreesSlotForAnotherLogin(t *testing.T) {
	r := newTestRegistry(time.Hour)
	c1, c2 := &fakeConn{1}, &fakeConn{2}
	tok, _ := r.Create(1, c1)
	if _, _, ok := r.Destroy(tok); !ok {
		t.Fatalf("destroy should find the session")
	}
	if _, err := r.Create(1, c2); err != nil {
		t.Fatalf("create after destroy: %v", err)
	}
}

func TestValidateExpiresIdleSession(t *testing.T) {
	r := newTestRegistry(10 * time.Millisecond)
	tok, _ := r.Create(1, &fakeConn{1})
	time.Sleep(20 * time.Millisecond)
	if _, err := r.Validate(tok); err != ErrExpired {
		t.Fatalf("want ErrExpired got %v", err)
	}
	if _, err := r.Validate(tok); err != ErrNotFound {
		t.Fatalf("second validate should see it gone: %v", err)
	}
}

func TestReapReturnsExpiredSessionsWithSubscription(t *testing.T) {
	r := newTestRegistry(10 * time.Millisecond)
	conn := &fakeConn{1}
	r.Create(1, conn)
	r.SetSubscription(1, PMWithSub(2))
	time.Sleep(20 * time.Millisecond)

	reaped := r.Reap()
	if len(reaped) != 1 {
		t.Fatalf("want 1 reaped session, got %d", len(reaped))
	}
	if reaped[0].UserID != 1 || reaped[0].Sub.Kind != PMWith || reaped[0].Sub.PeerUserID != 2 {
		t.Fatalf("unexpected reaped entry: %+v", reaped[0])
	}
	if r.IsOnline(1) {
		t.Fatalf("user should be offline after reap")
	}
}

func TestRegistryFullRejectsNewSessions(t *testing.T) {
	r := newTestRegistry(time.Hour)
	for i := int64(0); i < 4; i++ {
		if _, err := r.Create(i, &fakeConn{int(i)}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if _, err := r.Create(99, &fakeConn{99}); err != ErrRegistryFull {
		t.Fatalf("want ErrRegistryFull got %v", err)
	}
}

func TestSubscriptionMutationAndQuery(t *testing.T) {
	r := newTestRegistry(time.Hour)
	r.Create(1, &fakeConn{1})
	r.Create(2, &fakeConn{2})

	if err := r.SetSubscription(1, PMWithSub(2)); err != nil {
		t.Fatalf("set sub: %v", err)
	}
	if !r.IsSubscribedToPMWith(1, 2) {
		t.Fatalf("expected subscribed")
	}
	if r.IsSubscribedToPMWith(2, 1) {
		t.Fatalf("peer should not be considered subscribed yet")
	}
}

func TestSubscribedToGroupExcludesSender(t *testing.T) {
	r := newTestRegistry(time.Hour)
	r.Create(1, &fakeConn{1})
	r.Create(2, &fakeConn{2})
	r.Create(3, &fakeConn{3})
	r.SetSubscription(1, GMInSub(9))
	r.SetSubscription(2, GMInSub(9))
	r.SetSubscription(3, GMInSub(8)) // different group

	snaps := r.SubscribedToGroup([]int64{1, 2, 3}, 9, 1)
	if len(snaps) != 1 || snaps[0].UserID != 2 {
		t.Fatalf("unexpected snapshot set: %+v", snaps)
	}
}

func TestClearSubscriptionByConn(t *testing.T) {
	r := newTestRegistry(time.Hour)
	conn := &fakeConn{1}
	r.Create(1, conn)
	r.SetSubscription(1, GMInSub(5))

	uid, had, ok := r.ClearSubscriptionByConn(conn)
	if !ok || uid != 1 || had.Kind != GMIn {
		t.Fatalf("clear: uid=%d had=%+v ok=%v", uid, had, ok)
	}
	sub, _ := r.SubscriptionOf(1)
	if sub.Kind != None {
		t.Fatalf("expected subscription cleared, got %+v", sub)
	}
}
