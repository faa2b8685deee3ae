package store

import (
	"testing"

	"github.com/rs/zerolog"
)

func newPMFixture(t *testing.T) (*PMStore, *AccountStore, *FriendStore, int64, int64) {
	t.Helper()
	db := newTestDB(t)
	accounts := NewAccountStore(db, zerolog.Nop())
	friends := NewFriendStore(db, zerolog.Nop())
	alloc, err := NewIDAllocator(db)
	if err != nil {
		t.Fatalf("new id allocator: %v", err)
	}
	pm := NewPMStore(db, alloc, zerolog.Nop())

	aID, _ := accounts.Register("alice", "password1", "alice@example.com")
	bID, _ := accounts.Register("bob", "password1", "bob@example.com")
	return pm, accounts, friends, aID, bID
}

func TestPMSendAndHistory(t *testing.T) {
	pm, accounts, friends, aID, bID := newPMFixture(t)

	if _, _, err := pm.Send(aID, "bob", "hello", accounts, friends); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, _, err := pm.Send(bID, "alice", "hi back", accounts, friends); err != nil {
		t.Fatalf("send reply: %v", err)
	}

	hist, err := pm.History(aID, "bob", 10, accounts)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("want 2 messages got %d", len(hist))
	}
	if hist[0].MsgID <= hist[1].MsgID {
		t.Fatalf("expected most recent first")
	}
}

func TestPMSendRejectsSelf(t *testing.T) {
	pm, accounts, friends, aID, _ := newPMFixture(t)
	if _, _, err := pm.Send(aID, "alice", "hi", accounts, friends); err != ErrSelf {
		t.Fatalf("want ErrSelf got %v", err)
	}
}

func TestPMConversationsTracksUnread(t *testing.T) {
	pm, accounts, friends, aID, bID := newPMFixture(t)
	pm.Send(aID, "bob", "msg1", accounts, friends)
	pm.Send(aID, "bob", "msg2", accounts, friends)

	convs, err := pm.Conversations(bID, accounts)
	if err != nil || len(convs) != 1 || convs[0].Unread != 2 {
		t.Fatalf("conversations: %+v err=%v", convs, err)
	}

	if err := pm.MarkRead(bID, aID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	convs, _ = pm.Conversations(bID, accounts)
	if convs[0].Unread != 0 {
		t.Fatalf("expected unread cleared, got %d", convs[0].Unread)
	}
}

func TestPMMessageIDsAreMonotonicAndShared(t *testing.T) {
	pm, accounts, friends, aID, bID := newPMFixture(t)
	_, id1, _ := pm.Send(aID, "bob", "a", accounts, friends)
	_, id2, _ := pm.Send(bID, "alice", "b", accounts, friends)
	if id2 <= id1 {
		t.Fatalf("expected strictly increasing ids, got %d then %d", id1, id2)
	}
}
