package store

import (
	"testing"

	"github.com/rs/zerolog"
)

func newFriendFixture(t *testing.T) (*FriendStore, *AccountStore, int64, int64) {
	t.Helper()
	db := newTestDB(t)
	accounts := NewAccountStore(db, zerolog.Nop())
	friends := NewFriendStore(db, zerolog.Nop())

	aID, err := accounts.Register("alice", "password1", "alice@example.com")
	if err != nil {
		t.Fatalf("register alice: %v", err)
	}
	bID, err := accounts.Register("bob", "password1", "bob@example.com")
	if err != nil {
		t.Fatalf("register bob: %v", err)
	}
	return friends, accounts, aID, bID
}

func TestFriendInviteAcceptLifecycle(t *testing.T) {
	friends, accounts, aID, bID := newFriendFixture(t)

	if _, err := friends.Invite(aID, "bob", accounts); err != nil {
		t.Fatalf("invite: %v", err)
	}

	pending, err := friends.Pending(bID, accounts)
	if err != nil || len(pending) != 1 || pending[0].UserID != aID {
		t.Fatalf("pending: %+v err=%v", pending, err)
	}

	if _, err := friends.Accept(bID, "alice", accounts); err != nil {
		t.Fatalf("accept: %v", err)
	}

	aList, _ := friends.List(aID, accounts)
	bList, _ := friends.List(bID, accounts)
	if len(aList) != 1 || aList[0].Username != "bob" {
		t.Fatalf("alice's list: %+v", aList)
	}
	if len(bList) != 1 || bList[0].Username != "alice" {
		t.Fatalf("bob's list: %+v", bList)
	}
}

func TestFriendInviteRejectsSelf(t *testing.T) {
	friends, accounts, aID, _ := newFriendFixture(t)
	if _, err := friends.Invite(aID, "alice", accounts); err != ErrSelf {
		t.Fatalf("want ErrSelf got %v", err)
	}
}

func TestFriendInviteRejectsDuplicate(t *testing.T) {
	friends, accounts, aID, _ := newFriendFixture(t)
	if _, err := friends.Invite(aID, "bob", accounts); err != nil {
		t.Fatalf("first invite: %v", err)
	}
	if _, err := friends.Invite(aID, "bob", accounts); err != ErrExists {
		t.Fatalf("want ErrExists got %v", err)
	}
}

func TestFriendReject(t *testing.T) {
	friends, accounts, aID, bID := newFriendFixture(t)
	if _, err := friends.Invite(aID, "bob", accounts); err != nil {
		t.Fatalf("invite: %v", err)
	}
	if _, err := friends.Reject(bID, "alice", accounts); err != nil {
		t.Fatalf("reject: %v", err)
	}
	pending, _ := friends.Pending(bID, accounts)
	if len(pending) != 0 {
		t.Fatalf("expected no pending invites after reject, got %+v", pending)
	}
	// A fresh invite should now be possible again.
	if _, err := friends.Invite(aID, "bob", accounts); err != nil {
		t.Fatalf("reinvite after reject: %v", err)
	}
}

func TestFriendDelete(t *testing.T) {
	friends, accounts, aID, bID := newFriendFixture(t)
	friends.Invite(aID, "bob", accounts)
	friends.Accept(bID, "alice", accounts)

	if _, err := friends.Delete(aID, "bob", accounts); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if friends.AreFriends(aID, bID) {
		t.Fatalf("expected friendship removed")
	}
	if _, err := friends.Delete(aID, "bob", accounts); err != ErrNotFound {
		t.Fatalf("want ErrNotFound on second delete got %v", err)
	}
}
