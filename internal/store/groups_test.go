package store

import (
	"testing"

	"github.com/rs/zerolog"
)

func newGroupFixture(t *testing.T) (*GroupStore, *AccountStore, int64, int64, int64) {
	t.Helper()
	db := newTestDB(t)
	accounts := NewAccountStore(db, zerolog.Nop())
	groups := NewGroupStore(db, zerolog.Nop())

	ownerID, _ := accounts.Register("owner", "password1", "owner@example.com")
	memberID, _ := accounts.Register("member", "password1", "member@example.com")
	outsiderID, _ := accounts.Register("outsider", "password1", "outsider@example.com")
	return groups, accounts, ownerID, memberID, outsiderID
}

func TestGroupCreateAddsOwnerAsMember(t *testing.T) {
	groups, _, ownerID, _, _ := newGroupFixture(t)
	gid, err := groups.Create(ownerID, "general")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !groups.IsMember(gid, ownerID) {
		t.Fatalf("expected owner to be a member")
	}
}

func TestGroupAddMemberRequiresOwner(t *testing.T) {
	groups, accounts, ownerID, memberID, outsiderID := newGroupFixture(t)
	gid, _ := groups.Create(ownerID, "general")

	if _, err := groups.AddMember(outsiderID, gid, "member", accounts); err != ErrPermission {
		t.Fatalf("want ErrPermission got %v", err)
	}
	if _, err := groups.AddMember(ownerID, gid, "member", accounts); err != nil {
		t.Fatalf("add by owner: %v", err)
	}
	if !groups.IsMember(gid, memberID) {
		t.Fatalf("expected member added")
	}
}

func TestGroupRemoveMemberIsOwnerOnlyAndNotSelf(t *testing.T) {
	groups, accounts, ownerID, memberID, _ := newGroupFixture(t)
	gid, _ := groups.Create(ownerID, "general")
	groups.AddMember(ownerID, gid, "member", accounts)

	if _, err := groups.RemoveMember(memberID, gid, "member", accounts); err != ErrPermission {
		t.Fatalf("want ErrPermission got %v", err)
	}
	if _, err := groups.RemoveMember(ownerID, gid, "owner", accounts); err != ErrSelf {
		t.Fatalf("want ErrSelf got %v", err)
	}
	if _, err := groups.RemoveMember(ownerID, gid, "member", accounts); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if groups.IsMember(gid, memberID) {
		t.Fatalf("expected member removed")
	}
}

func TestGroupLeaveOwnerForbidden(t *testing.T) {
	groups, accounts, ownerID, memberID, _ := newGroupFixture(t)
	gid, _ := groups.Create(ownerID, "general")
	groups.AddMember(ownerID, gid, "member", accounts)

	if err := groups.Leave(ownerID, gid); err != ErrPermission {
		t.Fatalf("want ErrPermission got %v", err)
	}
	if err := groups.Leave(memberID, gid); err != nil {
		t.Fatalf("member leave: %v", err)
	}
	if groups.IsMember(gid, memberID) {
		t.Fatalf("expected member gone after leave")
	}
}

func TestGroupListForUser(t *testing.T) {
	groups, accounts, ownerID, memberID, _ := newGroupFixture(t)
	gid, _ := groups.Create(ownerID, "general")
	groups.AddMember(ownerID, gid, "member", accounts)

	list, err := groups.ListForUser(memberID)
	if err != nil || len(list) != 1 || list[0].ID != gid {
		t.Fatalf("list: %+v err=%v", list, err)
	}
}
