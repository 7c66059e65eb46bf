package policy

import (
	"testing"

	"github.com/Dan9191/bank-cards/internal/models"
)

var (
	admin = models.Actor{ID: 1, Role: models.RoleAdmin}
	alice = models.Actor{ID: 2, Role: models.RoleUser}
	bob   = models.Actor{ID: 3, Role: models.RoleUser}
)

func TestAdminOnlyActions(t *testing.T) {
	for _, action := range []Action{ActionCreateCard, ActionChangeCardStatus, ActionDeleteCard, ActionListAllCards, ActionManageUsers} {
		if Authorize(admin, action, Resource{OwnerID: alice.ID}) != Allow {
			t.Errorf("%s: admin denied", action)
		}
		// owning the resource does not help a regular user
		if Authorize(alice, action, Resource{OwnerID: alice.ID}) != Deny {
			t.Errorf("%s: user allowed", action)
		}
	}
}

func TestReadAndListRules(t *testing.T) {
	for _, action := range []Action{ActionReadCard, ActionListCards} {
		cases := []struct {
			actor models.Actor
			owner int64
			want  Decision
		}{
			{admin, alice.ID, Allow},
			{alice, alice.ID, Allow},
			{bob, alice.ID, Deny},
		}
		for _, tc := range cases {
			if got := Authorize(tc.actor, action, Resource{OwnerID: tc.owner}); got != tc.want {
				t.Errorf("%s actor=%d owner=%d got=%v want=%v", action, tc.actor.ID, tc.owner, got, tc.want)
			}
		}
	}
}

func TestTransferRule(t *testing.T) {
	own := func(id int64) *models.Card { return &models.Card{OwnerID: id} }
	cases := []struct {
		name   string
		actor  models.Actor
		acting int64
		from   int64
		to     int64
		want   Decision
	}{
		{"owner of both", alice, alice.ID, alice.ID, alice.ID, Allow},
		{"acting party differs", alice, bob.ID, alice.ID, alice.ID, Deny},
		{"source not owned", alice, alice.ID, bob.ID, alice.ID, Deny},
		{"destination not owned", alice, alice.ID, alice.ID, bob.ID, Deny},
		{"admin on user cards", admin, admin.ID, alice.ID, alice.ID, Deny},
		{"stranger", bob, bob.ID, alice.ID, alice.ID, Deny},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := TransferResource(tc.acting, own(tc.from), own(tc.to))
			if got := Authorize(tc.actor, ActionTransfer, res); got != tc.want {
				t.Fatalf("got=%v want=%v", got, tc.want)
			}
		})
	}
}

func TestUnknownActionDenied(t *testing.T) {
	if Authorize(admin, Action(99), Resource{}) != Deny {
		t.Fatal("unknown action must be denied")
	}
	if Action(99).String() != "unknown" {
		t.Fatal("unknown action name")
	}
}
