// Package policy decides whether an actor may perform an action on a resource.
// Decisions are pure functions of their arguments.
package policy

import "github.com/Dan9191/bank-cards/internal/models"

// Action is an operation subject to authorization
type Action int

const (
	ActionCreateCard Action = iota
	ActionChangeCardStatus
	ActionDeleteCard
	ActionListAllCards
	ActionReadCard
	ActionListCards
	ActionTransfer
	ActionManageUsers
)

var actionNames = map[Action]string{
	ActionCreateCard:       "create_card",
	ActionChangeCardStatus: "change_card_status",
	ActionDeleteCard:       "delete_card",
	ActionListAllCards:     "list_all_cards",
	ActionReadCard:         "read_card",
	ActionListCards:        "list_cards",
	ActionTransfer:         "transfer",
	ActionManageUsers:      "manage_users",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// Decision is the outcome of an authorization check
type Decision bool

const (
	Allow Decision = true
	Deny  Decision = false
)

// Resource describes the target of an action.
// OwnerID is used by read and list actions. The transfer fields describe
// the acting party named in the request and the owners of both cards.
type Resource struct {
	OwnerID int64

	ActingUserID       int64
	SourceOwnerID      int64
	DestinationOwnerID int64
}

// TransferResource builds the resource of a transfer between two cards
func TransferResource(actingUserID int64, from, to *models.Card) Resource {
	return Resource{
		ActingUserID:       actingUserID,
		SourceOwnerID:      from.OwnerID,
		DestinationOwnerID: to.OwnerID,
	}
}

// Authorize evaluates the rule for action. Unknown actions are denied.
func Authorize(actor models.Actor, action Action, res Resource) Decision {
	switch action {
	case ActionCreateCard, ActionChangeCardStatus, ActionDeleteCard, ActionListAllCards, ActionManageUsers:
		return Decision(actor.IsAdmin())
	case ActionReadCard, ActionListCards:
		return Decision(actor.IsAdmin() || actor.ID == res.OwnerID)
	case ActionTransfer:
		// Administrators get no bypass: funds move only between the actor's own cards.
		return Decision(actor.ID == res.ActingUserID &&
			actor.ID == res.SourceOwnerID &&
			actor.ID == res.DestinationOwnerID)
	default:
		return Deny
	}
}
