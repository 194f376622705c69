package guard

import "fmt"

// Role identifies the kind of caller performing an action.
type Role string

const (
	RoleClient     Role = "client"
	RoleEnterprise Role = "enterprise"
	RoleOperator   Role = "operator"
	RoleAdmin      Role = "admin"
)

// Action names a workflow entry point the guard gates.
type Action string

const (
	ActionSessionRequest  Action = "session.request"
	ActionSessionConfirm  Action = "session.confirm"
	ActionSessionComplete Action = "session.complete"
	ActionSessionDelete   Action = "session.delete"
	ActionSessionRead     Action = "session.read"
	ActionSessionList     Action = "session.list"

	ActionMarketplaceList   Action = "marketplace.list"
	ActionApplicationApply  Action = "application.apply"
	ActionApplicationAccept Action = "application.accept"
	ActionApplicationReject Action = "application.reject"
	ActionApplicationList   Action = "application.list"

	ActionOfferCreate Action = "offer.create"
	ActionOfferRead   Action = "offer.read"
	ActionOfferList   Action = "offer.list"

	ActionActorManage  Action = "actor.manage"
	ActionAPIKeyManage Action = "apikey.manage"
)

// ForbiddenError indicates the caller's role lacks the action.
type ForbiddenError struct {
	Role   Role
	Action Action
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("role %s cannot perform %s", e.Role, e.Action)
}

// grants is the static permission table. Admin is handled in Can so the
// table only lists the three business roles.
var grants = map[Role]map[Action]bool{
	RoleClient: {
		ActionSessionRequest: true,
		ActionSessionRead:    true,
		ActionSessionList:    true,
		ActionOfferRead:      true,
	},
	RoleEnterprise: {
		ActionSessionConfirm:    true,
		ActionSessionComplete:   true,
		ActionSessionDelete:     true,
		ActionSessionRead:       true,
		ActionSessionList:       true,
		ActionApplicationAccept: true,
		ActionApplicationReject: true,
		ActionApplicationList:   true,
		ActionOfferCreate:       true,
		ActionOfferRead:         true,
		ActionOfferList:         true,
	},
	RoleOperator: {
		ActionMarketplaceList:  true,
		ActionApplicationApply: true,
		ActionSessionRead:      true,
	},
}

// Can is a pure predicate: no side effects, no I/O. Every controller
// checks it before touching the store.
func Can(role Role, action Action) bool {
	if role == RoleAdmin {
		return true
	}
	return grants[role][action]
}

// Check returns a ForbiddenError when Can is false.
func Check(role Role, action Action) error {
	if !Can(role, action) {
		return ForbiddenError{Role: role, Action: action}
	}
	return nil
}

// ValidRole reports whether r is one of the declared roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleClient, RoleEnterprise, RoleOperator, RoleAdmin:
		return true
	}
	return false
}
