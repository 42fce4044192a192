package services

import (
	"strings"
)

// Action is one of the fixed workflow action tokens.
type Action string

const (
	ActionSubmitToChecker Action = "SubmitToChecker"
	ActionCheckerApprove  Action = "CheckerApprove"
	ActionCheckerReject   Action = "CheckerReject"
	ActionHeadApprove     Action = "HeadApprove"
	ActionHeadReject      Action = "HeadReject"
	ActionAdminReset      Action = "AdminReset"
)

var allActions = []Action{
	ActionSubmitToChecker,
	ActionCheckerApprove,
	ActionCheckerReject,
	ActionHeadApprove,
	ActionHeadReject,
	ActionAdminReset,
}

var actionRoles = map[Action]Role{
	ActionSubmitToChecker: RoleMaker,
	ActionCheckerApprove:  RoleChecker,
	ActionCheckerReject:   RoleChecker,
	ActionHeadApprove:     RoleHead,
	ActionHeadReject:      RoleHead,
	ActionAdminReset:      RoleAdmin,
}

// ParseAction matches raw against the action tokens, ignoring case and surrounding space.
func ParseAction(raw string) (Action, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, action := range allActions {
		if strings.EqualFold(trimmed, string(action)) {
			return action, true
		}
	}
	return "", false
}

// AllActions returns every action token in workflow order.
func AllActions() []Action {
	out := make([]Action, len(allActions))
	copy(out, allActions)
	return out
}

func (a Action) Valid() bool {
	_, ok := actionRoles[a]
	return ok
}

// RequiresRemarks reports whether the action is a rejection.
func (a Action) RequiresRemarks() bool {
	return a == ActionCheckerReject || a == ActionHeadReject
}

// RequiredRole is the role that owns the action. Admin may perform any action.
func (a Action) RequiredRole() Role {
	return actionRoles[a]
}

type transitionKey struct {
	from   int
	action Action
}

var transitionTable = map[transitionKey]int{
	{StatusDraft, ActionSubmitToChecker}:         StatusPendingChecker,
	{StatusPendingChecker, ActionCheckerApprove}: StatusPendingHead,
	{StatusPendingChecker, ActionCheckerReject}:  StatusDraft,
	{StatusPendingHead, ActionHeadApprove}:       StatusApproved,
	{StatusPendingHead, ActionHeadReject}:        StatusPendingChecker,
}

// Transition is the outcome of a legal state machine step.
type Transition struct {
	From        int
	To          int
	Action      Action
	RecordAudit bool
	PurgeAudit  bool
}

// StateMachine maps (current status, action, remarks) to the next status. It holds
// no per-screen state and never touches the store.
type StateMachine struct {
	statuses *StatusRegistry
}

func NewStateMachine(statuses *StatusRegistry) *StateMachine {
	return &StateMachine{statuses: statuses}
}

// Next validates action against current. Remarks are checked first so a rejection
// without remarks always fails with ErrMissingRemarks.
func (sm *StateMachine) Next(current int, action Action, remarks string) (Transition, error) {
	if !action.Valid() {
		return Transition{}, invalidTransition(sm.statuses, current, action)
	}
	if action.RequiresRemarks() && strings.TrimSpace(remarks) == "" {
		return Transition{}, missingRemarks(action)
	}

	if action == ActionAdminReset {
		return Transition{
			From:       current,
			To:         StatusDraft,
			Action:     action,
			PurgeAudit: true,
		}, nil
	}

	next, ok := transitionTable[transitionKey{from: loopBackStatus(current), action: action}]
	if !ok {
		return Transition{}, invalidTransition(sm.statuses, current, action)
	}
	return Transition{
		From:        current,
		To:          next,
		Action:      action,
		RecordAudit: true,
	}, nil
}

// AvailableActions lists the actions legal from current, AdminReset included.
func (sm *StateMachine) AvailableActions(current int) []Action {
	out := make([]Action, 0, 3)
	for _, action := range allActions {
		if action == ActionAdminReset {
			out = append(out, action)
			continue
		}
		if _, ok := transitionTable[transitionKey{from: loopBackStatus(current), action: action}]; ok {
			out = append(out, action)
		}
	}
	return out
}

// loopBackStatus maps the never-entered rejected statuses onto the status a rejection
// actually returns to, so legacy rows in those statuses stay workable.
func loopBackStatus(statusID int) int {
	switch statusID {
	case StatusRejectedByChecker:
		return StatusDraft
	case StatusRejectedByHead:
		return StatusPendingChecker
	default:
		return statusID
	}
}
