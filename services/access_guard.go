package services

import "fmt"

// AccessDecision is the edit permission of one caller for one screen status.
type AccessDecision struct {
	StatusID     int    `json:"status_id"`
	CanEdit      bool   `json:"can_edit"`
	AssignedRole Role   `json:"assigned_role"`
	LockReason   string `json:"lock_reason,omitempty"`
}

// AccessGuard derives who may mutate a screen's data from its workflow status.
// It is side-effect free; callers re-read the status inside their transaction.
type AccessGuard struct {
	statuses *StatusRegistry
}

func NewAccessGuard(statuses *StatusRegistry) *AccessGuard {
	return &AccessGuard{statuses: statuses}
}

// AssignedRole returns the role that currently owns a screen, RoleNone once approved.
func AssignedRole(statusID int) Role {
	switch statusID {
	case StatusDraft, StatusRejectedByChecker:
		return RoleMaker
	case StatusPendingChecker, StatusRejectedByHead:
		return RoleChecker
	case StatusPendingHead:
		return RoleHead
	default:
		return RoleNone
	}
}

// Evaluate grants edit rights to the assigned role and to System Admin.
func (g *AccessGuard) Evaluate(statusID int, caller Role) AccessDecision {
	assigned := AssignedRole(statusID)
	decision := AccessDecision{
		StatusID:     statusID,
		AssignedRole: assigned,
		CanEdit:      caller == RoleAdmin || (assigned != RoleNone && caller == assigned),
	}
	if decision.CanEdit {
		return decision
	}

	switch {
	case statusID == StatusApproved:
		decision.LockReason = "This screen has been approved and is locked. Only the System Admin can reset it."
	case assigned == RoleNone:
		decision.LockReason = fmt.Sprintf("No role is assigned to work on this screen while it is %s.", g.statuses.Name(statusID))
	default:
		decision.LockReason = fmt.Sprintf("This screen is %s and assigned to %s. Your role (%s) cannot edit it now.",
			g.statuses.Name(statusID), assigned, caller)
	}
	return decision
}

// AuthorizeAction checks the caller against the action's owning role.
// AdminReset is reserved for System Admin; every other action also accepts System Admin.
func (g *AccessGuard) AuthorizeAction(action Action, caller Role) error {
	required := action.RequiredRole()
	if caller == RoleAdmin || caller == required {
		return nil
	}
	return permissionDenied(action, required, caller)
}
