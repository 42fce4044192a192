package services

import (
	"context"
	"fmt"
	"time"

	"statistics-workflow-api/config"
	"statistics-workflow-api/models"
	"statistics-workflow-api/utils"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ScreenResolver reports whether a screen code is governed. *config.ScreenCatalog implements it.
type ScreenResolver interface {
	Lookup(code string) (config.ScreenDefinition, bool)
}

// ActionRequest is one workflow action issued by an authenticated caller.
type ActionRequest struct {
	ScreenCode string
	Action     Action
	Remarks    string
	Actor      Actor
}

// ActionResult is returned for a committed action. AuditID is nil for AdminReset.
type ActionResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	NewStatusID   int    `json:"new_status_id"`
	NewStatusName string `json:"new_status_name"`
	AuditID       *int64 `json:"audit_id"`
}

// ScreenStatus is the current workflow position of a screen.
type ScreenStatus struct {
	ScreenCode       string   `json:"screen_code"`
	StatusID         int      `json:"status_id"`
	StatusName       string   `json:"status_name"`
	StatusCode       string   `json:"status_code"`
	Version          int64    `json:"version"`
	AvailableActions []Action `json:"available_actions"`
}

// RecordChange describes a dataset row mutation for its row-level audit entry.
type RecordChange struct {
	Table    string
	RecordID int
	Action   string
}

// RecordTarget is the audit target of a dataset row.
func RecordTarget(table string, recordID int) string {
	return fmt.Sprintf("%s:%d", table, recordID)
}

type WorkflowService struct {
	db       *gorm.DB
	statuses *StatusRegistry
	machine  *StateMachine
	guard    *AccessGuard
	audit    *AuditTrail
	screens  ScreenResolver
	notifier Notifier
	now      func() time.Time
}

type WorkflowServiceOption func(*WorkflowService)

// WithScreens restricts the service to governed screens; unknown codes fail with ErrNotFound.
func WithScreens(screens ScreenResolver) WorkflowServiceOption {
	return func(s *WorkflowService) { s.screens = screens }
}

func WithNotifier(notifier Notifier) WorkflowServiceOption {
	return func(s *WorkflowService) { s.notifier = notifier }
}

func WithClock(now func() time.Time) WorkflowServiceOption {
	return func(s *WorkflowService) { s.now = now }
}

func NewWorkflowService(db *gorm.DB, statuses *StatusRegistry, audit *AuditTrail, opts ...WorkflowServiceOption) *WorkflowService {
	if db == nil {
		db = config.DB
	}
	if audit == nil {
		audit = NewAuditTrail(db, statuses, nil)
	}
	s := &WorkflowService{
		db:       db,
		statuses: statuses,
		machine:  NewStateMachine(statuses),
		guard:    NewAccessGuard(statuses),
		audit:    audit,
		notifier: Notifiers{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WorkflowService) Statuses() *StatusRegistry { return s.statuses }

func (s *WorkflowService) Guard() *AccessGuard { return s.guard }

func (s *WorkflowService) Audit() *AuditTrail { return s.audit }

func (s *WorkflowService) Screens() ScreenResolver { return s.screens }

// ResolveScreen normalises code and checks it against the governed screens.
func (s *WorkflowService) ResolveScreen(code string) (string, error) {
	normalized := config.NormalizeScreenCode(code)
	if normalized == "" {
		return "", notFound("screen code is required")
	}
	if s.screens != nil {
		if _, ok := s.screens.Lookup(normalized); !ok {
			return "", notFound("screen %s is not a governed screen", normalized)
		}
	}
	return normalized, nil
}

// CurrentStatus reads a screen's status. A screen nobody has acted on yet is Draft.
func (s *WorkflowService) CurrentStatus(ctx context.Context, screen string) (*ScreenStatus, error) {
	code, err := s.ResolveScreen(screen)
	if err != nil {
		return nil, err
	}

	state := models.ScreenWorkflowState{ScreenCode: code, StatusID: StatusDraft}
	err = s.db.WithContext(ctx).Where("screen_code = ?", code).First(&state).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, persistenceFailure("read screen status", err)
	}

	status, _ := s.statuses.StatusByID(state.StatusID)
	return &ScreenStatus{
		ScreenCode:       code,
		StatusID:         state.StatusID,
		StatusName:       s.statuses.Name(state.StatusID),
		StatusCode:       status.StatusCode,
		Version:          state.Version,
		AvailableActions: s.machine.AvailableActions(state.StatusID),
	}, nil
}

// Access evaluates the Access Guard for role against the screen's current status.
func (s *WorkflowService) Access(ctx context.Context, screen string, role Role) (AccessDecision, error) {
	status, err := s.CurrentStatus(ctx, screen)
	if err != nil {
		return AccessDecision{}, err
	}
	return s.guard.Evaluate(status.StatusID, role), nil
}

// Apply runs one workflow action as a single transaction: read status, validate,
// compare-and-swap the status and append (or, for AdminReset, purge) the audit trail.
// The change signal is published only after commit.
func (s *WorkflowService) Apply(ctx context.Context, req ActionRequest) (*ActionResult, error) {
	code, err := s.ResolveScreen(req.ScreenCode)
	if err != nil {
		return nil, err
	}
	if !req.Action.Valid() {
		return nil, invalidInput("unknown workflow action %q", req.Action)
	}
	if err := s.guard.AuthorizeAction(req.Action, req.Actor.Role); err != nil {
		return nil, err
	}
	remarks := utils.SanitizeInput(req.Remarks)
	if req.Action.RequiresRemarks() && remarks == "" {
		return nil, missingRemarks(req.Action)
	}

	now := s.now()
	var (
		transition Transition
		auditID    *int64
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state, created, err := s.loadState(tx, code, now)
		if err != nil {
			return err
		}
		transition, err = s.machine.Next(state.StatusID, req.Action, remarks)
		if err != nil {
			return err
		}
		if err := s.compareAndSwap(tx, state, transition.To, req.Actor, now); err != nil {
			if errors.Is(err, errStaleState) {
				return s.resolveConflict(tx, code, req.Action, remarks)
			}
			return err
		}

		switch {
		case transition.PurgeAudit:
			purged, err := s.audit.Purge(ctx, tx, code)
			if err != nil {
				return err
			}
			config.Log.WithField("screen_code", code).WithField("user_id", req.Actor.UserID).
				WithField("purged_entries", purged).Info("workflow reset to draft")
		case transition.RecordAudit:
			var from *int
			if !created {
				from = &transition.From
			}
			id, err := s.audit.Append(ctx, tx, AuditEntryInput{
				Target:       code,
				Action:       string(req.Action),
				FromStatusID: from,
				ToStatusID:   transition.To,
				Remarks:      remarks,
				Actor:        req.Actor,
				At:           now,
			})
			if err != nil {
				return err
			}
			auditID = &id
		}
		return nil
	})
	if err != nil {
		return nil, asWorkflowError("apply workflow action", err)
	}

	s.notifier.Publish(newStatusChangedEvent(code, transition, s.statuses, req.Actor, now))

	return &ActionResult{
		Success:       true,
		Message:       fmt.Sprintf("%s completed; screen is now %s", req.Action, s.statuses.Name(transition.To)),
		NewStatusID:   transition.To,
		NewStatusName: s.statuses.Name(transition.To),
		AuditID:       auditID,
	}, nil
}

// GuardedMutation runs mutate inside a transaction only if the Access Guard lets actor
// edit the screen right now, and appends a row-level audit entry for the change.
// The state row's version is bumped so a concurrent transition cannot commit on a
// status read before this edit.
func (s *WorkflowService) GuardedMutation(ctx context.Context, screen string, actor Actor, mutate func(tx *gorm.DB) (RecordChange, error)) (*RecordChange, int64, error) {
	code, err := s.ResolveScreen(screen)
	if err != nil {
		return nil, 0, err
	}

	now := s.now()
	var (
		change  RecordChange
		auditID int64
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state, _, err := s.loadState(tx, code, now)
		if err != nil {
			return err
		}
		decision := s.guard.Evaluate(state.StatusID, actor.Role)
		if !decision.CanEdit {
			return &WorkflowError{
				Kind:          ErrPermissionDenied,
				Message:       decision.LockReason,
				CurrentStatus: state.StatusID,
				RequiredRole:  decision.AssignedRole,
			}
		}
		if err := s.compareAndSwap(tx, state, state.StatusID, actor, now); err != nil {
			if errors.Is(err, errStaleState) {
				return &WorkflowError{
					Kind:          ErrPersistence,
					Message:       "the screen status changed while saving, please reload and retry",
					CurrentStatus: state.StatusID,
					Cause:         err,
				}
			}
			return err
		}

		change, err = mutate(tx)
		if err != nil {
			return err
		}
		status := state.StatusID
		auditID, err = s.audit.Append(ctx, tx, AuditEntryInput{
			Target:       RecordTarget(change.Table, change.RecordID),
			Action:       change.Action,
			FromStatusID: &status,
			ToStatusID:   status,
			Actor:        actor,
			At:           now,
		})
		return err
	})
	if err != nil {
		return nil, 0, asWorkflowError("guarded record mutation", err)
	}
	return &change, auditID, nil
}

// CheckConsistency verifies that the newest audit entry of a screen agrees with its
// stored status.
func (s *WorkflowService) CheckConsistency(ctx context.Context, screen string) error {
	status, err := s.CurrentStatus(ctx, screen)
	if err != nil {
		return err
	}
	latest, err := s.audit.Latest(ctx, nil, status.ScreenCode)
	if err != nil {
		return err
	}
	if latest == nil || latest.ToStatusID == status.StatusID {
		return nil
	}
	return fmt.Errorf("screen %s is %s but its latest audit entry #%d moved it to %s",
		status.ScreenCode, s.statuses.Name(status.StatusID), latest.AuditID, s.statuses.Name(latest.ToStatusID))
}

var errStaleState = errors.New("screen workflow state changed since it was read")

// loadState makes sure the state row exists (as Draft) and reads it. created is true
// when this transaction inserted the row.
func (s *WorkflowService) loadState(tx *gorm.DB, code string, now time.Time) (models.ScreenWorkflowState, bool, error) {
	seed := models.ScreenWorkflowState{
		ScreenCode: code,
		StatusID:   StatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed)
	if res.Error != nil {
		return models.ScreenWorkflowState{}, false, persistenceFailure("initialise screen state", res.Error)
	}

	var state models.ScreenWorkflowState
	if err := tx.Where("screen_code = ?", code).First(&state).Error; err != nil {
		return models.ScreenWorkflowState{}, false, persistenceFailure("read screen state", err)
	}
	return state, res.RowsAffected == 1, nil
}

// compareAndSwap writes the new status only if the row still holds the status and
// version that were read. It returns errStaleState when another request got there first.
func (s *WorkflowService) compareAndSwap(tx *gorm.DB, state models.ScreenWorkflowState, to int, actor Actor, now time.Time) error {
	res := tx.Model(&models.ScreenWorkflowState{}).
		Where("screen_code = ? AND status_id = ? AND version = ?", state.ScreenCode, state.StatusID, state.Version).
		Updates(map[string]interface{}{
			"status_id":  to,
			"version":    gorm.Expr("version + ?", 1),
			"updated_by": actor.UserID,
			"updated_at": now,
		})
	if res.Error != nil {
		return persistenceFailure("update screen status", res.Error)
	}
	if res.RowsAffected == 0 {
		return errStaleState
	}
	return nil
}

// resolveConflict re-reads the latest status after a lost compare-and-swap. An action
// that is no longer legal fails as InvalidTransition; otherwise the caller may retry.
func (s *WorkflowService) resolveConflict(tx *gorm.DB, code string, action Action, remarks string) error {
	query := tx.Where("screen_code = ?", code)
	if tx.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var fresh models.ScreenWorkflowState
	if err := query.First(&fresh).Error; err != nil {
		return persistenceFailure("re-read screen state", err)
	}
	if _, err := s.machine.Next(fresh.StatusID, action, remarks); err != nil {
		return err
	}
	return &WorkflowError{
		Kind:          ErrPersistence,
		Message:       "the screen was changed by another request, please retry",
		CurrentStatus: fresh.StatusID,
		Action:        action,
		Cause:         errStaleState,
	}
}
