package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"statistics-workflow-api/config"
	"statistics-workflow-api/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const censusScreen = "CENSUS_POPULATION"

func apply(t *testing.T, svc *WorkflowService, actor Actor, action Action, remarks string) *ActionResult {
	t.Helper()
	result, err := svc.Apply(context.Background(), ActionRequest{
		ScreenCode: censusScreen,
		Action:     action,
		Remarks:    remarks,
		Actor:      actor,
	})
	require.NoError(t, err, "%s by %s", action, actor.Role)
	require.True(t, result.Success)
	return result
}

func assertConsistent(t *testing.T, svc *WorkflowService, screen string) {
	t.Helper()
	require.NoError(t, svc.CheckConsistency(context.Background(), screen))
}

func TestWorkflowFullReviewCycle(t *testing.T) {
	db := newTestDB(t)
	users := seedUsers(t, db)
	notifier := &recordingNotifier{}
	svc := newTestWorkflow(t, db, WithNotifier(notifier))
	ctx := context.Background()

	status, err := svc.CurrentStatus(ctx, censusScreen)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, status.StatusID)
	assert.Equal(t, int64(0), status.Version)

	steps := []struct {
		actor   Actor
		action  Action
		remarks string
		want    int
	}{
		{users.maker, ActionSubmitToChecker, "", StatusPendingChecker},
		{users.checker, ActionCheckerReject, "District 7 households missing", StatusDraft},
		{users.maker, ActionSubmitToChecker, "Fixed district 7", StatusPendingChecker},
		{users.checker, ActionCheckerApprove, "", StatusPendingHead},
		{users.head, ActionHeadReject, "Compare with 2011 census", StatusPendingChecker},
		{users.checker, ActionCheckerApprove, "Compared", StatusPendingHead},
		{users.head, ActionHeadApprove, "", StatusApproved},
	}

	var lastAuditID int64
	for _, step := range steps {
		result := apply(t, svc, step.actor, step.action, step.remarks)
		assert.Equal(t, step.want, result.NewStatusID, string(step.action))
		assert.Equal(t, svc.Statuses().Name(step.want), result.NewStatusName)
		require.NotNil(t, result.AuditID)
		assert.Greater(t, *result.AuditID, lastAuditID)
		lastAuditID = *result.AuditID

		latest, err := svc.Audit().Latest(ctx, nil, censusScreen)
		require.NoError(t, err)
		assert.Equal(t, *result.AuditID, latest.AuditID)
		assert.Equal(t, result.NewStatusID, latest.ToStatusID)
		assertConsistent(t, svc, censusScreen)
	}

	history, err := svc.Audit().Collect(ctx, censusScreen)
	require.NoError(t, err)
	require.Len(t, history, len(steps))
	assert.Nil(t, history[0].FromStatusID, "first transition has no previous status")
	for i, step := range steps {
		assert.Equal(t, string(step.action), history[i].Action)
		assert.Equal(t, step.want, history[i].ToStatusID)
		assert.Equal(t, step.actor.UserID, history[i].ActorUserID)
	}
	require.NotNil(t, history[1].Remarks)
	assert.Equal(t, "District 7 households missing", *history[1].Remarks)

	// approved is terminal for everyone but the admin
	_, err = svc.Apply(ctx, ActionRequest{ScreenCode: censusScreen, Action: ActionHeadApprove, Actor: users.head})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	decision, err := svc.Access(ctx, censusScreen, RoleMaker)
	require.NoError(t, err)
	assert.False(t, decision.CanEdit)

	require.Len(t, notifier.events, len(steps))
	last := notifier.events[len(notifier.events)-1]
	assert.Equal(t, StatusApproved, last.ToStatusID)
	assert.Equal(t, RoleNone, last.AssignedRole)
	assert.Equal(t, censusScreen, last.ScreenCode)
}

func TestWorkflowAdminResetPurgesHistory(t *testing.T) {
	db := newTestDB(t)
	users := seedUsers(t, db)
	svc := newTestWorkflow(t, db)
	ctx := context.Background()

	apply(t, svc, users.maker, ActionSubmitToChecker, "")
	apply(t, svc, users.checker, ActionCheckerApprove, "")

	_, err := svc.Apply(ctx, ActionRequest{ScreenCode: censusScreen, Action: ActionAdminReset, Actor: users.head})
	require.ErrorIs(t, err, ErrPermissionDenied)

	result := apply(t, svc, users.admin, ActionAdminReset, "")
	assert.Equal(t, StatusDraft, result.NewStatusID)
	assert.Nil(t, result.AuditID)

	history, err := svc.Audit().Collect(ctx, censusScreen)
	require.NoError(t, err)
	assert.Empty(t, history)

	status, err := svc.CurrentStatus(ctx, censusScreen)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, status.StatusID)
	assertConsistent(t, svc, censusScreen)

	// the workflow starts over from Draft
	result = apply(t, svc, users.maker, ActionSubmitToChecker, "")
	assert.Equal(t, StatusPendingChecker, result.NewStatusID)
}

func TestWorkflowRejectionWithoutRemarksChangesNothing(t *testing.T) {
	db := newTestDB(t)
	users := seedUsers(t, db)
	svc := newTestWorkflow(t, db)
	ctx := context.Background()

	apply(t, svc, users.maker, ActionSubmitToChecker, "")
	before, err := svc.CurrentStatus(ctx, censusScreen)
	require.NoError(t, err)

	_, err = svc.Apply(ctx, ActionRequest{ScreenCode: censusScreen, Action: ActionCheckerReject, Remarks: "  ", Actor: users.checker})
	require.ErrorIs(t, err, ErrMissingRemarks)

	after, err := svc.CurrentStatus(ctx, censusScreen)
	require.NoError(t, err)
	assert.Equal(t, before.StatusID, after.StatusID)
	assert.Equal(t, before.Version, after.Version)

	history, err := svc.Audit().Collect(ctx, censusScreen)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestWorkflowWrongRoleIsDenied(t *testing.T) {
	db := newTestDB(t)
	users := seedUsers(t, db)
	svc := newTestWorkflow(t, db)

	_, err := svc.Apply(context.Background(), ActionRequest{ScreenCode: censusScreen, Action: ActionSubmitToChecker, Actor: users.checker})
	require.ErrorIs(t, err, ErrPermissionDenied)
	var wfErr *WorkflowError
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, RoleMaker, wfErr.RequiredRole)

	// admin may act for any role
	result := apply(t, svc, users.admin, ActionSubmitToChecker, "")
	assert.Equal(t, StatusPendingChecker, result.NewStatusID)
}

func TestWorkflowConcurrentSubmitsCommitOnce(t *testing.T) {
	db := newTestDB(t)
	users := seedUsers(t, db)
	svc := newTestWorkflow(t, db)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Apply(context.Background(), ActionRequest{
				ScreenCode: censusScreen,
				Action:     ActionSubmitToChecker,
				Actor:      users.maker,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}
	assert.Equal(t, 1, succeeded)

	history, err := svc.Audit().Collect(context.Background(), censusScreen)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assertConsistent(t, svc, censusScreen)
}

func TestWorkflowConflictClassification(t *testing.T) {
	db := newTestDB(t)
	users := seedUsers(t, db)
	svc := newTestWorkflow(t, db)
	apply(t, svc, users.maker, ActionSubmitToChecker, "")

	var state models.ScreenWorkflowState
	require.NoError(t, db.Where("screen_code = ?", censusScreen).First(&state).Error)

	stale := state
	stale.Version--
	err := svc.compareAndSwap(db, stale, StatusPendingHead, users.checker, svc.now())
	require.ErrorIs(t, err, errStaleState)

	// the fresh status no longer accepts the action
	err = svc.resolveConflict(db, censusScreen, ActionSubmitToChecker, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// the action is still legal: report a retryable conflict
	err = svc.resolveConflict(db, censusScreen, ActionCheckerApprove, "")
	assert.ErrorIs(t, err, ErrPersistence)
	assert.NotErrorIs(t, err, ErrInvalidTransition)
}

func TestWorkflowLegacyRejectedStatus(t *testing.T) {
	db := newTestDB(t)
	users := seedUsers(t, db)
	svc := newTestWorkflow(t, db)

	require.NoError(t, db.Create(&models.ScreenWorkflowState{ScreenCode: censusScreen, StatusID: StatusRejectedByHead}).Error)

	decision, err := svc.Access(context.Background(), censusScreen, RoleChecker)
	require.NoError(t, err)
	assert.True(t, decision.CanEdit)

	result := apply(t, svc, users.checker, ActionCheckerApprove, "")
	assert.Equal(t, StatusPendingHead, result.NewStatusID)
}

func TestWorkflowUnknownScreen(t *testing.T) {
	db := newTestDB(t)
	users := seedUsers(t, db)
	catalog, err := config.NewScreenCatalog([]config.ScreenDefinition{{Code: censusScreen, Title: "Census"}})
	require.NoError(t, err)
	svc := newTestWorkflow(t, db, WithScreens(catalog))

	_, err = svc.Apply(context.Background(), ActionRequest{ScreenCode: "NOT_A_SCREEN", Action: ActionSubmitToChecker, Actor: users.maker})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.CurrentStatus(context.Background(), "  census_population ")
	assert.NoError(t, err)
}

func TestWorkflowStoreUnavailable(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	mock.ExpectBegin().WillReturnError(errors.New("dial tcp 10.0.0.5:3306: connection refused"))
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("dial tcp 10.0.0.5:3306: connection refused"))

	statuses := MustDefaultStatusRegistry()
	svc := NewWorkflowService(db, statuses, NewAuditTrail(db, statuses, NewUserDirectory(db)))
	actor := Actor{UserID: 1, Role: RoleMaker}

	_, err = svc.Apply(context.Background(), ActionRequest{ScreenCode: censusScreen, Action: ActionSubmitToChecker, Actor: actor})
	require.ErrorIs(t, err, ErrPersistence)
	var wfErr *WorkflowError
	require.ErrorAs(t, err, &wfErr)
	assert.NotContains(t, wfErr.Message, "10.0.0.5")

	_, err = svc.CurrentStatus(context.Background(), censusScreen)
	assert.ErrorIs(t, err, ErrPersistence)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowCanceledContextRollsBack(t *testing.T) {
	db := newTestDB(t)
	users := seedUsers(t, db)
	svc := newTestWorkflow(t, db)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Apply(ctx, ActionRequest{ScreenCode: censusScreen, Action: ActionSubmitToChecker, Actor: users.maker})
	require.Error(t, err)

	status, err := svc.CurrentStatus(context.Background(), censusScreen)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, status.StatusID)
}

// failAuditWrites makes every insert into the audit table fail until the test ends.
func failAuditWrites(t *testing.T, db *gorm.DB) {
	t.Helper()
	const name = "test:fail_audit_writes"
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register(name, func(tx *gorm.DB) {
		if tx.Statement.Table == (models.WorkflowAuditEntry{}).TableName() {
			_ = tx.AddError(errors.New("audit store down"))
		}
	}))
	t.Cleanup(func() { _ = db.Callback().Create().Remove(name) })
}

func TestWorkflowAuditFailureRollsBackStatus(t *testing.T) {
	db := newTestDB(t)
	users := seedUsers(t, db)
	notifier := &recordingNotifier{}
	svc := newTestWorkflow(t, db, WithNotifier(notifier))
	records := newTestRecords(t, svc)
	ctx := context.Background()

	apply(t, svc, users.maker, ActionSubmitToChecker, "")
	before, err := svc.CurrentStatus(ctx, censusScreen)
	require.NoError(t, err)
	failAuditWrites(t, db)

	_, err = svc.Apply(ctx, ActionRequest{ScreenCode: censusScreen, Action: ActionCheckerApprove, Actor: users.checker})
	require.ErrorIs(t, err, ErrPersistence)
	assert.Contains(t, err.Error(), "audit store down")

	after, err := svc.CurrentStatus(ctx, censusScreen)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingChecker, after.StatusID)
	assert.Equal(t, before.Version, after.Version)
	assert.Len(t, notifier.events, 1)

	// a guarded row edit is all-or-nothing as well
	_, err = records.Create(ctx, censusScreen, users.checker, []byte(`{"census_year": 2021, "district_code": "D09", "district_name": "Northfield"}`))
	require.ErrorIs(t, err, ErrPersistence)
	var rows int64
	require.NoError(t, db.Model(&models.CensusPopulation{}).Count(&rows).Error)
	assert.Zero(t, rows)

	after, err = svc.CurrentStatus(ctx, censusScreen)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)

	history, err := svc.Audit().Collect(ctx, censusScreen)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assertConsistent(t, svc, censusScreen)
}

func TestWorkflowAuditFailureOnFirstActionLeavesDraft(t *testing.T) {
	db := newTestDB(t)
	users := seedUsers(t, db)
	svc := newTestWorkflow(t, db)
	ctx := context.Background()
	failAuditWrites(t, db)

	_, err := svc.Apply(ctx, ActionRequest{ScreenCode: censusScreen, Action: ActionSubmitToChecker, Actor: users.maker})
	require.ErrorIs(t, err, ErrPersistence)

	var states int64
	require.NoError(t, db.Model(&models.ScreenWorkflowState{}).Count(&states).Error)
	assert.Zero(t, states)

	status, err := svc.CurrentStatus(ctx, censusScreen)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, status.StatusID)
	assert.Zero(t, status.Version)
}

// Role is checked before remarks, so a caller without the role learns nothing
// about what else the action would need.
func TestWorkflowCheckOrder(t *testing.T) {
	db := newTestDB(t)
	users := seedUsers(t, db)
	svc := newTestWorkflow(t, db)
	ctx := context.Background()
	apply(t, svc, users.maker, ActionSubmitToChecker, "")

	tests := []struct {
		name    string
		actor   Actor
		action  Action
		remarks string
		want    error
	}{
		{"unknown action before role", users.head, Action("Publish"), "", ErrInvalidInput},
		{"role before remarks", users.maker, ActionCheckerReject, "", ErrPermissionDenied},
		{"remarks before transition", users.head, ActionHeadReject, " ", ErrMissingRemarks},
		{"transition last", users.head, ActionHeadReject, "Wrong stage", ErrInvalidTransition},
		{"remarks for the right role", users.checker, ActionCheckerReject, "", ErrMissingRemarks},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Apply(ctx, ActionRequest{ScreenCode: censusScreen, Action: tt.action, Remarks: tt.remarks, Actor: tt.actor})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	status, err := svc.CurrentStatus(ctx, censusScreen)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingChecker, status.StatusID)
	assert.EqualValues(t, 1, status.Version)
}
