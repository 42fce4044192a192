package services

import (
	"context"
	"testing"

	"statistics-workflow-api/config"
	"statistics-workflow-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecords(t *testing.T, svc *WorkflowService) *RecordService {
	t.Helper()
	catalog, err := config.NewScreenCatalog([]config.ScreenDefinition{
		{Code: censusScreen, Title: "Census Population", Table: "census_population"},
		{Code: "CENSUS_HOUSING", Title: "Census Housing Summary"},
	})
	require.NoError(t, err)
	svc.screens = catalog
	return NewRecordService(svc, catalog)
}

func TestRecordServiceCrudFollowsTheGuard(t *testing.T) {
	db := newTestDB(t)
	users := seedUsers(t, db)
	svc := newTestWorkflow(t, db)
	records := newTestRecords(t, svc)
	ctx := context.Background()

	created, err := records.Create(ctx, censusScreen, users.maker, []byte(`{
		"census_year": 2021, "district_code": "D07", "district_name": "Lakeside",
		"male_population": 51000, "female_population": 52500, "households": 24000,
		"created_by": 999
	}`))
	require.NoError(t, err)
	row := created.Record.(*models.CensusPopulation)
	assert.NotZero(t, row.RecordID)
	assert.Equal(t, users.maker.UserID, row.CreatedBy)
	assert.Equal(t, RecordTarget("census_population", row.RecordID), created.Target)

	updated, err := records.Update(ctx, censusScreen, row.RecordID, users.maker, []byte(`{"households": 24100}`))
	require.NoError(t, err)
	assert.Equal(t, int64(24100), updated.Record.(*models.CensusPopulation).Households)
	assert.Equal(t, "Lakeside", updated.Record.(*models.CensusPopulation).DistrictName)

	// the checker cannot edit while the screen is in Draft
	_, err = records.Update(ctx, censusScreen, row.RecordID, users.checker, []byte(`{"households": 1}`))
	require.ErrorIs(t, err, ErrPermissionDenied)

	apply(t, svc, users.maker, ActionSubmitToChecker, "")

	_, err = records.Delete(ctx, censusScreen, row.RecordID, users.maker)
	require.ErrorIs(t, err, ErrPermissionDenied)
	var wfErr *WorkflowError
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, RoleChecker, wfErr.RequiredRole)

	_, err = records.Update(ctx, censusScreen, row.RecordID, users.checker, []byte(`{"households": 24200}`))
	require.NoError(t, err)

	page, err := records.List(ctx, censusScreen, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 20, page.Limit)

	rowTrail, err := svc.Audit().Collect(ctx, created.Target)
	require.NoError(t, err)
	require.Len(t, rowTrail, 3)
	assert.Equal(t, "RecordCreate", rowTrail[0].Action)
	assert.Equal(t, users.checker.UserID, rowTrail[2].ActorUserID)

	// row edits do not disturb the screen's own trail
	assertConsistent(t, svc, censusScreen)
}

func TestRecordServiceRejectsBadInput(t *testing.T) {
	db := newTestDB(t)
	users := seedUsers(t, db)
	svc := newTestWorkflow(t, db)
	records := newTestRecords(t, svc)
	ctx := context.Background()

	_, err := records.Create(ctx, censusScreen, users.maker, []byte(`{"district_code": "D01"}`))
	assert.ErrorIs(t, err, ErrInvalidInput, "census_year is required")

	_, err = records.Create(ctx, censusScreen, users.maker, []byte(`{"census_year": 2021, "district_code": "D01", "colour": "red"}`))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = records.Update(ctx, censusScreen, 4242, users.maker, []byte(`{"households": 1}`))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = records.Delete(ctx, censusScreen, 4242, users.maker)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = records.List(ctx, "CENSUS_HOUSING", nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = records.Get(ctx, "NO_SUCH_SCREEN", 1)
	assert.ErrorIs(t, err, ErrNotFound)

	page, err := records.List(ctx, censusScreen, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestRecordServiceHistoryOfOneRow(t *testing.T) {
	db := newTestDB(t)
	users := seedUsers(t, db)
	svc := newTestWorkflow(t, db)
	records := newTestRecords(t, svc)
	ctx := context.Background()

	body := []byte(`{"census_year": 2021, "district_code": "D01", "district_name": "Hillside", "households": 10}`)
	first, err := records.Create(ctx, censusScreen, users.maker, body)
	require.NoError(t, err)
	firstID := first.Record.GetRecordID()
	_, err = records.Create(ctx, censusScreen, users.maker, []byte(`{"census_year": 2021, "district_code": "D02", "district_name": "Riverside"}`))
	require.NoError(t, err)
	_, err = records.Delete(ctx, censusScreen, firstID, users.maker)
	require.NoError(t, err)

	// lower-case screen codes resolve like every other screen operation
	target, entries, err := records.History(ctx, "census_population", firstID)
	require.NoError(t, err)
	assert.Equal(t, first.Target, target)
	require.Len(t, entries, 2)
	assert.Equal(t, "RecordCreate", entries[0].Action)
	assert.Equal(t, "RecordDelete", entries[1].Action)
	assert.Equal(t, users.maker.DisplayName, entries[1].ActorDisplayName)

	_, entries, err = records.History(ctx, censusScreen, 9999)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, _, err = records.History(ctx, censusScreen, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, _, err = records.History(ctx, "CENSUS_HOUSING", firstID)
	assert.ErrorIs(t, err, ErrNotFound)
}
