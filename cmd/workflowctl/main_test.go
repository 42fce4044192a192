package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"statistics-workflow-api/config"
	"statistics-workflow-api/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCtl(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestUserAddAndRecordHistory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "workflow.db")
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_SQLITE_PATH", dbPath)
	t.Setenv("SCREENS_FILE", "../../config/screens.yaml")

	out, err := runCtl(t, "migrate")
	require.NoError(t, err, out)

	out, err = runCtl(t, "user-add", "--email", "Mala@stats.example.gov", "--first-name", "Mala", "--last-name", "Maker", "--role", "maker")
	require.NoError(t, err, out)
	assert.Contains(t, out, "(mala@stats.example.gov) is Department Maker")

	out, err = runCtl(t, "user-add", "--email", "mala@stats.example.gov", "--first-name", "Other", "--role", "checker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	assert.NotContains(t, out, "user 0")

	// create a row the way the API does, then read its trail back through the CLI
	ctx := context.Background()
	db, err := config.OpenDB(config.DatabaseSettings{Driver: "sqlite", SQLitePath: dbPath, Quiet: true})
	require.NoError(t, err)
	catalog, err := config.LoadScreenCatalog("../../config/screens.yaml")
	require.NoError(t, err)
	statuses, err := services.LoadStatusRegistry(ctx, db)
	require.NoError(t, err)
	directory := services.NewUserDirectory(db)
	workflow := services.NewWorkflowService(db, statuses, services.NewAuditTrail(db, statuses, directory), services.WithScreens(catalog))
	maker, err := directory.Lookup(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, services.RoleMaker, maker.Role)
	created, err := services.NewRecordService(workflow, catalog).Create(ctx, "CENSUS_POPULATION", *maker,
		[]byte(`{"census_year": 2021, "district_code": "D07", "district_name": "Lakeside"}`))
	require.NoError(t, err)
	require.NoError(t, config.Close(db))

	out, err = runCtl(t, "history", "census_population")
	require.NoError(t, err, out)
	assert.Empty(t, out)

	out, err = runCtl(t, "history", "census_population", "--record", "1")
	require.NoError(t, err, out)
	assert.Contains(t, out, "RecordCreate")
	assert.Contains(t, out, "Draft -> Draft by Mala Maker")
	assert.Equal(t, "census_population:1", created.Target)

	_, err = runCtl(t, "history", "CENSUS_HOUSING", "--record", "1")
	assert.ErrorIs(t, err, services.ErrNotFound)
}
