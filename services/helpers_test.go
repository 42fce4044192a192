package services

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"statistics-workflow-api/config"
	"statistics-workflow-api/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testDBSeq atomic.Int64

// newTestDB opens a private in-memory SQLite database with the schema, statuses and roles.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, testDBSeq.Add(1))

	db, err := config.OpenDB(config.DatabaseSettings{Driver: "sqlite", SQLitePath: dsn, Quiet: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = config.Close(db) })

	ctx := context.Background()
	require.NoError(t, config.Migrate(db))
	require.NoError(t, SeedStatuses(ctx, db))
	require.NoError(t, NewUserDirectory(db).SeedRoles(ctx))
	return db
}

type testUsers struct {
	maker, checker, head, admin Actor
}

// seedUsers creates one user per role and returns them as actors.
func seedUsers(t *testing.T, db *gorm.DB) testUsers {
	t.Helper()
	mk := func(id int, first, last string, role Role) Actor {
		user := models.User{
			UserID:    id,
			UserFname: first,
			UserLname: last,
			Email:     strings.ToLower(first) + "@stats.example.gov",
			RoleID:    int(role),
		}
		require.NoError(t, db.Omit("Role").Create(&user).Error)
		return Actor{
			UserID:      id,
			DisplayName: user.DisplayName(),
			Email:       user.Email,
			Role:        role,
			IPAddress:   "10.0.0.1",
			UserAgent:   "go-test",
		}
	}
	return testUsers{
		maker:   mk(101, "Mala", "Maker", RoleMaker),
		checker: mk(102, "Chen", "Checker", RoleChecker),
		head:    mk(103, "Hana", "Head", RoleHead),
		admin:   mk(104, "Adi", "Admin", RoleAdmin),
	}
}

type recordingNotifier struct {
	events []StatusChangedEvent
}

func (r *recordingNotifier) Publish(event StatusChangedEvent) {
	r.events = append(r.events, event)
}

// newTestWorkflow wires a WorkflowService over db with a ticking clock.
func newTestWorkflow(t *testing.T, db *gorm.DB, opts ...WorkflowServiceOption) *WorkflowService {
	t.Helper()
	statuses := MustDefaultStatusRegistry()
	audit := NewAuditTrail(db, statuses, NewUserDirectory(db))

	var tick atomic.Int64
	base := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := WithClock(func() time.Time {
		return base.Add(time.Duration(tick.Add(1)) * time.Second)
	})
	return NewWorkflowService(db, statuses, audit, append([]WorkflowServiceOption{clock}, opts...)...)
}
