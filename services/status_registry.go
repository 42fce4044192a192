package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"statistics-workflow-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Canonical status ids mirror workflow_statuses.status_id.
const (
	StatusDraft             = 1
	StatusPendingChecker    = 2
	StatusRejectedByChecker = 3 // registered but never entered: CheckerReject loops back to Draft
	StatusPendingHead       = 4
	StatusRejectedByHead    = 5 // registered but never entered: HeadReject loops back to PendingChecker
	StatusApproved          = 6
)

var statusCodeSynonyms = map[int][]string{
	StatusDraft:             {"draft", "1"},
	StatusPendingChecker:    {"pending_checker", "pendingchecker", "checker_pending", "2"},
	StatusRejectedByChecker: {"rejected_by_checker", "rejectedbychecker", "checker_rejected", "3"},
	StatusPendingHead:       {"pending_head", "pendinghead", "head_pending", "4"},
	StatusRejectedByHead:    {"rejected_by_head", "rejectedbyhead", "head_rejected", "5"},
	StatusApproved:          {"approved", "6"},
}

func strPtr(value string) *string {
	return &value
}

// DefaultStatuses returns the seed rows for workflow_statuses.
func DefaultStatuses() []models.WorkflowStatus {
	return []models.WorkflowStatus{
		{StatusID: StatusDraft, StatusName: "Draft", StatusCode: "DRAFT", DisplayOrder: 1, StageKey: strPtr("maker")},
		{StatusID: StatusPendingChecker, StatusName: "Pending Checker", StatusCode: "PENDING_CHECKER", DisplayOrder: 2, StageKey: strPtr("checker")},
		{StatusID: StatusRejectedByChecker, StatusName: "Rejected By Checker", StatusCode: "REJECTED_BY_CHECKER", DisplayOrder: 3},
		{StatusID: StatusPendingHead, StatusName: "Pending Head", StatusCode: "PENDING_HEAD", DisplayOrder: 4, StageKey: strPtr("head")},
		{StatusID: StatusRejectedByHead, StatusName: "Rejected By Head", StatusCode: "REJECTED_BY_HEAD", DisplayOrder: 5},
		{StatusID: StatusApproved, StatusName: "Approved", StatusCode: "APPROVED", DisplayOrder: 6, StageKey: strPtr("approved")},
	}
}

// StatusRegistry is the immutable status lookup table, built once at process start.
type StatusRegistry struct {
	ordered []models.WorkflowStatus
	byID    map[int]models.WorkflowStatus
	byCode  map[string]models.WorkflowStatus
}

// NewStatusRegistry indexes rows. Every canonical status id must be present.
func NewStatusRegistry(rows []models.WorkflowStatus) (*StatusRegistry, error) {
	reg := &StatusRegistry{
		ordered: make([]models.WorkflowStatus, 0, len(rows)),
		byID:    make(map[int]models.WorkflowStatus, len(rows)),
		byCode:  make(map[string]models.WorkflowStatus),
	}
	for _, row := range rows {
		if _, dup := reg.byID[row.StatusID]; dup {
			return nil, fmt.Errorf("duplicate workflow status id %d", row.StatusID)
		}
		reg.byID[row.StatusID] = row
		reg.ordered = append(reg.ordered, row)
		reg.index(row.StatusCode, row)
		reg.index(strconv.Itoa(row.StatusID), row)
		for _, alias := range statusCodeSynonyms[row.StatusID] {
			reg.index(alias, row)
		}
	}

	missing := make([]string, 0)
	for id := range statusCodeSynonyms {
		if _, ok := reg.byID[id]; !ok {
			missing = append(missing, strconv.Itoa(id))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing workflow statuses: %s", strings.Join(missing, ", "))
	}

	sort.SliceStable(reg.ordered, func(i, j int) bool {
		return reg.ordered[i].DisplayOrder < reg.ordered[j].DisplayOrder
	})
	return reg, nil
}

// MustDefaultStatusRegistry builds a registry from DefaultStatuses.
func MustDefaultStatusRegistry() *StatusRegistry {
	reg, err := NewStatusRegistry(DefaultStatuses())
	if err != nil {
		panic(err)
	}
	return reg
}

// LoadStatusRegistry reads workflow_statuses once. An empty table falls back to the
// built-in seed rows so a fresh database still serves the workflow.
func LoadStatusRegistry(ctx context.Context, db *gorm.DB) (*StatusRegistry, error) {
	var rows []models.WorkflowStatus
	if err := db.WithContext(ctx).Order("display_order ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load workflow statuses: %w", err)
	}
	if len(rows) == 0 {
		return NewStatusRegistry(DefaultStatuses())
	}
	return NewStatusRegistry(rows)
}

// SeedStatuses inserts the default statuses, leaving existing rows untouched.
func SeedStatuses(ctx context.Context, db *gorm.DB) error {
	rows := DefaultStatuses()
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to seed workflow statuses: %w", err)
	}
	return nil
}

func (r *StatusRegistry) index(code string, row models.WorkflowStatus) {
	if key := normalizeStatusCode(code); key != "" {
		r.byCode[key] = row
	}
}

func normalizeStatusCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

func (r *StatusRegistry) StatusByID(id int) (models.WorkflowStatus, bool) {
	status, ok := r.byID[id]
	return status, ok
}

// StatusByCode accepts the stored status_code, the numeric id or a known alias.
func (r *StatusRegistry) StatusByCode(code string) (models.WorkflowStatus, bool) {
	status, ok := r.byCode[normalizeStatusCode(code)]
	return status, ok
}

// AllOrdered returns a copy of the statuses sorted by display order.
func (r *StatusRegistry) AllOrdered() []models.WorkflowStatus {
	out := make([]models.WorkflowStatus, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Name returns the display name for id, or a placeholder for unknown ids.
func (r *StatusRegistry) Name(id int) string {
	if r == nil {
		return fmt.Sprintf("status %d", id)
	}
	if status, ok := r.byID[id]; ok {
		return status.StatusName
	}
	return fmt.Sprintf("status %d", id)
}
