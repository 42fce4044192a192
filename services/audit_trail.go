package services

import (
	"context"
	"iter"
	"strings"
	"time"

	"statistics-workflow-api/config"
	"statistics-workflow-api/models"
	"statistics-workflow-api/utils"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const defaultAuditPageSize = 100

// AuditRecord is an audit entry resolved with status names and the actor's display name.
type AuditRecord struct {
	AuditID          int64     `json:"audit_id"`
	Target           string    `json:"target"`
	Action           string    `json:"action"`
	FromStatusID     *int      `json:"from_status_id"`
	FromStatusName   *string   `json:"from_status_name,omitempty"`
	ToStatusID       int       `json:"to_status_id"`
	ToStatusName     string    `json:"to_status_name"`
	Remarks          *string   `json:"remarks,omitempty"`
	ActorUserID      int       `json:"actor_user_id"`
	ActorDisplayName string    `json:"actor_display_name"`
	IPAddress        string    `json:"ip_address,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// AuditEntryInput is what a caller supplies to Append.
type AuditEntryInput struct {
	Target       string
	Action       string
	FromStatusID *int
	ToStatusID   int
	Remarks      string
	Actor        Actor
	At           time.Time
}

// AuditTrail owns workflow_audit_entries. Entries are append-only; Purge exists for
// AdminReset only.
type AuditTrail struct {
	db        *gorm.DB
	statuses  *StatusRegistry
	directory *UserDirectory
	pageSize  int
}

func NewAuditTrail(db *gorm.DB, statuses *StatusRegistry, directory *UserDirectory) *AuditTrail {
	if db == nil {
		db = config.DB
	}
	if directory == nil {
		directory = NewUserDirectory(db)
	}
	return &AuditTrail{
		db:        db,
		statuses:  statuses,
		directory: directory,
		pageSize:  defaultAuditPageSize,
	}
}

// Append writes one entry inside tx and returns its id.
func (a *AuditTrail) Append(ctx context.Context, tx *gorm.DB, in AuditEntryInput) (int64, error) {
	if tx == nil {
		tx = a.db
	}
	at := in.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	entry := models.WorkflowAuditEntry{
		Target:           in.Target,
		Action:           in.Action,
		FromStatusID:     in.FromStatusID,
		ToStatusID:       in.ToStatusID,
		ActorUserID:      in.Actor.UserID,
		ActorDisplayName: in.Actor.DisplayName,
		IPAddress:        in.Actor.IPAddress,
		CreatedAt:        at,
	}
	if remarks := strings.TrimSpace(in.Remarks); remarks != "" {
		entry.Remarks = &remarks
	}
	if ua := utils.Truncate(strings.TrimSpace(in.Actor.UserAgent), 255); ua != "" {
		entry.UserAgent = &ua
	}

	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		return 0, persistenceFailure("append audit entry", err)
	}
	return entry.AuditID, nil
}

// Purge deletes every entry for target and returns how many rows went.
func (a *AuditTrail) Purge(ctx context.Context, tx *gorm.DB, target string) (int64, error) {
	if tx == nil {
		tx = a.db
	}
	res := tx.WithContext(ctx).Where("target = ?", target).Delete(&models.WorkflowAuditEntry{})
	if res.Error != nil {
		return 0, persistenceFailure("purge audit entries", res.Error)
	}
	return res.RowsAffected, nil
}

// History yields the entries for target oldest first. Pages are fetched on demand,
// and ranging over the sequence again starts a fresh read.
func (a *AuditTrail) History(ctx context.Context, target string) iter.Seq2[AuditRecord, error] {
	return func(yield func(AuditRecord, error) bool) {
		offset := 0
		for {
			var page []models.WorkflowAuditEntry
			err := a.db.WithContext(ctx).
				Where("target = ?", target).
				Order("created_at ASC").
				Order("audit_id ASC").
				Limit(a.pageSize).
				Offset(offset).
				Find(&page).Error
			if err != nil {
				yield(AuditRecord{}, persistenceFailure("read audit history", err))
				return
			}

			names, err := a.directory.DisplayNames(ctx, actorIDs(page))
			if err != nil {
				yield(AuditRecord{}, err)
				return
			}
			for _, entry := range page {
				if !yield(a.resolve(entry, names), nil) {
					return
				}
			}
			if len(page) < a.pageSize {
				return
			}
			offset += len(page)
		}
	}
}

// Collect drains History into a slice.
func (a *AuditTrail) Collect(ctx context.Context, target string) ([]AuditRecord, error) {
	records := make([]AuditRecord, 0)
	for record, err := range a.History(ctx, target) {
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Latest returns the newest entry for target, or nil when there is none.
func (a *AuditTrail) Latest(ctx context.Context, tx *gorm.DB, target string) (*models.WorkflowAuditEntry, error) {
	if tx == nil {
		tx = a.db
	}
	var entry models.WorkflowAuditEntry
	err := tx.WithContext(ctx).
		Where("target = ?", target).
		Order("created_at DESC").
		Order("audit_id DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, persistenceFailure("read latest audit entry", err)
	}
	return &entry, nil
}

func (a *AuditTrail) resolve(entry models.WorkflowAuditEntry, names map[int]string) AuditRecord {
	record := AuditRecord{
		AuditID:          entry.AuditID,
		Target:           entry.Target,
		Action:           entry.Action,
		FromStatusID:     entry.FromStatusID,
		ToStatusID:       entry.ToStatusID,
		ToStatusName:     a.statuses.Name(entry.ToStatusID),
		Remarks:          entry.Remarks,
		ActorUserID:      entry.ActorUserID,
		ActorDisplayName: entry.ActorDisplayName,
		IPAddress:        entry.IPAddress,
		Timestamp:        entry.CreatedAt,
	}
	if entry.FromStatusID != nil {
		name := a.statuses.Name(*entry.FromStatusID)
		record.FromStatusName = &name
	}
	if name, ok := names[entry.ActorUserID]; ok && name != "" {
		record.ActorDisplayName = name
	}
	return record
}

func actorIDs(entries []models.WorkflowAuditEntry) []int {
	seen := make(map[int]struct{}, len(entries))
	ids := make([]int, 0, len(entries))
	for _, entry := range entries {
		if _, ok := seen[entry.ActorUserID]; ok {
			continue
		}
		seen[entry.ActorUserID] = struct{}{}
		ids = append(ids, entry.ActorUserID)
	}
	return ids
}
