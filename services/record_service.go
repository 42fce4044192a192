package services

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"statistics-workflow-api/models"
	"statistics-workflow-api/utils"

	"github.com/gin-gonic/gin/binding"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// TableStore is the row access for one dataset table.
type TableStore interface {
	Table() string
	List(ctx context.Context, db *gorm.DB, page utils.Page) (any, int64, error)
	Get(ctx context.Context, db *gorm.DB, id int) (models.Dataset, error)
	Create(tx *gorm.DB, body []byte, userID int) (models.Dataset, error)
	Update(tx *gorm.DB, id int, body []byte, userID int) (models.Dataset, error)
	Delete(tx *gorm.DB, id int) error
}

// DatasetStore implements TableStore for any dataset model T.
type DatasetStore[T any, P interface {
	*T
	models.Dataset
}] struct{}

func (DatasetStore[T, P]) Table() string {
	return P(new(T)).TableName()
}

func (s DatasetStore[T, P]) List(ctx context.Context, db *gorm.DB, page utils.Page) (any, int64, error) {
	var total int64
	if err := db.WithContext(ctx).Model(P(new(T))).Count(&total).Error; err != nil {
		return nil, 0, persistenceFailure("count "+s.Table(), err)
	}
	rows := make([]T, 0)
	err := db.WithContext(ctx).
		Order("record_id ASC").
		Scopes(page.Scope).
		Find(&rows).Error
	if err != nil {
		return nil, 0, persistenceFailure("list "+s.Table(), err)
	}
	return rows, total, nil
}

func (s DatasetStore[T, P]) Get(ctx context.Context, db *gorm.DB, id int) (models.Dataset, error) {
	row := P(new(T))
	if err := db.WithContext(ctx).Where("record_id = ?", id).First(row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("record %d not found in %s", id, s.Table())
		}
		return nil, persistenceFailure("get "+s.Table(), err)
	}
	return row, nil
}

func (s DatasetStore[T, P]) Create(tx *gorm.DB, body []byte, userID int) (models.Dataset, error) {
	row := P(new(T))
	if err := decodeDataset(body, row); err != nil {
		return nil, err
	}
	*row.Meta() = models.RecordMeta{}
	row.Stamp(userID, true)
	if err := tx.Create(row).Error; err != nil {
		return nil, persistenceFailure("create "+s.Table(), err)
	}
	return row, nil
}

// Update overlays body onto the stored row. Bookkeeping columns cannot be set by the caller.
func (s DatasetStore[T, P]) Update(tx *gorm.DB, id int, body []byte, userID int) (models.Dataset, error) {
	existing, err := s.Get(tx.Statement.Context, tx, id)
	if err != nil {
		return nil, err
	}
	row := existing.(P)
	saved := *row.Meta()
	if err := decodeDataset(body, row); err != nil {
		return nil, err
	}
	*row.Meta() = saved
	row.Stamp(userID, false)
	if err := tx.Save(row).Error; err != nil {
		return nil, persistenceFailure("update "+s.Table(), err)
	}
	return row, nil
}

func (s DatasetStore[T, P]) Delete(tx *gorm.DB, id int) error {
	res := tx.Where("record_id = ?", id).Delete(P(new(T)))
	if res.Error != nil {
		return persistenceFailure("delete "+s.Table(), res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("record %d not found in %s", id, s.Table())
	}
	return nil
}

func decodeDataset(body []byte, row models.Dataset) error {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(row); err != nil {
		return invalidInput("invalid record body: %v", err)
	}
	if err := binding.Validator.ValidateStruct(row); err != nil {
		return invalidInput("invalid record: %v", err)
	}
	return nil
}

// DefaultTableStores returns a store for every dataset model in models.MigrationModels.
func DefaultTableStores() []TableStore {
	return []TableStore{
		DatasetStore[models.CensusPopulation, *models.CensusPopulation]{},
		DatasetStore[models.SchoolEnrolment, *models.SchoolEnrolment]{},
		DatasetStore[models.PrisonPopulation, *models.PrisonPopulation]{},
		DatasetStore[models.PoliceStrength, *models.PoliceStrength]{},
	}
}

// RecordPage is one page of dataset rows.
type RecordPage struct {
	ScreenCode string `json:"screen_code"`
	Table      string `json:"table"`
	Records    any    `json:"records"`
	Total      int64  `json:"total"`
	utils.Page
}

// RecordMutation is the outcome of a guarded create, update or delete.
type RecordMutation struct {
	Record  models.Dataset `json:"record,omitempty"`
	AuditID int64          `json:"audit_id"`
	Target  string         `json:"target"`
}

// RecordService serves dataset rows of screens bound to a table. Every mutation
// goes through WorkflowService.GuardedMutation.
type RecordService struct {
	workflow *WorkflowService
	screens  ScreenResolver
	stores   map[string]TableStore
}

func NewRecordService(workflow *WorkflowService, screens ScreenResolver, stores ...TableStore) *RecordService {
	if len(stores) == 0 {
		stores = DefaultTableStores()
	}
	r := &RecordService{
		workflow: workflow,
		screens:  screens,
		stores:   make(map[string]TableStore, len(stores)),
	}
	for _, store := range stores {
		r.stores[store.Table()] = store
	}
	return r
}

func (r *RecordService) storeFor(screen string) (string, TableStore, error) {
	code, err := r.workflow.ResolveScreen(screen)
	if err != nil {
		return "", nil, err
	}
	def, ok := r.screens.Lookup(code)
	if !ok || strings.TrimSpace(def.Table) == "" {
		return "", nil, notFound("screen %s has no dataset table", code)
	}
	store, ok := r.stores[def.Table]
	if !ok {
		return "", nil, notFound("dataset table %s is not served", def.Table)
	}
	return code, store, nil
}

func (r *RecordService) List(ctx context.Context, screen string, offset, limit *int) (*RecordPage, error) {
	code, store, err := r.storeFor(screen)
	if err != nil {
		return nil, err
	}
	page := utils.NewPage(offset, limit)
	rows, total, err := store.List(ctx, r.workflow.db, page)
	if err != nil {
		return nil, err
	}
	return &RecordPage{
		ScreenCode: code,
		Table:      store.Table(),
		Records:    rows,
		Total:      total,
		Page:       page,
	}, nil
}

func (r *RecordService) Get(ctx context.Context, screen string, id int) (models.Dataset, error) {
	_, store, err := r.storeFor(screen)
	if err != nil {
		return nil, err
	}
	return store.Get(ctx, r.workflow.db, id)
}

func (r *RecordService) Create(ctx context.Context, screen string, actor Actor, body []byte) (*RecordMutation, error) {
	_, store, err := r.storeFor(screen)
	if err != nil {
		return nil, err
	}
	var row models.Dataset
	return r.mutate(ctx, screen, actor, func(tx *gorm.DB) (RecordChange, error) {
		row, err = store.Create(tx, body, actor.UserID)
		if err != nil {
			return RecordChange{}, err
		}
		return RecordChange{Table: store.Table(), RecordID: row.GetRecordID(), Action: "RecordCreate"}, nil
	}, &row)
}

func (r *RecordService) Update(ctx context.Context, screen string, id int, actor Actor, body []byte) (*RecordMutation, error) {
	_, store, err := r.storeFor(screen)
	if err != nil {
		return nil, err
	}
	var row models.Dataset
	return r.mutate(ctx, screen, actor, func(tx *gorm.DB) (RecordChange, error) {
		row, err = store.Update(tx, id, body, actor.UserID)
		if err != nil {
			return RecordChange{}, err
		}
		return RecordChange{Table: store.Table(), RecordID: id, Action: "RecordUpdate"}, nil
	}, &row)
}

func (r *RecordService) Delete(ctx context.Context, screen string, id int, actor Actor) (*RecordMutation, error) {
	_, store, err := r.storeFor(screen)
	if err != nil {
		return nil, err
	}
	return r.mutate(ctx, screen, actor, func(tx *gorm.DB) (RecordChange, error) {
		if err := store.Delete(tx, id); err != nil {
			return RecordChange{}, err
		}
		return RecordChange{Table: store.Table(), RecordID: id, Action: "RecordDelete"}, nil
	}, nil)
}

// HistoryTarget is the audit target of one dataset row of screen.
func (r *RecordService) HistoryTarget(screen string, id int) (string, error) {
	_, store, err := r.storeFor(screen)
	if err != nil {
		return "", err
	}
	if id <= 0 {
		return "", invalidInput("record id must be positive")
	}
	return RecordTarget(store.Table(), id), nil
}

// History returns the row-level audit trail of one dataset row, oldest first.
// Entries outlive the row, so a deleted row still has one.
func (r *RecordService) History(ctx context.Context, screen string, id int) (string, []AuditRecord, error) {
	target, err := r.HistoryTarget(screen, id)
	if err != nil {
		return "", nil, err
	}
	entries, err := r.workflow.Audit().Collect(ctx, target)
	if err != nil {
		return "", nil, err
	}
	return target, entries, nil
}

func (r *RecordService) mutate(ctx context.Context, screen string, actor Actor, fn func(tx *gorm.DB) (RecordChange, error), row *models.Dataset) (*RecordMutation, error) {
	change, auditID, err := r.workflow.GuardedMutation(ctx, screen, actor, fn)
	if err != nil {
		return nil, err
	}
	result := &RecordMutation{AuditID: auditID, Target: RecordTarget(change.Table, change.RecordID)}
	if row != nil {
		result.Record = *row
	}
	return result, nil
}
