package services

import (
	"context"
	"strings"

	"statistics-workflow-api/config"
	"statistics-workflow-api/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Actor is the resolved caller of a workflow or record operation.
type Actor struct {
	UserID      int    `json:"user_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Role        Role   `json:"role"`
	IPAddress   string `json:"-"`
	UserAgent   string `json:"-"`
}

// UserDirectory resolves users and their workflow role from the users/roles tables.
type UserDirectory struct{ db *gorm.DB }

func NewUserDirectory(db *gorm.DB) *UserDirectory {
	if db == nil {
		db = config.DB
	}
	return &UserDirectory{db: db}
}

// Lookup loads an active user. Unknown role names resolve to RoleNone.
func (d *UserDirectory) Lookup(ctx context.Context, userID int) (*Actor, error) {
	var user models.User
	err := d.db.WithContext(ctx).Preload("Role").
		Where("user_id = ? AND delete_at IS NULL", userID).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("user %d not found", userID)
		}
		return nil, persistenceFailure("lookup user", err)
	}

	role, ok := RoleByName(user.Role.Role)
	if !ok {
		config.Log.WithField("user_id", userID).WithField("role", user.Role.Role).
			Warn("user has a role outside the workflow role set")
		role = RoleNone
	}
	return &Actor{
		UserID:      user.UserID,
		DisplayName: user.DisplayName(),
		Email:       user.Email,
		Role:        role,
	}, nil
}

// DisplayNames returns the current display name for each known id.
func (d *UserDirectory) DisplayNames(ctx context.Context, ids []int) (map[int]string, error) {
	names := make(map[int]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var users []models.User
	if err := d.db.WithContext(ctx).Where("user_id IN ?", ids).Find(&users).Error; err != nil {
		return nil, persistenceFailure("resolve display names", err)
	}
	for _, user := range users {
		names[user.UserID] = user.DisplayName()
	}
	return names, nil
}

// EmailsForRole lists the addresses of active users holding role.
func (d *UserDirectory) EmailsForRole(ctx context.Context, role Role) ([]string, error) {
	roleIDs, err := d.roleIDs(ctx, d.db, role)
	if err != nil {
		return nil, err
	}
	if len(roleIDs) == 0 {
		return nil, nil
	}

	var users []models.User
	if err := d.db.WithContext(ctx).
		Where("role_id IN ? AND delete_at IS NULL AND email <> ''", roleIDs).
		Find(&users).Error; err != nil {
		return nil, persistenceFailure("load users by role", err)
	}
	emails := make([]string, 0, len(users))
	for _, user := range users {
		emails = append(emails, user.Email)
	}
	return emails, nil
}

// AddUser inserts user holding role. The role id comes from the roles table
// by name, so it does not depend on how the rows were numbered.
func (d *UserDirectory) AddUser(ctx context.Context, user models.User, role Role) (*models.User, error) {
	if role == RoleNone {
		return nil, invalidInput("a workflow role is required")
	}
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids, err := d.roleIDs(ctx, tx, role)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return notFound("role %s is not in the roles table", role)
		}
		user.RoleID = ids[0]

		var existing int64
		if err := tx.Model(&models.User{}).Where("LOWER(email) = ?", strings.ToLower(user.Email)).Count(&existing).Error; err != nil {
			return persistenceFailure("check user email", err)
		}
		if existing > 0 {
			return invalidInput("user %s already exists", user.Email)
		}

		result := tx.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&user)
		if result.Error != nil {
			return persistenceFailure("create user", result.Error)
		}
		if result.RowsAffected == 0 {
			return invalidInput("user %s already exists", user.Email)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// roleIDs returns the ids of active roles rows whose name resolves to role.
func (d *UserDirectory) roleIDs(ctx context.Context, db *gorm.DB, role Role) ([]int, error) {
	var roles []models.Role
	if err := db.WithContext(ctx).Where("delete_at IS NULL").Order("role_id").Find(&roles).Error; err != nil {
		return nil, persistenceFailure("load roles", err)
	}
	ids := make([]int, 0, 1)
	for _, r := range roles {
		if resolved, ok := RoleByName(r.Role); ok && resolved == role {
			ids = append(ids, r.RoleID)
		}
	}
	return ids, nil
}

// SeedRoles inserts one roles row per workflow role, keeping existing rows.
func (d *UserDirectory) SeedRoles(ctx context.Context) error {
	rows := make([]models.Role, 0, len(AllRoles()))
	for i, role := range AllRoles() {
		rows = append(rows, models.Role{RoleID: i + 1, Role: role.String()})
	}
	if err := d.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		return errors.Wrap(err, "seed roles")
	}
	return nil
}
