package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/authcore/internal/models"
)

// Sync persists the role table to the roles table, updating existing rows in place.
func Sync(ctx context.Context, db *gorm.DB, table *RoleTable) error {
	if db == nil {
		return errors.New("permission: db is required")
	}
	if table == nil {
		return errors.New("permission: role table is required")
	}

	tx := db.WithContext(ctx)
	for _, role := range table.All() {
		perms := role.Permissions
		if perms == nil {
			perms = []string{}
		}
		encoded, err := json.Marshal(perms)
		if err != nil {
			return fmt.Errorf("permission: marshal permissions for %s: %w", role.Name, err)
		}

		record := models.Role{
			Name:        role.Name,
			Level:       role.Level,
			Description: role.Description,
			Permissions: datatypes.JSON(encoded),
			IsSystem:    true,
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"level", "description", "permissions", "is_system", "updated_at"}),
		}).Create(&record).Error; err != nil {
			return fmt.Errorf("permission: sync %s: %w", role.Name, err)
		}
	}

	return nil
}

// LoadRoleTable builds a RoleTable from the roles table, validating it against catalog.
func LoadRoleTable(ctx context.Context, db *gorm.DB, catalog []Permission) (*RoleTable, error) {
	var records []models.Role
	if err := db.WithContext(ctx).Order("level DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("permission: load roles: %w", err)
	}

	roles := make([]Role, 0, len(records))
	for _, record := range records {
		var perms []string
		if len(record.Permissions) > 0 {
			if err := json.Unmarshal(record.Permissions, &perms); err != nil {
				return nil, fmt.Errorf("permission: decode permissions for %s: %w", record.Name, err)
			}
		}
		roles = append(roles, Role{
			Name:        record.Name,
			Level:       record.Level,
			Description: record.Description,
			Permissions: perms,
		})
	}

	return NewRoleTable(roles, catalog)
}

// Seeder returns a database seeder that syncs table.
func Seeder(table *RoleTable) func(context.Context, *gorm.DB) error {
	return func(ctx context.Context, db *gorm.DB) error {
		return Sync(ctx, db, table)
	}
}
