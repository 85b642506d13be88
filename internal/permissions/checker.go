package permissions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/pkg/metrics"
)

// AssignmentReader loads the role assignments of a user.
type AssignmentReader interface {
	Assignments(ctx context.Context, userID string) ([]Assignment, error)
}

// GormAssignmentReader reads and writes the user_roles table.
type GormAssignmentReader struct {
	db *gorm.DB
}

// NewGormAssignmentReader constructs a reader backed by db.
func NewGormAssignmentReader(db *gorm.DB) *GormAssignmentReader {
	return &GormAssignmentReader{db: db}
}

func (g *GormAssignmentReader) Assignments(ctx context.Context, userID string) ([]Assignment, error) {
	var rows []models.UserRole
	if err := g.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("permission: load assignments: %w", err)
	}

	out := make([]Assignment, 0, len(rows))
	for _, row := range rows {
		out = append(out, Assignment{Role: row.RoleName, ExpiresAt: row.ExpiresAt})
	}
	return out, nil
}

// Grant assigns role to userID, replacing the expiry of an existing assignment.
func (g *GormAssignmentReader) Grant(ctx context.Context, userID, role string, expiresAt *time.Time, grantedBy string) error {
	userID = strings.TrimSpace(userID)
	role = normaliseRoleName(role)
	if userID == "" || role == "" {
		return errors.New("permission: user id and role are required")
	}

	record := models.UserRole{UserID: userID, RoleName: role, ExpiresAt: expiresAt}
	if grantedBy != "" {
		record.GrantedBy = &grantedBy
	}

	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "role_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"expires_at", "granted_by"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("permission: grant %s: %w", role, err)
	}
	return nil
}

// Revoke removes an assignment. Missing assignments are not an error.
func (g *GormAssignmentReader) Revoke(ctx context.Context, userID, role string) error {
	err := g.db.WithContext(ctx).
		Where("user_id = ? AND role_name = ?", userID, normaliseRoleName(role)).
		Delete(&models.UserRole{}).Error
	if err != nil {
		return fmt.Errorf("permission: revoke %s: %w", role, err)
	}
	return nil
}

// PurgeExpired deletes assignments that expired before now.
func (g *GormAssignmentReader) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result := g.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Delete(&models.UserRole{})
	if result.Error != nil {
		return 0, fmt.Errorf("permission: purge expired assignments: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Checker evaluates stored assignments, so it reflects grants and revocations made after a
// token was issued.
type Checker struct {
	reader   AssignmentReader
	resolver *Resolver
}

// NewChecker constructs a permission checker.
func NewChecker(reader AssignmentReader, resolver *Resolver) (*Checker, error) {
	if reader == nil {
		return nil, errors.New("permission checker: assignment reader is required")
	}
	if resolver == nil {
		return nil, errors.New("permission checker: resolver is required")
	}
	return &Checker{reader: reader, resolver: resolver}, nil
}

// Check determines whether the user currently holds permissionID.
func (c *Checker) Check(ctx context.Context, userID, permissionID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, errors.New("permission checker: user id is required")
	}
	permissionID = strings.TrimSpace(permissionID)
	if permissionID == "" {
		return false, errors.New("permission checker: permission id is required")
	}

	assignments, err := c.reader.Assignments(ctx, userID)
	if err != nil {
		metrics.PermissionChecks.WithLabelValues(permissionID, "error").Inc()
		return false, err
	}

	allowed := c.resolver.HasPermission(assignments, permissionID)
	result := "deny"
	if allowed {
		result = "allow"
	}
	metrics.PermissionChecks.WithLabelValues(permissionID, result).Inc()
	return allowed, nil
}

// GetUserPermissions returns the distinct permission ids granted to the user.
func (c *Checker) GetUserPermissions(ctx context.Context, userID string) ([]string, error) {
	assignments, err := c.reader.Assignments(ctx, strings.TrimSpace(userID))
	if err != nil {
		return nil, err
	}
	return c.resolver.EffectivePermissions(assignments).Sorted(), nil
}

// ActiveRoles returns the user's live role names, highest level first.
func (c *Checker) ActiveRoles(ctx context.Context, userID string) ([]string, error) {
	assignments, err := c.reader.Assignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	return c.resolver.RoleNames(assignments), nil
}
