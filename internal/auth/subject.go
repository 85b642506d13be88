package auth

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/models"
)

// ErrSubjectNotFound is returned when the user behind a session no longer exists or was disabled.
var ErrSubjectNotFound = errors.New("auth: subject not found")

// Subject is the principal an access token is minted for.
type Subject struct {
	UserID  string
	Email   string
	Roles   []string
	IsGuest bool
}

// SubjectLoader reloads a subject so rotated access tokens carry current roles.
type SubjectLoader interface {
	LoadSubject(ctx context.Context, userID string) (Subject, error)
}

// RoleLister returns the role names currently assigned to a user.
type RoleLister interface {
	ActiveRoles(ctx context.Context, userID string) ([]string, error)
}

// GormSubjectLoader reads users from gorm and delegates role lookup to a RoleLister.
type GormSubjectLoader struct {
	db    *gorm.DB
	roles RoleLister
}

// NewGormSubjectLoader constructs a loader. roles may be nil, in which case subjects carry no roles.
func NewGormSubjectLoader(db *gorm.DB, roles RoleLister) *GormSubjectLoader {
	return &GormSubjectLoader{db: db, roles: roles}
}

func (l *GormSubjectLoader) LoadSubject(ctx context.Context, userID string) (Subject, error) {
	if strings.TrimSpace(userID) == "" {
		return Subject{}, ErrSubjectNotFound
	}

	var user models.User
	err := l.db.WithContext(ctx).Take(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Subject{}, ErrSubjectNotFound
	}
	if err != nil {
		return Subject{}, unavailable("load subject", err)
	}
	if !user.IsActive {
		return Subject{}, ErrSubjectNotFound
	}

	subject := Subject{UserID: user.ID, Email: user.Email, IsGuest: user.IsGuest}
	if l.roles != nil {
		roles, err := l.roles.ActiveRoles(ctx, user.ID)
		if err != nil {
			return Subject{}, unavailable("load subject roles", err)
		}
		subject.Roles = roles
	}
	return subject, nil
}
