// Package identity resolves opaque user ids to display information.
// Relationship rows store ids only; emails and names are looked up at
// read time so renames never touch relationship data.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/callvault/callvault/internal/apperr"
	"github.com/callvault/callvault/internal/model"
	"gorm.io/gorm"
)

// Resolver looks up users by id or email.
type Resolver struct {
	db *gorm.DB
}

// NewResolver creates a Resolver backed by the given GORM DB.
func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// User returns the user with the given id.
func (r *Resolver) User(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}
	var u model.User
	if err := r.db.WithContext(ctx).Where("id = ?", userID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Store("look up user", err)
	}
	return &u, nil
}

// UserByEmail returns the user with the given email, case-insensitively.
func (r *Resolver) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperr.Validation("email is required")
	}
	var u model.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Store("look up user", err)
	}
	return &u, nil
}

// Emails returns an id -> email map for the given ids. Missing ids are
// simply absent from the result; callers treat that as an unresolvable
// placeholder, not an error.
func (r *Resolver) Emails(ctx context.Context, userIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var users []model.User
	if err := r.db.WithContext(ctx).Select("id", "email").Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, apperr.Store("look up user emails", err)
	}
	for _, u := range users {
		out[u.ID] = u.Email
	}
	return out, nil
}
