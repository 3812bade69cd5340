package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/callvault/callvault/internal/apperr"
	"github.com/callvault/callvault/internal/model"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Credentials verifies email/password logins and registers new users.
type Credentials struct {
	db *gorm.DB
}

// NewCredentials creates a Credentials store backed by the given GORM DB.
func NewCredentials(db *gorm.DB) *Credentials {
	return &Credentials{db: db}
}

// Register creates a new user with a bcrypt-hashed password.
func (c *Credentials) Register(_ context.Context, email, name, password string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperr.Validation("email is required")
	}
	if len(password) < 8 {
		return nil, apperr.Validation("password must be at least 8 characters")
	}

	var existing model.User
	err := c.db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, apperr.Conflict("a user with this email already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Store("look up user", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Store("hash password", err)
	}

	user := &model.User{
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
	}
	if err := c.db.Create(user).Error; err != nil {
		return nil, apperr.Store("create user", err)
	}
	return user, nil
}

// Verify checks the email/password pair and returns the matching user.
func (c *Credentials) Verify(_ context.Context, email, password string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user model.User
	if err := c.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("invalid email or password")
		}
		return nil, apperr.Store("look up user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.NotFound("invalid email or password")
	}
	return &user, nil
}
