// Package model contains GORM model definitions shared across packages.
// All models are driver-agnostic: they work with both PostgreSQL and SQLite.
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the identity substrate. Relationship rows reference users by
// opaque id only; the email is resolved at read time for decoration.
type User struct {
	ID           string `gorm:"type:text;primaryKey"`
	Email        string `gorm:"type:text;not null;uniqueIndex"`
	Name         string `gorm:"type:text;not null;default:''"`
	PasswordHash string `gorm:"type:text;not null;default:''"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

// RefreshToken is the GORM model for the refresh_tokens table.
type RefreshToken struct {
	ID        string    `gorm:"type:text;primaryKey"`
	UserID    string    `gorm:"type:text;not null;index"`
	TokenHash string    `gorm:"type:text;not null;uniqueIndex"`
	ExpiresAt time.Time `gorm:"not null"`
	RevokedAt *time.Time
	CreatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (rt *RefreshToken) BeforeCreate(_ *gorm.DB) error {
	if rt.ID == "" {
		rt.ID = uuid.New().String()
	}
	return nil
}

// CallRecording is the call-record collaborator table. The sharing core
// reads it (always scoped by owner) and never writes it; ingestion is
// owned by a separate system.
type CallRecording struct {
	RecordingID        string `gorm:"type:text;primaryKey"`
	UserID             string `gorm:"type:text;not null;index"` // owner
	CallName           string `gorm:"type:text;not null"`
	RecordedByEmail    string `gorm:"type:text;not null;default:''"`
	RecordingStartTime time.Time `gorm:"not null"`
	Duration           *string   `gorm:"type:text"`
	FolderID           *string   `gorm:"type:text;index"`
	FullTranscript     *string   `gorm:"type:text"`
	CreatedAt          time.Time `gorm:"not null"`
}

// TableName keeps the collaborator table name stable across drivers.
func (CallRecording) TableName() string { return "call_recordings" }

// AllModels lists every model for AutoMigrate, in FK-safe order.
func AllModels() []any {
	return []any{
		&User{},
		&RefreshToken{},
		&CallRecording{},
		&ShareLink{},
		&ShareAccessLog{},
		&CoachRelationship{},
		&CoachShare{},
		&CoachNote{},
		&Team{},
		&TeamMembership{},
		&TeamShare{},
		&ManagerNote{},
	}
}
