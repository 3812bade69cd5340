package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ShareLinkStatus is the lifecycle state of a public share link.
// The only legal transition is active -> revoked.
type ShareLinkStatus string

const (
	ShareLinkActive  ShareLinkStatus = "active"
	ShareLinkRevoked ShareLinkStatus = "revoked"
)

// ShareLink is a tokenized, revocable capability granting access to a
// single call recording. Rows are never deleted so the audit trail of a
// revoked link stays queryable.
type ShareLink struct {
	ID              string          `gorm:"type:text;primaryKey"`
	CallRecordingID string          `gorm:"type:text;not null;index"`
	OwnerUserID     string          `gorm:"type:text;not null;index"`
	CreatedByUserID string          `gorm:"type:text;not null"`
	ShareToken      string          `gorm:"type:text;not null;uniqueIndex"`
	RecipientEmail  *string         `gorm:"type:text"`
	Status          ShareLinkStatus `gorm:"type:text;not null;default:'active'"`
	CreatedAt       time.Time       `gorm:"not null"`
	RevokedAt       *time.Time
}

// TableName matches the persisted schema.
func (ShareLink) TableName() string { return "call_share_links" }

// BeforeCreate generates a UUID primary key if not set.
func (l *ShareLink) BeforeCreate(_ *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}

// ShareAccessLog records each time a share link was viewed. Append-only.
type ShareAccessLog struct {
	ID               string  `gorm:"type:text;primaryKey"`
	ShareLinkID      string  `gorm:"type:text;not null;index"`
	AccessedByUserID *string `gorm:"type:text"`
	AccessedAt       time.Time `gorm:"not null"`
}

// TableName matches the persisted schema.
func (ShareAccessLog) TableName() string { return "call_share_access_log" }

// BeforeCreate generates a UUID primary key if not set.
func (e *ShareAccessLog) BeforeCreate(_ *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}
