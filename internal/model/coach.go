package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RelationshipStatus is the lifecycle state of a coach relationship.
// Ended is terminal: a relationship is never reactivated.
type RelationshipStatus string

const (
	RelationshipPending RelationshipStatus = "pending"
	RelationshipActive  RelationshipStatus = "active"
	RelationshipEnded   RelationshipStatus = "ended"
)

// InvitedBy records which side of a relationship issued the invite, and
// therefore which user-id slot is a placeholder until acceptance.
type InvitedBy string

const (
	InvitedByCoach   InvitedBy = "coach"
	InvitedByCoachee InvitedBy = "coachee"
)

// ShareType scopes a coach or team share to everything or to one folder.
type ShareType string

const (
	ShareAll    ShareType = "all"
	ShareFolder ShareType = "folder"
)

// CoachRelationship is a pairwise coach/coachee link. While pending,
// the slot opposite InvitedBy holds the inviter's own id as a
// placeholder; AcceptInvite binds the real user into that slot.
type CoachRelationship struct {
	ID              string             `gorm:"type:text;primaryKey"`
	CoachUserID     string             `gorm:"type:text;not null;index"`
	CoacheeUserID   string             `gorm:"type:text;not null;index"`
	Status          RelationshipStatus `gorm:"type:text;not null;default:'pending'"`
	InvitedBy       InvitedBy          `gorm:"type:text;not null"`
	InviteToken     *string            `gorm:"type:text;uniqueIndex"`
	InviteExpiresAt *time.Time
	AcceptedAt      *time.Time
	EndedAt         *time.Time
	CreatedAt       time.Time `gorm:"not null"`
}

// TableName matches the persisted schema.
func (CoachRelationship) TableName() string { return "coach_relationships" }

// BeforeCreate generates a UUID primary key if not set.
func (r *CoachRelationship) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// CoachShare scopes what a coach may see within one relationship.
// FolderID is set iff ShareType is folder.
type CoachShare struct {
	ID             string    `gorm:"type:text;primaryKey"`
	RelationshipID string    `gorm:"type:text;not null;index"`
	ShareType      ShareType `gorm:"type:text;not null"`
	FolderID       *string   `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"not null"`
}

// TableName matches the persisted schema.
func (CoachShare) TableName() string { return "coach_shares" }

// BeforeCreate generates a UUID primary key if not set.
func (s *CoachShare) BeforeCreate(_ *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// CoachNote is a coach's note on one call within one relationship.
// The composite unique index enforces at most one note per pair; the
// write path upserts rather than inserting duplicates.
type CoachNote struct {
	ID              string `gorm:"type:text;primaryKey"`
	RelationshipID  string `gorm:"type:text;not null;uniqueIndex:idx_coach_notes_rel_call"`
	CallRecordingID string `gorm:"type:text;not null;uniqueIndex:idx_coach_notes_rel_call"`
	UserID          string `gorm:"type:text;not null"` // coachee, the call subject
	Note            string `gorm:"type:text;not null"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// TableName matches the persisted schema.
func (CoachNote) TableName() string { return "coach_notes" }

// BeforeCreate generates a UUID primary key if not set.
func (n *CoachNote) BeforeCreate(_ *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}
