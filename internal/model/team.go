package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TeamRole tags a membership. Admins inherit manager-level visibility.
type TeamRole string

const (
	RoleAdmin   TeamRole = "admin"
	RoleManager TeamRole = "manager"
	RoleMember  TeamRole = "member"
)

// MembershipStatus is the lifecycle state of a team membership. Removed
// rows are retained so historical notes and logs stay queryable.
type MembershipStatus string

const (
	MembershipPending MembershipStatus = "pending"
	MembershipActive  MembershipStatus = "active"
	MembershipRemoved MembershipStatus = "removed"
)

// Team groups memberships under one owner. InviteToken, when set, is a
// reusable join link that admits new members until it expires.
type Team struct {
	ID              string  `gorm:"type:text;primaryKey"`
	Name            string  `gorm:"type:text;not null"`
	OwnerUserID     string  `gorm:"type:text;not null;index"`
	AdminSeesAll    bool    `gorm:"not null;default:false"`
	InviteToken     *string `gorm:"type:text;uniqueIndex"`
	InviteExpiresAt *time.Time
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (t *Team) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// TeamMembership is a role-tagged membership. ManagerMembershipID is a
// weak back-reference to another membership in the same team; the set of
// references forms a forest, validated on write.
type TeamMembership struct {
	ID                  string           `gorm:"type:text;primaryKey"`
	TeamID              string           `gorm:"type:text;not null;index"`
	UserID              string           `gorm:"type:text;not null;index"`
	Role                TeamRole         `gorm:"type:text;not null;default:'member'"`
	ManagerMembershipID *string          `gorm:"type:text;index"`
	Status              MembershipStatus `gorm:"type:text;not null;default:'pending'"`
	InviteToken         *string          `gorm:"type:text;uniqueIndex"`
	InviteExpiresAt     *time.Time
	InvitedByUserID     *string `gorm:"type:text"`
	InviteEmail         *string `gorm:"type:text"`
	JoinedAt            *time.Time
	CreatedAt           time.Time `gorm:"not null"`
}

// TableName matches the persisted schema.
func (TeamMembership) TableName() string { return "team_memberships" }

// BeforeCreate generates a UUID primary key if not set.
func (m *TeamMembership) BeforeCreate(_ *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// TeamShare is a peer-to-peer grant from one team member to another.
type TeamShare struct {
	ID              string    `gorm:"type:text;primaryKey"`
	TeamID          string    `gorm:"type:text;not null;index"`
	OwnerUserID     string    `gorm:"type:text;not null;index"`
	RecipientUserID string    `gorm:"type:text;not null;index"`
	ShareType       ShareType `gorm:"type:text;not null"`
	FolderID        *string   `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"not null"`
}

// TableName matches the persisted schema.
func (TeamShare) TableName() string { return "team_shares" }

// BeforeCreate generates a UUID primary key if not set.
func (s *TeamShare) BeforeCreate(_ *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// ManagerNote is a manager's private note on a direct report's call,
// at most one per (manager, call) pair.
type ManagerNote struct {
	ID              string `gorm:"type:text;primaryKey"`
	ManagerUserID   string `gorm:"type:text;not null;uniqueIndex:idx_manager_notes_mgr_call"`
	CallRecordingID string `gorm:"type:text;not null;uniqueIndex:idx_manager_notes_mgr_call"`
	UserID          string `gorm:"type:text;not null"` // report who owns the call
	Note            string `gorm:"type:text;not null"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// TableName matches the persisted schema.
func (ManagerNote) TableName() string { return "manager_notes" }

// BeforeCreate generates a UUID primary key if not set.
func (n *ManagerNote) BeforeCreate(_ *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}
