// Package team manages teams: role-tagged memberships, invites, the
// manager hierarchy, peer shares, and manager notes.
package team

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/callvault/callvault/internal/apperr"
	"github.com/callvault/callvault/internal/calls"
	"github.com/callvault/callvault/internal/config"
	"github.com/callvault/callvault/internal/identity"
	"github.com/callvault/callvault/internal/model"
	"github.com/callvault/callvault/internal/token"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const recentCallLimit = 5

// Service implements team management.
type Service struct {
	db    *gorm.DB
	calls *calls.Store
	ids   *identity.Resolver
	cfg   config.SharingConfig
}

// NewService creates a Service backed by the given GORM DB.
func NewService(db *gorm.DB, callStore *calls.Store, ids *identity.Resolver, cfg config.SharingConfig) *Service {
	return &Service{db: db, calls: callStore, ids: ids, cfg: cfg}
}

// Invite is the result of inviting one member by email.
type Invite struct {
	Membership *model.TeamMembership
	Token      string
	InviteURL  string
}

// TeamInvite is the team-level reusable join link.
type TeamInvite struct {
	Token     string
	InviteURL string
	ExpiresAt time.Time
}

// MemberView decorates a membership with user and manager display info.
type MemberView struct {
	Membership   model.TeamMembership
	Email        string
	Name         string
	ManagerEmail string
}

// MembershipInfo is a membership plus derived role flags.
type MembershipInfo struct {
	Membership model.TeamMembership
	IsAdmin    bool
	IsManager  bool
}

// DirectReport is one report with their most recent calls.
type DirectReport struct {
	Membership  model.TeamMembership
	Email       string
	RecentCalls []model.CallRecording
}

// OrgChartNode is one member and their reports.
type OrgChartNode struct {
	Member   MemberView
	Children []*OrgChartNode
}

// OrgChart is the team's reporting forest.
type OrgChart struct {
	Roots        []*OrgChartNode
	TotalMembers int
}

// CreateTeam creates the team and its bootstrap admin membership in one
// transaction, so a failed membership insert leaves no orphan team.
func (s *Service) CreateTeam(ctx context.Context, name, ownerID string, adminSeesAll bool) (*model.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("team name is required")
	}
	if ownerID == "" {
		return nil, apperr.Validation("owner id is required")
	}

	team := &model.Team{
		Name:         name,
		OwnerUserID:  ownerID,
		AdminSeesAll: adminSeesAll,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(team).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		admin := &model.TeamMembership{
			TeamID:   team.ID,
			UserID:   ownerID,
			Role:     model.RoleAdmin,
			Status:   model.MembershipActive,
			JoinedAt: &now,
		}
		return tx.Create(admin).Error
	})
	if err != nil {
		return nil, apperr.Store("create team", err)
	}
	return team, nil
}

// Team returns the team by id.
func (s *Service) Team(ctx context.Context, teamID string) (*model.Team, error) {
	if teamID == "" {
		return nil, apperr.Validation("team id is required")
	}
	var team model.Team
	if err := s.db.WithContext(ctx).First(&team, "id = ?", teamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("team not found")
		}
		return nil, apperr.Store("look up team", err)
	}
	return &team, nil
}

// UpdateTeam renames the team and toggles admin visibility. Admin only.
func (s *Service) UpdateTeam(ctx context.Context, teamID, callerID, name string, adminSeesAll bool) (*model.Team, error) {
	team, err := s.Team(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, teamID, callerID, "update the team"); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("team name is required")
	}
	err = s.db.WithContext(ctx).Model(team).
		Updates(map[string]any{"name": name, "admin_sees_all": adminSeesAll}).Error
	if err != nil {
		return nil, apperr.Store("update team", err)
	}
	return s.Team(ctx, teamID)
}

// DeleteTeam removes the team and all membership and share rows. Only
// the team owner may delete it.
func (s *Service) DeleteTeam(ctx context.Context, teamID, callerID string) error {
	team, err := s.Team(ctx, teamID)
	if err != nil {
		return err
	}
	if team.OwnerUserID != callerID {
		return apperr.Conflict("only the team owner can delete the team")
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("team_id = ?", teamID).Delete(&model.TeamShare{}).Error; err != nil {
			return err
		}
		if err := tx.Where("team_id = ?", teamID).Delete(&model.TeamMembership{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Team{}, "id = ?", teamID).Error
	})
	if err != nil {
		return apperr.Store("delete team", err)
	}
	return nil
}

// InviteMember creates a pending membership addressed to one email.
// The user slot holds the inviter's id until acceptance. Only active
// admins of the team may invite.
func (s *Service) InviteMember(ctx context.Context, teamID, email, inviterID string, role model.TeamRole, managerMembershipID *string) (*Invite, error) {
	if _, err := s.Team(ctx, teamID); err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperr.Validation("invite email is required")
	}
	if inviterID == "" {
		return nil, apperr.Validation("inviter id is required")
	}
	if err := s.requireAdmin(ctx, teamID, inviterID, "invite members"); err != nil {
		return nil, err
	}
	if err := validateRole(role); err != nil {
		return nil, err
	}
	if managerMembershipID != nil {
		if err := s.checkSameTeam(ctx, teamID, *managerMembershipID); err != nil {
			return nil, err
		}
	}

	tok, err := token.New()
	if err != nil {
		return nil, apperr.Store("generate invite token", err)
	}
	expires := token.ExpiresAt(s.cfg.TeamInviteTTL)

	m := &model.TeamMembership{
		TeamID:              teamID,
		UserID:              inviterID, // placeholder until acceptance
		Role:                role,
		ManagerMembershipID: managerMembershipID,
		Status:              model.MembershipPending,
		InviteToken:         &tok,
		InviteExpiresAt:     &expires,
		InvitedByUserID:     &inviterID,
		InviteEmail:         &email,
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, apperr.Store("create team invite", err)
	}
	return &Invite{
		Membership: m,
		Token:      tok,
		InviteURL:  s.cfg.BaseURL + "/team-invite/" + tok,
	}, nil
}

// AcceptInvite binds userID into a pending membership. The conditional
// update ensures exactly one concurrent accept wins.
func (s *Service) AcceptInvite(ctx context.Context, inviteToken, userID string) (*model.TeamMembership, error) {
	if inviteToken == "" || userID == "" {
		return nil, apperr.Validation("invite token and user id are required")
	}

	var m model.TeamMembership
	err := s.db.WithContext(ctx).
		Where("invite_token = ? AND status = ?", inviteToken, model.MembershipPending).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("invalid invite")
		}
		return nil, apperr.Store("look up invite", err)
	}

	if token.IsExpired(m.InviteExpiresAt) {
		return nil, apperr.Expired("invite has expired")
	}

	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&model.TeamMembership{}).
		Where("id = ? AND status = ?", m.ID, model.MembershipPending).
		Updates(map[string]any{
			"user_id":           userID,
			"status":            model.MembershipActive,
			"joined_at":         now,
			"invite_token":      nil,
			"invite_expires_at": nil,
		})
	if res.Error != nil {
		return nil, apperr.Store("accept invite", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("invalid invite")
	}

	var accepted model.TeamMembership
	if err := s.db.WithContext(ctx).First(&accepted, "id = ?", m.ID).Error; err != nil {
		return nil, apperr.Store("reload membership", err)
	}
	return &accepted, nil
}

// GenerateTeamInvite returns the team's reusable join link, minting a
// new token only when none exists or the current one expired. Only
// admins may generate it.
func (s *Service) GenerateTeamInvite(ctx context.Context, teamID, userID string) (*TeamInvite, error) {
	team, err := s.Team(ctx, teamID)
	if err != nil {
		return nil, err
	}
	info, err := s.MembershipFor(ctx, teamID, userID)
	if err != nil {
		return nil, err
	}
	if !info.IsAdmin {
		return nil, apperr.Conflict("only team admins can generate invites")
	}

	if team.InviteToken != nil && !token.IsExpired(team.InviteExpiresAt) {
		return &TeamInvite{
			Token:     *team.InviteToken,
			InviteURL: s.cfg.BaseURL + "/team-join/" + *team.InviteToken,
			ExpiresAt: *team.InviteExpiresAt,
		}, nil
	}

	tok, err := token.New()
	if err != nil {
		return nil, apperr.Store("generate team invite token", err)
	}
	expires := token.ExpiresAt(s.cfg.TeamInviteTTL)
	err = s.db.WithContext(ctx).Model(team).
		Updates(map[string]any{"invite_token": tok, "invite_expires_at": expires}).Error
	if err != nil {
		return nil, apperr.Store("store team invite token", err)
	}
	return &TeamInvite{
		Token:     tok,
		InviteURL: s.cfg.BaseURL + "/team-join/" + tok,
		ExpiresAt: expires,
	}, nil
}

// JoinTeam redeems the reusable team link, creating an active member
// membership. Joining a team twice is a conflict.
func (s *Service) JoinTeam(ctx context.Context, inviteToken, userID string) (*model.TeamMembership, error) {
	if inviteToken == "" || userID == "" {
		return nil, apperr.Validation("invite token and user id are required")
	}

	var team model.Team
	err := s.db.WithContext(ctx).Where("invite_token = ?", inviteToken).First(&team).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("invalid invite")
		}
		return nil, apperr.Store("look up team invite", err)
	}
	if token.IsExpired(team.InviteExpiresAt) {
		return nil, apperr.Expired("invite has expired")
	}

	var existing int64
	err = s.db.WithContext(ctx).Model(&model.TeamMembership{}).
		Where("team_id = ? AND user_id = ? AND status <> ?", team.ID, userID, model.MembershipRemoved).
		Count(&existing).Error
	if err != nil {
		return nil, apperr.Store("check membership", err)
	}
	if existing > 0 {
		return nil, apperr.Conflict("already a member of this team")
	}

	now := time.Now().UTC()
	m := &model.TeamMembership{
		TeamID:   team.ID,
		UserID:   userID,
		Role:     model.RoleMember,
		Status:   model.MembershipActive,
		JoinedAt: &now,
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, apperr.Store("create membership", err)
	}
	return m, nil
}

// Members lists the team's non-removed memberships with user and
// manager decoration.
func (s *Service) Members(ctx context.Context, teamID string) ([]MemberView, error) {
	if teamID == "" {
		return nil, apperr.Validation("team id is required")
	}
	var memberships []model.TeamMembership
	err := s.db.WithContext(ctx).
		Where("team_id = ? AND status <> ?", teamID, model.MembershipRemoved).
		Order("created_at ASC").
		Find(&memberships).Error
	if err != nil {
		return nil, apperr.Store("list memberships", err)
	}
	return s.decorate(ctx, memberships)
}

func (s *Service) decorate(ctx context.Context, memberships []model.TeamMembership) ([]MemberView, error) {
	byID := make(map[string]model.TeamMembership, len(memberships))
	userIDs := make([]string, 0, len(memberships))
	for _, m := range memberships {
		byID[m.ID] = m
		userIDs = append(userIDs, m.UserID)
	}
	emails, err := s.ids.Emails(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	out := make([]MemberView, 0, len(memberships))
	for _, m := range memberships {
		view := MemberView{Membership: m, Email: emails[m.UserID]}
		if m.ManagerMembershipID != nil {
			if mgr, ok := byID[*m.ManagerMembershipID]; ok {
				view.ManagerEmail = emails[mgr.UserID]
			}
		}
		out = append(out, view)
	}
	return out, nil
}

// MembershipFor returns the user's non-removed membership in the team
// with derived role flags. Admins count as managers.
func (s *Service) MembershipFor(ctx context.Context, teamID, userID string) (*MembershipInfo, error) {
	if teamID == "" || userID == "" {
		return nil, apperr.Validation("team id and user id are required")
	}
	var m model.TeamMembership
	err := s.db.WithContext(ctx).
		Where("team_id = ? AND user_id = ? AND status <> ?", teamID, userID, model.MembershipRemoved).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("membership not found")
		}
		return nil, apperr.Store("look up membership", err)
	}
	return &MembershipInfo{
		Membership: m,
		IsAdmin:    m.Role == model.RoleAdmin,
		IsManager:  m.Role == model.RoleAdmin || m.Role == model.RoleManager,
	}, nil
}

// SetManager points the membership at a new manager, keeping the
// reporting structure a forest. Admin only.
func (s *Service) SetManager(ctx context.Context, membershipID, callerID string, managerMembershipID *string) error {
	m, err := s.membership(ctx, membershipID)
	if err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, m.TeamID, callerID, "update members"); err != nil {
		return err
	}
	if managerMembershipID != nil {
		if err := s.validateManagerRef(ctx, m, *managerMembershipID); err != nil {
			return err
		}
	}
	err = s.db.WithContext(ctx).Model(m).
		Update("manager_membership_id", managerMembershipID).Error
	if err != nil {
		return apperr.Store("set manager", err)
	}
	return nil
}

// validateManagerRef rejects cross-team parents and reporting cycles.
// The cycle check walks the manager chain upward from the proposed
// parent; reaching the node being updated means the edge would close a
// loop.
func (s *Service) validateManagerRef(ctx context.Context, m *model.TeamMembership, managerID string) error {
	if managerID == m.ID {
		return apperr.Conflict("circular reporting structure")
	}
	mgr, err := s.membership(ctx, managerID)
	if err != nil {
		return err
	}
	if mgr.TeamID != m.TeamID {
		return apperr.Conflict("manager must belong to the same team")
	}

	seen := map[string]bool{m.ID: true}
	cur := mgr
	for {
		if seen[cur.ID] {
			return apperr.Conflict("circular reporting structure")
		}
		seen[cur.ID] = true
		if cur.ManagerMembershipID == nil {
			return nil
		}
		next, err := s.membership(ctx, *cur.ManagerMembershipID)
		if err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				// Dangling reference terminates the chain.
				return nil
			}
			return err
		}
		cur = next
	}
}

// UpdateMember changes a membership's role and manager in one call.
// Admin only; the team must keep at least one active admin, so demoting
// the sole admin is rejected.
func (s *Service) UpdateMember(ctx context.Context, membershipID, callerID string, role model.TeamRole, managerMembershipID *string) (*model.TeamMembership, error) {
	m, err := s.membership(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, m.TeamID, callerID, "update members"); err != nil {
		return nil, err
	}
	if err := validateRole(role); err != nil {
		return nil, err
	}
	if m.Role == model.RoleAdmin && role != model.RoleAdmin {
		others, err := s.otherActiveAdmins(ctx, m)
		if err != nil {
			return nil, err
		}
		if others == 0 {
			return nil, apperr.Conflict("cannot demote the last admin")
		}
	}
	if managerMembershipID != nil {
		if err := s.validateManagerRef(ctx, m, *managerMembershipID); err != nil {
			return nil, err
		}
	}
	err = s.db.WithContext(ctx).Model(m).
		Updates(map[string]any{"role": role, "manager_membership_id": managerMembershipID}).Error
	if err != nil {
		return nil, apperr.Store("update membership", err)
	}
	return s.membership(ctx, membershipID)
}

// RemoveMember marks the membership removed and detaches its direct
// reports. Admins may remove anyone; a member may remove themselves.
// A team must always keep at least one active admin.
func (s *Service) RemoveMember(ctx context.Context, membershipID, callerID string) error {
	m, err := s.membership(ctx, membershipID)
	if err != nil {
		return err
	}
	if m.UserID != callerID {
		if err := s.requireAdmin(ctx, m.TeamID, callerID, "remove members"); err != nil {
			return err
		}
	}
	if m.Status == model.MembershipRemoved {
		return nil
	}

	if m.Role == model.RoleAdmin {
		others, err := s.otherActiveAdmins(ctx, m)
		if err != nil {
			return err
		}
		if others == 0 {
			return apperr.Conflict("cannot remove the last admin")
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.TeamMembership{}).
			Where("id = ?", m.ID).
			Update("status", model.MembershipRemoved).Error; err != nil {
			return err
		}
		// Reports of the removed member float to the root.
		return tx.Model(&model.TeamMembership{}).
			Where("manager_membership_id = ?", m.ID).
			Update("manager_membership_id", nil).Error
	})
	if err != nil {
		return apperr.Store("remove member", err)
	}
	return nil
}

// Shares lists the grants ownerID made within the team.
func (s *Service) Shares(ctx context.Context, teamID, ownerID string) ([]model.TeamShare, error) {
	if teamID == "" || ownerID == "" {
		return nil, apperr.Validation("team id and owner id are required")
	}
	var shares []model.TeamShare
	err := s.db.WithContext(ctx).
		Where("team_id = ? AND owner_user_id = ?", teamID, ownerID).
		Order("created_at ASC").
		Find(&shares).Error
	if err != nil {
		return nil, apperr.Store("list team shares", err)
	}
	return shares, nil
}

// SharesWithMe lists the grants made to userID within the team.
func (s *Service) SharesWithMe(ctx context.Context, teamID, userID string) ([]model.TeamShare, error) {
	if teamID == "" || userID == "" {
		return nil, apperr.Validation("team id and user id are required")
	}
	var shares []model.TeamShare
	err := s.db.WithContext(ctx).
		Where("team_id = ? AND recipient_user_id = ?", teamID, userID).
		Order("created_at ASC").
		Find(&shares).Error
	if err != nil {
		return nil, apperr.Store("list team shares", err)
	}
	return shares, nil
}

// AddShare grants a teammate visibility into the owner's calls.
func (s *Service) AddShare(ctx context.Context, teamID, ownerID, recipientID string, shareType model.ShareType, folderID *string) (*model.TeamShare, error) {
	if teamID == "" || ownerID == "" || recipientID == "" {
		return nil, apperr.Validation("team id, owner id, and recipient id are required")
	}
	if _, err := s.Team(ctx, teamID); err != nil {
		return nil, err
	}
	if err := validateShareScope(shareType, folderID); err != nil {
		return nil, err
	}
	share := &model.TeamShare{
		TeamID:          teamID,
		OwnerUserID:     ownerID,
		RecipientUserID: recipientID,
		ShareType:       shareType,
		FolderID:        folderID,
	}
	if err := s.db.WithContext(ctx).Create(share).Error; err != nil {
		return nil, apperr.Store("create team share", err)
	}
	return share, nil
}

// RemoveShare deletes one grant. Scoped to the share's owner: someone
// else's share id behaves as if it does not exist.
func (s *Service) RemoveShare(ctx context.Context, shareID, callerID string) error {
	if shareID == "" || callerID == "" {
		return apperr.Validation("share id and caller id are required")
	}
	res := s.db.WithContext(ctx).
		Where("id = ? AND owner_user_id = ?", shareID, callerID).
		Delete(&model.TeamShare{})
	if res.Error != nil {
		return apperr.Store("delete team share", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("share not found")
	}
	return nil
}

// Note returns the manager's note on one call, if any.
func (s *Service) Note(ctx context.Context, managerID, callID string) (*model.ManagerNote, error) {
	if managerID == "" || callID == "" {
		return nil, apperr.Validation("manager id and call recording id are required")
	}
	var note model.ManagerNote
	err := s.db.WithContext(ctx).
		Where("manager_user_id = ? AND call_recording_id = ?", managerID, callID).
		First(&note).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("note not found")
		}
		return nil, apperr.Store("look up manager note", err)
	}
	return &note, nil
}

// SaveNote upserts the manager's note on one call. The subject is the
// call's owner, resolved from the call store.
func (s *Service) SaveNote(ctx context.Context, managerID, callID, text string) (*model.ManagerNote, error) {
	if managerID == "" || callID == "" {
		return nil, apperr.Validation("manager id and call recording id are required")
	}
	call, err := s.calls.Get(ctx, callID)
	if err != nil {
		return nil, err
	}

	note := &model.ManagerNote{
		ManagerUserID:   managerID,
		CallRecordingID: callID,
		UserID:          call.UserID,
		Note:            text,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "manager_user_id"}, {Name: "call_recording_id"}},
		DoUpdates: clause.Assignments(map[string]any{"note": text, "updated_at": time.Now().UTC()}),
	}).Create(note).Error
	if err != nil {
		return nil, apperr.Store("save manager note", err)
	}
	return s.Note(ctx, managerID, callID)
}

// DeleteNote removes the manager's note on one call.
func (s *Service) DeleteNote(ctx context.Context, managerID, callID string) error {
	if managerID == "" || callID == "" {
		return apperr.Validation("manager id and call recording id are required")
	}
	res := s.db.WithContext(ctx).
		Where("manager_user_id = ? AND call_recording_id = ?", managerID, callID).
		Delete(&model.ManagerNote{})
	if res.Error != nil {
		return apperr.Store("delete manager note", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("no note to delete")
	}
	return nil
}

// DirectReports lists the members reporting to any of the caller's
// active memberships, each with their most recent calls.
func (s *Service) DirectReports(ctx context.Context, userID string) ([]DirectReport, error) {
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}

	var own []model.TeamMembership
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.MembershipActive).
		Find(&own).Error
	if err != nil {
		return nil, apperr.Store("list memberships", err)
	}
	if len(own) == 0 {
		return nil, nil
	}
	ownIDs := make([]string, 0, len(own))
	for _, m := range own {
		ownIDs = append(ownIDs, m.ID)
	}

	var reports []model.TeamMembership
	err = s.db.WithContext(ctx).
		Where("manager_membership_id IN ? AND status = ?", ownIDs, model.MembershipActive).
		Find(&reports).Error
	if err != nil {
		return nil, apperr.Store("list direct reports", err)
	}

	userIDs := make([]string, 0, len(reports))
	for _, r := range reports {
		userIDs = append(userIDs, r.UserID)
	}
	emails, err := s.ids.Emails(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	out := make([]DirectReport, 0, len(reports))
	for _, r := range reports {
		var recent []model.CallRecording
		err := s.db.WithContext(ctx).
			Where("user_id = ?", r.UserID).
			Order("recording_start_time DESC").
			Limit(recentCallLimit).
			Find(&recent).Error
		if err != nil {
			return nil, apperr.Store("list recent calls", err)
		}
		out = append(out, DirectReport{
			Membership:  r,
			Email:       emails[r.UserID],
			RecentCalls: recent,
		})
	}
	return out, nil
}

// Chart builds the team's reporting forest in one pass over its active
// memberships. A membership whose manager reference points at a
// missing or inactive row becomes a root rather than disappearing.
func (s *Service) Chart(ctx context.Context, teamID string) (*OrgChart, error) {
	if teamID == "" {
		return nil, apperr.Validation("team id is required")
	}
	var memberships []model.TeamMembership
	err := s.db.WithContext(ctx).
		Where("team_id = ? AND status = ?", teamID, model.MembershipActive).
		Order("created_at ASC").
		Find(&memberships).Error
	if err != nil {
		return nil, apperr.Store("list memberships", err)
	}

	views, err := s.decorate(ctx, memberships)
	if err != nil {
		return nil, err
	}

	nodes := make(map[string]*OrgChartNode, len(views))
	for i := range views {
		nodes[views[i].Membership.ID] = &OrgChartNode{Member: views[i]}
	}

	chart := &OrgChart{TotalMembers: len(views)}
	for i := range views {
		m := views[i].Membership
		node := nodes[m.ID]
		if m.ManagerMembershipID == nil {
			chart.Roots = append(chart.Roots, node)
			continue
		}
		parent, ok := nodes[*m.ManagerMembershipID]
		if !ok {
			chart.Roots = append(chart.Roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}
	return chart, nil
}

// checkSameTeam conflicts when the referenced membership belongs to a
// different team. Used for manager references supplied with an invite,
// before the invited membership row exists.
func (s *Service) checkSameTeam(ctx context.Context, teamID, membershipID string) error {
	m, err := s.membership(ctx, membershipID)
	if err != nil {
		return err
	}
	if m.TeamID != teamID {
		return apperr.Conflict("manager must belong to the same team")
	}
	return nil
}

// requireAdmin conflicts unless callerID holds an active admin
// membership in the team. action names the operation in the message.
func (s *Service) requireAdmin(ctx context.Context, teamID, callerID, action string) error {
	if callerID == "" {
		return apperr.Validation("caller id is required")
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&model.TeamMembership{}).
		Where("team_id = ? AND user_id = ? AND role = ? AND status = ?",
			teamID, callerID, model.RoleAdmin, model.MembershipActive).
		Count(&n).Error
	if err != nil {
		return apperr.Store("check admin membership", err)
	}
	if n == 0 {
		return apperr.Conflict("only team admins can " + action)
	}
	return nil
}

// otherActiveAdmins counts the team's active admins excluding m.
func (s *Service) otherActiveAdmins(ctx context.Context, m *model.TeamMembership) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.TeamMembership{}).
		Where("team_id = ? AND role = ? AND status = ? AND id <> ?",
			m.TeamID, model.RoleAdmin, model.MembershipActive, m.ID).
		Count(&n).Error
	if err != nil {
		return 0, apperr.Store("count admins", err)
	}
	return n, nil
}

func (s *Service) membership(ctx context.Context, id string) (*model.TeamMembership, error) {
	if id == "" {
		return nil, apperr.Validation("membership id is required")
	}
	var m model.TeamMembership
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("membership not found")
		}
		return nil, apperr.Store("look up membership", err)
	}
	return &m, nil
}

func validateRole(role model.TeamRole) error {
	switch role {
	case model.RoleAdmin, model.RoleManager, model.RoleMember:
		return nil
	default:
		return apperr.Validation("role must be admin, manager, or member")
	}
}

func validateShareScope(shareType model.ShareType, folderID *string) error {
	switch shareType {
	case model.ShareAll:
		if folderID != nil {
			return apperr.Validation("folder id must be empty for an all-calls share")
		}
	case model.ShareFolder:
		if folderID == nil || *folderID == "" {
			return apperr.Validation("folder id is required for a folder share")
		}
	default:
		return apperr.Validation("share type must be all or folder")
	}
	return nil
}
