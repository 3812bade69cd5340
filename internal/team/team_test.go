package team_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/callvault/callvault/internal/apperr"
	"github.com/callvault/callvault/internal/calls"
	"github.com/callvault/callvault/internal/config"
	"github.com/callvault/callvault/internal/identity"
	"github.com/callvault/callvault/internal/model"
	"github.com/callvault/callvault/internal/team"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	return db
}

func newService(t *testing.T) (*team.Service, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	cfg := config.SharingConfig{
		TeamInviteTTL: 7 * 24 * time.Hour,
		BaseURL:       "http://localhost:8080",
	}
	svc := team.NewService(db, calls.NewStore(db), identity.NewResolver(db), cfg)
	return svc, db
}

func seedUser(t *testing.T, db *gorm.DB, email string) *model.User {
	t.Helper()
	u := &model.User{Email: email}
	require.NoError(t, db.Create(u).Error)
	return u
}

// addMember invites and accepts in one step.
func addMember(t *testing.T, svc *team.Service, teamID, inviterID, userID string, role model.TeamRole, managerID *string) *model.TeamMembership {
	t.Helper()
	ctx := context.Background()
	inv, err := svc.InviteMember(ctx, teamID, userID+"@example.com", inviterID, role, managerID)
	require.NoError(t, err)
	m, err := svc.AcceptInvite(ctx, inv.Token, userID)
	require.NoError(t, err)
	return m
}

func TestCreateTeam_BootstrapsAdmin(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	tm, err := svc.CreateTeam(ctx, "Sales", "owner-1", true)
	require.NoError(t, err)
	assert.True(t, tm.AdminSeesAll)

	var m model.TeamMembership
	require.NoError(t, db.Where("team_id = ?", tm.ID).First(&m).Error)
	assert.Equal(t, "owner-1", m.UserID)
	assert.Equal(t, model.RoleAdmin, m.Role)
	assert.Equal(t, model.MembershipActive, m.Status)
	assert.NotNil(t, m.JoinedAt)
}

func TestCreateTeam_Validation(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.CreateTeam(context.Background(), "  ", "owner-1", false)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.CreateTeam(context.Background(), "Sales", "", false)
	require.Error(t, err)
}

func TestInviteAndAccept_Member(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	tm, err := svc.CreateTeam(ctx, "Sales", "owner-1", false)
	require.NoError(t, err)

	inv, err := svc.InviteMember(ctx, tm.ID, "New@Example.com", "owner-1", model.RoleMember, nil)
	require.NoError(t, err)
	assert.Equal(t, model.MembershipPending, inv.Membership.Status)
	require.NotNil(t, inv.Membership.InviteEmail)
	assert.Equal(t, "new@example.com", *inv.Membership.InviteEmail)
	// Placeholder slot until acceptance.
	assert.Equal(t, "owner-1", inv.Membership.UserID)

	m, err := svc.AcceptInvite(ctx, inv.Token, "user-2")
	require.NoError(t, err)
	assert.Equal(t, "user-2", m.UserID)
	assert.Equal(t, model.MembershipActive, m.Status)
	assert.NotNil(t, m.JoinedAt)
	assert.Nil(t, m.InviteToken)

	// A spent token cannot be redeemed again.
	_, err = svc.AcceptInvite(ctx, inv.Token, "user-3")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestAcceptInvite_Expired(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	tm, err := svc.CreateTeam(ctx, "Sales", "owner-1", false)
	require.NoError(t, err)
	inv, err := svc.InviteMember(ctx, tm.ID, "new@example.com", "owner-1", model.RoleMember, nil)
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&model.TeamMembership{}).
		Where("id = ?", inv.Membership.ID).
		Update("invite_expires_at", past).Error)

	_, err = svc.AcceptInvite(ctx, inv.Token, "user-2")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindExpired))

	var m model.TeamMembership
	require.NoError(t, db.First(&m, "id = ?", inv.Membership.ID).Error)
	assert.Equal(t, model.MembershipPending, m.Status)
}

func TestGenerateTeamInvite_ReusedWhileUnexpired(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	tm, err := svc.CreateTeam(ctx, "Sales", "owner-1", false)
	require.NoError(t, err)

	first, err := svc.GenerateTeamInvite(ctx, tm.ID, "owner-1")
	require.NoError(t, err)
	second, err := svc.GenerateTeamInvite(ctx, tm.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, first.Token, second.Token)
}

func TestGenerateTeamInvite_AdminOnly(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	tm, err := svc.CreateTeam(ctx, "Sales", "owner-1", false)
	require.NoError(t, err)
	addMember(t, svc, tm.ID, "owner-1", "user-2", model.RoleMember, nil)

	_, err = svc.GenerateTeamInvite(ctx, tm.ID, "user-2")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestJoinTeam_AlreadyMember(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	tm, err := svc.CreateTeam(ctx, "Sales", "owner-1", false)
	require.NoError(t, err)
	inv, err := svc.GenerateTeamInvite(ctx, tm.ID, "owner-1")
	require.NoError(t, err)

	m, err := svc.JoinTeam(ctx, inv.Token, "user-2")
	require.NoError(t, err)
	assert.Equal(t, model.RoleMember, m.Role)
	assert.Equal(t, model.MembershipActive, m.Status)

	_, err = svc.JoinTeam(ctx, inv.Token, "user-2")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestMembershipFor_RoleDerivation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	tm, err := svc.CreateTeam(ctx, "Sales", "owner-1", false)
	require.NoError(t, err)
	addMember(t, svc, tm.ID, "owner-1", "mgr-1", model.RoleManager, nil)
	addMember(t, svc, tm.ID, "owner-1", "user-1", model.RoleMember, nil)

	admin, err := svc.MembershipFor(ctx, tm.ID, "owner-1")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin)
	assert.True(t, admin.IsManager)

	mgr, err := svc.MembershipFor(ctx, tm.ID, "mgr-1")
	require.NoError(t, err)
	assert.False(t, mgr.IsAdmin)
	assert.True(t, mgr.IsManager)

	member, err := svc.MembershipFor(ctx, tm.ID, "user-1")
	require.NoError(t, err)
	assert.False(t, member.IsAdmin)
	assert.False(t, member.IsManager)

	_, err = svc.MembershipFor(ctx, tm.ID, "stranger")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestSetManager_CycleRejected(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	tm, err := svc.CreateTeam(ctx, "Sales", "owner-1", false)
	require.NoError(t, err)
	a := addMember(t, svc, tm.ID, "owner-1", "a", model.RoleManager, nil)
	b := addMember(t, svc, tm.ID, "owner-1", "b", model.RoleManager, nil)
	c := addMember(t, svc, tm.ID, "owner-1", "c", model.RoleMember, nil)

	require.NoError(t, svc.SetManager(ctx, b.ID, "owner-1", &a.ID))
	require.NoError(t, svc.SetManager(ctx, c.ID, "owner-1", &b.ID))

	// a -> c would close the loop a -> c -> b -> a.
	err = svc.SetManager(ctx, a.ID, "owner-1", &c.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Contains(t, err.Error(), "circular reporting structure")

	// Self-management is the smallest cycle.
	err = svc.SetManager(ctx, a.ID, "owner-1", &a.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestSetManager_CrossTeamRejected(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	t1, err := svc.CreateTeam(ctx, "Sales", "owner-1", false)
	require.NoError(t, err)
	t2, err := svc.CreateTeam(ctx, "Support", "owner-2", false)
	require.NoError(t, err)

	m1 := addMember(t, svc, t1.ID, "owner-1", "a", model.RoleMember, nil)
	m2 := addMember(t, svc, t2.ID, "owner-2", "b", model.RoleManager, nil)

	err = svc.SetManager(ctx, m1.ID, "owner-1", &m2.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestRemoveMember_LastAdminProtected(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	tm, err := svc.CreateTeam(ctx, "Sales", "owner-1", false)
	require.NoError(t, err)

	var admin model.TeamMembership
	require.NoError(t, db.Where("team_id = ? AND user_id = ?", tm.ID, "owner-1").First(&admin).Error)

	err = svc.RemoveMember(ctx, admin.ID, "owner-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Contains(t, err.Error(), "cannot remove the last admin")

	// With a second admin the removal goes through.
	addMember(t, svc, tm.ID, "owner-1", "admin-2", model.RoleAdmin, nil)
	require.NoError(t, svc.RemoveMember(ctx, admin.ID, "owner-1"))

	var removed model.TeamMembership
	require.NoError(t, db.First(&removed, "id = ?", admin.ID).Error)
	assert.Equal(t, model.MembershipRemoved, removed.Status)
}

func TestRemoveMember_DetachesReports(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	tm, err := svc.CreateTeam(ctx, "Sales", "owner-1", false)
	require.NoError(t, err)
	mgr := addMember(t, svc, tm.ID, "owner-1", "mgr", model.RoleManager, nil)
	rep := addMember(t, svc, tm.ID, "owner-1", "rep", model.RoleMember, &mgr.ID)

	require.NoError(t, svc.RemoveMember(ctx, mgr.ID, "owner-1"))

	var got model.TeamMembership
	require.NoError(t, db.First(&got, "id = ?", rep.ID).Error)
	assert.Nil(t, got.ManagerMembershipID)
}

func TestDeleteTeam_OwnerOnlyAndCascades(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	tm, err := svc.CreateTeam(ctx, "Sales", "owner-1", false)
	require.NoError(t, err)
	addMember(t, svc, tm.ID, "owner-1", "user-2", model.RoleMember, nil)
	_, err = svc.AddShare(ctx, tm.ID, "owner-1", "user-2", model.ShareAll, nil)
	require.NoError(t, err)

	err = svc.DeleteTeam(ctx, tm.ID, "user-2")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	require.NoError(t, svc.DeleteTeam(ctx, tm.ID, "owner-1"))

	var teams, memberships, shares int64
	require.NoError(t, db.Model(&model.Team{}).Count(&teams).Error)
	require.NoError(t, db.Model(&model.TeamMembership{}).Count(&memberships).Error)
	require.NoError(t, db.Model(&model.TeamShare{}).Count(&shares).Error)
	assert.Zero(t, teams)
	assert.Zero(t, memberships)
	assert.Zero(t, shares)
}

func TestChart_RootsAndTotals(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	tm, err := svc.CreateTeam(ctx, "Sales", "owner-1", false)
	require.NoError(t, err)

	var admin model.TeamMembership
	require.NoError(t, db.Where("team_id = ?", tm.ID).First(&admin).Error)

	mgr := addMember(t, svc, tm.ID, "owner-1", "mgr", model.RoleManager, &admin.ID)
	addMember(t, svc, tm.ID, "owner-1", "rep-1", model.RoleMember, &mgr.ID)
	addMember(t, svc, tm.ID, "owner-1", "rep-2", model.RoleMember, &mgr.ID)

	// A dangling manager reference must surface as a root, not vanish.
	dangling := addMember(t, svc, tm.ID, "owner-1", "orphan", model.RoleMember, nil)
	require.NoError(t, db.Model(&model.TeamMembership{}).
		Where("id = ?", dangling.ID).
		Update("manager_membership_id", "gone-membership").Error)

	chart, err := svc.Chart(ctx, tm.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, chart.TotalMembers)
	require.Len(t, chart.Roots, 2)

	var adminNode *team.OrgChartNode
	for _, root := range chart.Roots {
		if root.Member.Membership.ID == admin.ID {
			adminNode = root
		}
	}
	require.NotNil(t, adminNode)
	require.Len(t, adminNode.Children, 1)
	assert.Equal(t, mgr.ID, adminNode.Children[0].Member.Membership.ID)
	assert.Len(t, adminNode.Children[0].Children, 2)
}

func TestManagerNote_UpsertAndDelete(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.CallRecording{
		RecordingID: "rec-1",
		UserID:      "rep-1",
		CallName:    "Prospect call",
	}).Error)

	note, err := svc.SaveNote(ctx, "mgr-1", "rec-1", "good discovery questions")
	require.NoError(t, err)
	// The subject is the call owner, not the manager.
	assert.Equal(t, "rep-1", note.UserID)

	updated, err := svc.SaveNote(ctx, "mgr-1", "rec-1", "revised")
	require.NoError(t, err)
	assert.Equal(t, "revised", updated.Note)
	assert.Equal(t, note.ID, updated.ID)

	require.NoError(t, svc.DeleteNote(ctx, "mgr-1", "rec-1"))
	err = svc.DeleteNote(ctx, "mgr-1", "rec-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestSaveNote_UnknownCall(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.SaveNote(context.Background(), "mgr-1", "no-such-call", "text")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestDirectReports_WithRecentCalls(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	tm, err := svc.CreateTeam(ctx, "Sales", "owner-1", false)
	require.NoError(t, err)

	rep := seedUser(t, db, "rep@example.com")
	var adminMembership model.TeamMembership
	require.NoError(t, db.Where("team_id = ?", tm.ID).First(&adminMembership).Error)
	addMember(t, svc, tm.ID, "owner-1", rep.ID, model.RoleMember, &adminMembership.ID)

	for i := 0; i < 7; i++ {
		require.NoError(t, db.Create(&model.CallRecording{
			RecordingID:        fmt.Sprintf("rec-%d", i),
			UserID:             rep.ID,
			CallName:           "Call",
			RecordingStartTime: time.Now().Add(-time.Duration(i) * time.Hour),
		}).Error)
	}

	reports, err := svc.DirectReports(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "rep@example.com", reports[0].Email)
	assert.Len(t, reports[0].RecentCalls, 5)
	assert.Equal(t, "rec-0", reports[0].RecentCalls[0].RecordingID)
}

func TestShares_OwnerAndRecipientViews(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	tm, err := svc.CreateTeam(ctx, "Sales", "owner-1", false)
	require.NoError(t, err)

	share, err := svc.AddShare(ctx, tm.ID, "owner-1", "user-2", model.ShareAll, nil)
	require.NoError(t, err)

	mine, err := svc.Shares(ctx, tm.ID, "owner-1")
	require.NoError(t, err)
	require.Len(t, mine, 1)

	withMe, err := svc.SharesWithMe(ctx, tm.ID, "user-2")
	require.NoError(t, err)
	require.Len(t, withMe, 1)
	assert.Equal(t, share.ID, withMe[0].ID)

	require.NoError(t, svc.RemoveShare(ctx, share.ID, "owner-1"))
	err = svc.RemoveShare(ctx, share.ID, "owner-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestInviteMember_AdminOnly(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	tm, err := svc.CreateTeam(ctx, "Sales", "owner-1", true)
	require.NoError(t, err)
	addMember(t, svc, tm.ID, "owner-1", "user-2", model.RoleMember, nil)

	// A plain member cannot invite.
	_, err = svc.InviteMember(ctx, tm.ID, "x@example.com", "user-2", model.RoleMember, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	// An outsider cannot mint themselves an admin invite into the team.
	_, err = svc.InviteMember(ctx, tm.ID, "intruder@example.com", "intruder", model.RoleAdmin, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestInviteMember_ManagerMustBeSameTeam(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	t1, err := svc.CreateTeam(ctx, "Sales", "owner-1", false)
	require.NoError(t, err)
	t2, err := svc.CreateTeam(ctx, "Support", "owner-2", false)
	require.NoError(t, err)
	foreign := addMember(t, svc, t2.ID, "owner-2", "mgr-b", model.RoleManager, nil)

	_, err = svc.InviteMember(ctx, t1.ID, "new@example.com", "owner-1", model.RoleMember, &foreign.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Contains(t, err.Error(), "same team")

	local := addMember(t, svc, t1.ID, "owner-1", "mgr-a", model.RoleManager, nil)
	_, err = svc.InviteMember(ctx, t1.ID, "new@example.com", "owner-1", model.RoleMember, &local.ID)
	require.NoError(t, err)
}

func TestUpdateTeam_AdminOnly(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	tm, err := svc.CreateTeam(ctx, "Sales", "owner-1", false)
	require.NoError(t, err)
	addMember(t, svc, tm.ID, "owner-1", "user-2", model.RoleMember, nil)

	_, err = svc.UpdateTeam(ctx, tm.ID, "user-2", "Hijacked", true)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	updated, err := svc.UpdateTeam(ctx, tm.ID, "owner-1", "Sales EMEA", true)
	require.NoError(t, err)
	assert.Equal(t, "Sales EMEA", updated.Name)
}

func TestUpdateMember_AdminOnly(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	tm, err := svc.CreateTeam(ctx, "Sales", "owner-1", false)
	require.NoError(t, err)
	m := addMember(t, svc, tm.ID, "owner-1", "user-2", model.RoleMember, nil)

	// Members cannot change roles, not even their own.
	_, err = svc.UpdateMember(ctx, m.ID, "user-2", model.RoleAdmin, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	promoted, err := svc.UpdateMember(ctx, m.ID, "owner-1", model.RoleManager, nil)
	require.NoError(t, err)
	assert.Equal(t, model.RoleManager, promoted.Role)
}

func TestUpdateMember_LastAdminDemotionRejected(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	tm, err := svc.CreateTeam(ctx, "Sales", "owner-1", false)
	require.NoError(t, err)

	var admin model.TeamMembership
	require.NoError(t, db.Where("team_id = ? AND user_id = ?", tm.ID, "owner-1").First(&admin).Error)

	_, err = svc.UpdateMember(ctx, admin.ID, "owner-1", model.RoleMember, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Contains(t, err.Error(), "cannot demote the last admin")

	// With a second admin the demotion goes through.
	addMember(t, svc, tm.ID, "owner-1", "admin-2", model.RoleAdmin, nil)
	demoted, err := svc.UpdateMember(ctx, admin.ID, "owner-1", model.RoleMember, nil)
	require.NoError(t, err)
	assert.Equal(t, model.RoleMember, demoted.Role)
}

func TestRemoveMember_SelfOrAdminOnly(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	tm, err := svc.CreateTeam(ctx, "Sales", "owner-1", false)
	require.NoError(t, err)
	m2 := addMember(t, svc, tm.ID, "owner-1", "user-2", model.RoleMember, nil)
	m3 := addMember(t, svc, tm.ID, "owner-1", "user-3", model.RoleMember, nil)

	// A member cannot remove someone else.
	err = svc.RemoveMember(ctx, m3.ID, "user-2")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	// Leaving the team yourself is fine.
	require.NoError(t, svc.RemoveMember(ctx, m2.ID, "user-2"))
	var got model.TeamMembership
	require.NoError(t, db.First(&got, "id = ?", m2.ID).Error)
	assert.Equal(t, model.MembershipRemoved, got.Status)
}

func TestRemoveShare_OwnerScoped(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	tm, err := svc.CreateTeam(ctx, "Sales", "owner-1", false)
	require.NoError(t, err)
	share, err := svc.AddShare(ctx, tm.ID, "owner-1", "user-2", model.ShareAll, nil)
	require.NoError(t, err)

	// The recipient cannot delete the owner's grant.
	err = svc.RemoveShare(ctx, share.ID, "user-2")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	var count int64
	require.NoError(t, db.Model(&model.TeamShare{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
