package coach_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/callvault/callvault/internal/apperr"
	"github.com/callvault/callvault/internal/calls"
	"github.com/callvault/callvault/internal/coach"
	"github.com/callvault/callvault/internal/config"
	"github.com/callvault/callvault/internal/identity"
	"github.com/callvault/callvault/internal/model"
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

func newService(t *testing.T) (*coach.Service, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	cfg := config.SharingConfig{
		CoachInviteTTL: 30 * 24 * time.Hour,
		BaseURL:        "http://localhost:8080",
	}
	svc := coach.NewService(db, calls.NewStore(db), identity.NewResolver(db), cfg)
	return svc, db
}

func seedUser(t *testing.T, db *gorm.DB, email string) *model.User {
	t.Helper()
	u := &model.User{Email: email}
	require.NoError(t, db.Create(u).Error)
	return u
}

func seedCall(t *testing.T, db *gorm.DB, recordingID, ownerID string, folderID *string) {
	t.Helper()
	require.NoError(t, db.Create(&model.CallRecording{
		RecordingID: recordingID,
		UserID:      ownerID,
		CallName:    "Demo call",
		FolderID:    folderID,
	}).Error)
}

func TestInviteCoach_PlaceholderSlot(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	inv, err := svc.InviteCoach(ctx, "coachee-1", "coach@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, inv.Token)
	assert.Equal(t, "http://localhost:8080/coach-invite/"+inv.Token, inv.InviteURL)

	rel := inv.Relationship
	assert.Equal(t, model.RelationshipPending, rel.Status)
	assert.Equal(t, model.InvitedByCoachee, rel.InvitedBy)
	// The coach slot holds the inviter's id until acceptance.
	assert.Equal(t, "coachee-1", rel.CoachUserID)
	assert.Equal(t, "coachee-1", rel.CoacheeUserID)
	require.NotNil(t, rel.InviteExpiresAt)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), *rel.InviteExpiresAt, time.Minute)
}

func TestAcceptInvite_BindsOppositeSlot(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	inv, err := svc.InviteCoach(ctx, "coachee-1", "")
	require.NoError(t, err)

	rel, err := svc.AcceptInvite(ctx, inv.Token, "coach-1")
	require.NoError(t, err)
	assert.Equal(t, model.RelationshipActive, rel.Status)
	assert.Equal(t, "coach-1", rel.CoachUserID)
	assert.Equal(t, "coachee-1", rel.CoacheeUserID)
	assert.NotNil(t, rel.AcceptedAt)
	assert.Nil(t, rel.InviteToken)

	// A spent token cannot be accepted again.
	_, err = svc.AcceptInvite(ctx, inv.Token, "coach-2")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestAcceptInvite_CoachInvitesCoachee(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	inv, err := svc.InviteCoachee(ctx, "coach-1")
	require.NoError(t, err)
	assert.Equal(t, model.InvitedByCoach, inv.Relationship.InvitedBy)

	rel, err := svc.AcceptInvite(ctx, inv.Token, "coachee-1")
	require.NoError(t, err)
	assert.Equal(t, "coach-1", rel.CoachUserID)
	assert.Equal(t, "coachee-1", rel.CoacheeUserID)
}

func TestAcceptInvite_Expired(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	inv, err := svc.InviteCoach(ctx, "coachee-1", "")
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&model.CoachRelationship{}).
		Where("id = ?", inv.Relationship.ID).
		Update("invite_expires_at", past).Error)

	_, err = svc.AcceptInvite(ctx, inv.Token, "coach-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindExpired))

	// The row must still be pending after a failed accept.
	var rel model.CoachRelationship
	require.NoError(t, db.First(&rel, "id = ?", inv.Relationship.ID).Error)
	assert.Equal(t, model.RelationshipPending, rel.Status)
}

func TestAcceptInvite_UnknownToken(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.AcceptInvite(context.Background(), "bogus-token", "user-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestEndRelationship_Idempotent(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	inv, err := svc.InviteCoach(ctx, "coachee-1", "")
	require.NoError(t, err)
	rel, err := svc.AcceptInvite(ctx, inv.Token, "coach-1")
	require.NoError(t, err)

	require.NoError(t, svc.EndRelationship(ctx, rel.ID, "coachee-1"))
	require.NoError(t, svc.EndRelationship(ctx, rel.ID, "coachee-1"))

	var got model.CoachRelationship
	require.NoError(t, db.First(&got, "id = ?", rel.ID).Error)
	assert.Equal(t, model.RelationshipEnded, got.Status)
	assert.NotNil(t, got.EndedAt)
}

func TestRelationships_Decoration(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	coachUser := seedUser(t, db, "coach@example.com")
	coacheeUser := seedUser(t, db, "coachee@example.com")

	inv, err := svc.InviteCoach(ctx, coacheeUser.ID, "")
	require.NoError(t, err)
	_, err = svc.AcceptInvite(ctx, inv.Token, coachUser.ID)
	require.NoError(t, err)

	asCoach, err := svc.AsCoach(ctx, coachUser.ID)
	require.NoError(t, err)
	require.Len(t, asCoach, 1)
	assert.Equal(t, "coach@example.com", asCoach[0].CoachEmail)
	assert.Equal(t, "coachee@example.com", asCoach[0].CoacheeEmail)

	asCoachee, err := svc.AsCoachee(ctx, coacheeUser.ID)
	require.NoError(t, err)
	require.Len(t, asCoachee, 1)

	none, err := svc.AsCoach(ctx, coacheeUser.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAddShare_FolderValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	inv, err := svc.InviteCoach(ctx, "coachee-1", "")
	require.NoError(t, err)
	rel, err := svc.AcceptInvite(ctx, inv.Token, "coach-1")
	require.NoError(t, err)

	_, err = svc.AddShare(ctx, rel.ID, "coachee-1", model.ShareFolder, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	folder := "folder-1"
	_, err = svc.AddShare(ctx, rel.ID, "coachee-1", model.ShareAll, &folder)
	require.Error(t, err)

	share, err := svc.AddShare(ctx, rel.ID, "coachee-1", model.ShareFolder, &folder)
	require.NoError(t, err)
	assert.Equal(t, model.ShareFolder, share.ShareType)

	_, err = svc.AddShare(ctx, "no-such-rel", "coachee-1", model.ShareAll, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestConfigureShares_ReplacesSet(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	inv, err := svc.InviteCoach(ctx, "coachee-1", "")
	require.NoError(t, err)
	rel, err := svc.AcceptInvite(ctx, inv.Token, "coach-1")
	require.NoError(t, err)

	_, err = svc.AddShare(ctx, rel.ID, "coachee-1", model.ShareAll, nil)
	require.NoError(t, err)

	folder := "folder-1"
	created, err := svc.ConfigureShares(ctx, rel.ID, "coachee-1", []coach.ShareSpec{
		{ShareType: model.ShareFolder, FolderID: &folder},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)

	shares, err := svc.Shares(ctx, rel.ID)
	require.NoError(t, err)
	require.Len(t, shares, 1)
	assert.Equal(t, model.ShareFolder, shares[0].ShareType)
}

func TestSaveNote_UpsertAndSubject(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	inv, err := svc.InviteCoach(ctx, "coachee-1", "")
	require.NoError(t, err)
	rel, err := svc.AcceptInvite(ctx, inv.Token, "coach-1")
	require.NoError(t, err)
	seedCall(t, db, "rec-1", "coachee-1", nil)

	note, err := svc.SaveNote(ctx, rel.ID, "rec-1", "coach-1", "first draft")
	require.NoError(t, err)
	assert.Equal(t, "first draft", note.Note)
	// The subject is the coachee, taken from the relationship.
	assert.Equal(t, "coachee-1", note.UserID)

	updated, err := svc.SaveNote(ctx, rel.ID, "rec-1", "coach-1", "second draft")
	require.NoError(t, err)
	assert.Equal(t, "second draft", updated.Note)
	assert.Equal(t, note.ID, updated.ID)

	var count int64
	require.NoError(t, db.Model(&model.CoachNote{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSaveNote_RejectsInactiveRelationship(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	inv, err := svc.InviteCoach(ctx, "coachee-1", "")
	require.NoError(t, err)
	rel, err := svc.AcceptInvite(ctx, inv.Token, "coach-1")
	require.NoError(t, err)
	require.NoError(t, svc.EndRelationship(ctx, rel.ID, "coachee-1"))

	_, err = svc.SaveNote(ctx, rel.ID, "rec-1", "coach-1", "too late")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestDeleteNote_AbsentFails(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	inv, err := svc.InviteCoach(ctx, "coachee-1", "")
	require.NoError(t, err)
	rel, err := svc.AcceptInvite(ctx, inv.Token, "coach-1")
	require.NoError(t, err)

	err = svc.DeleteNote(ctx, rel.ID, "rec-1", "coach-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.Contains(t, err.Error(), "no note to delete")
}

func TestShareConfiguration_CoacheeOnly(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	inv, err := svc.InviteCoach(ctx, "coachee-1", "")
	require.NoError(t, err)
	rel, err := svc.AcceptInvite(ctx, inv.Token, "coach-1")
	require.NoError(t, err)

	// Neither the coach nor a stranger may grant shares on the
	// coachee's recordings.
	_, err = svc.AddShare(ctx, rel.ID, "coach-1", model.ShareAll, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Contains(t, err.Error(), "only the coachee")

	_, err = svc.ConfigureShares(ctx, rel.ID, "coach-1", []coach.ShareSpec{
		{ShareType: model.ShareAll},
	})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	var count int64
	require.NoError(t, db.Model(&model.CoachShare{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)

	share, err := svc.AddShare(ctx, rel.ID, "coachee-1", model.ShareAll, nil)
	require.NoError(t, err)

	err = svc.RemoveShare(ctx, share.ID, "coach-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	require.NoError(t, svc.RemoveShare(ctx, share.ID, "coachee-1"))
}

func TestAddShare_EndedRelationshipRejected(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	inv, err := svc.InviteCoach(ctx, "coachee-1", "")
	require.NoError(t, err)
	rel, err := svc.AcceptInvite(ctx, inv.Token, "coach-1")
	require.NoError(t, err)
	require.NoError(t, svc.EndRelationship(ctx, rel.ID, "coachee-1"))

	_, err = svc.AddShare(ctx, rel.ID, "coachee-1", model.ShareAll, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Contains(t, err.Error(), "not active")
}

func TestSaveNote_CoachOnly(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	inv, err := svc.InviteCoach(ctx, "coachee-1", "")
	require.NoError(t, err)
	rel, err := svc.AcceptInvite(ctx, inv.Token, "coach-1")
	require.NoError(t, err)
	seedCall(t, db, "rec-1", "coachee-1", nil)

	_, err = svc.SaveNote(ctx, rel.ID, "rec-1", "coachee-1", "not mine to write")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Contains(t, err.Error(), "only the coach")

	note, err := svc.SaveNote(ctx, rel.ID, "rec-1", "coach-1", "keep this")
	require.NoError(t, err)

	err = svc.DeleteNote(ctx, rel.ID, "rec-1", "coachee-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	got, err := svc.Note(ctx, rel.ID, "rec-1", "coachee-1")
	require.NoError(t, err)
	assert.Equal(t, note.ID, got.ID)
}

func TestRelationship_StrangerSeesNotFound(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	inv, err := svc.InviteCoach(ctx, "coachee-1", "")
	require.NoError(t, err)
	rel, err := svc.AcceptInvite(ctx, inv.Token, "coach-1")
	require.NoError(t, err)
	seedCall(t, db, "rec-1", "coachee-1", nil)
	_, err = svc.SaveNote(ctx, rel.ID, "rec-1", "coach-1", "private")
	require.NoError(t, err)

	err = svc.EndRelationship(ctx, rel.ID, "stranger-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, err = svc.Note(ctx, rel.ID, "rec-1", "stranger-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	// The relationship must survive the stranger's attempt.
	var got model.CoachRelationship
	require.NoError(t, db.First(&got, "id = ?", rel.ID).Error)
	assert.Equal(t, model.RelationshipActive, got.Status)
}

func TestSharedCalls_ShareScopes(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	inv, err := svc.InviteCoach(ctx, "coachee-1", "")
	require.NoError(t, err)
	rel, err := svc.AcceptInvite(ctx, inv.Token, "coach-1")
	require.NoError(t, err)

	folderA := "folder-a"
	seedCall(t, db, "rec-1", "coachee-1", &folderA)
	seedCall(t, db, "rec-2", "coachee-1", nil)

	// No shares yet: nothing visible.
	recs, err := svc.SharedCalls(ctx, "coach-1", "coachee-1")
	require.NoError(t, err)
	assert.Empty(t, recs)

	// Folder share exposes only the folder's calls.
	_, err = svc.AddShare(ctx, rel.ID, "coachee-1", model.ShareFolder, &folderA)
	require.NoError(t, err)
	recs, err = svc.SharedCalls(ctx, "coach-1", "coachee-1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "rec-1", recs[0].RecordingID)

	// An all share exposes everything, without duplicates.
	_, err = svc.AddShare(ctx, rel.ID, "coachee-1", model.ShareAll, nil)
	require.NoError(t, err)
	recs, err = svc.SharedCalls(ctx, "coach-1", "coachee-1")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestSharedCalls_NoActiveRelationship(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.SharedCalls(context.Background(), "coach-1", "coachee-1")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestCoachees_CallCounts(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	coachee := seedUser(t, db, "coachee@example.com")
	inv, err := svc.InviteCoachee(ctx, "coach-1")
	require.NoError(t, err)
	_, err = svc.AcceptInvite(ctx, inv.Token, coachee.ID)
	require.NoError(t, err)

	seedCall(t, db, "rec-1", coachee.ID, nil)
	seedCall(t, db, "rec-2", coachee.ID, nil)

	coachees, err := svc.Coachees(ctx, "coach-1")
	require.NoError(t, err)
	require.Len(t, coachees, 1)
	assert.Equal(t, "coachee@example.com", coachees[0].CoacheeEmail)
	assert.Equal(t, 2, coachees[0].CallCount)
}
