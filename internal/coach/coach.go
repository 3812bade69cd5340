// Package coach manages coach/coachee relationships: invites, share
// scopes, and per-call coaching notes.
package coach

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

// Service implements coach relationship management.
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

// Invite is the result of creating a pending relationship.
type Invite struct {
	Relationship *model.CoachRelationship
	Token        string
	InviteURL    string
	// Email the invite is addressed to; delivery is out of band.
	RecipientEmail string
}

// RelationshipView decorates a relationship with both parties' emails.
// A pending placeholder slot resolves to the inviter's own email.
type RelationshipView struct {
	Relationship model.CoachRelationship
	CoachEmail   string
	CoacheeEmail string
}

// CoacheeSummary is one active coachee with their call count.
type CoacheeSummary struct {
	Relationship model.CoachRelationship
	CoacheeEmail string
	CallCount    int
}

// ShareSpec describes one share grant for ConfigureShares.
type ShareSpec struct {
	ShareType model.ShareType
	FolderID  *string
}

// InviteCoach creates a pending relationship where the caller is the
// coachee inviting a coach. The coach slot holds the caller's own id
// until the invite is accepted.
func (s *Service) InviteCoach(ctx context.Context, coacheeID, coachEmail string) (*Invite, error) {
	if coacheeID == "" {
		return nil, apperr.Validation("caller id is required")
	}
	return s.createInvite(ctx, &model.CoachRelationship{
		CoachUserID:   coacheeID, // placeholder until acceptance
		CoacheeUserID: coacheeID,
		InvitedBy:     model.InvitedByCoachee,
	}, coachEmail)
}

// InviteCoachee creates a pending relationship where the caller is the
// coach inviting a coachee.
func (s *Service) InviteCoachee(ctx context.Context, coachID string) (*Invite, error) {
	if coachID == "" {
		return nil, apperr.Validation("caller id is required")
	}
	return s.createInvite(ctx, &model.CoachRelationship{
		CoachUserID:   coachID,
		CoacheeUserID: coachID, // placeholder until acceptance
		InvitedBy:     model.InvitedByCoach,
	}, "")
}

func (s *Service) createInvite(ctx context.Context, rel *model.CoachRelationship, email string) (*Invite, error) {
	tok, err := token.New()
	if err != nil {
		return nil, apperr.Store("generate invite token", err)
	}
	expires := token.ExpiresAt(s.cfg.CoachInviteTTL)

	rel.Status = model.RelationshipPending
	rel.InviteToken = &tok
	rel.InviteExpiresAt = &expires

	if err := s.db.WithContext(ctx).Create(rel).Error; err != nil {
		return nil, apperr.Store("create coach invite", err)
	}
	return &Invite{
		Relationship:   rel,
		Token:          tok,
		InviteURL:      s.cfg.BaseURL + "/coach-invite/" + tok,
		RecipientEmail: strings.ToLower(strings.TrimSpace(email)),
	}, nil
}

// AcceptInvite binds userID into the open slot of a pending invite.
// Exactly one concurrent accept can win; the losers observe the
// conditional update touch zero rows and report an invalid invite.
func (s *Service) AcceptInvite(ctx context.Context, inviteToken, userID string) (*model.CoachRelationship, error) {
	if inviteToken == "" || userID == "" {
		return nil, apperr.Validation("invite token and user id are required")
	}

	var rel model.CoachRelationship
	err := s.db.WithContext(ctx).
		Where("invite_token = ? AND status = ?", inviteToken, model.RelationshipPending).
		First(&rel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("invalid invite")
		}
		return nil, apperr.Store("look up invite", err)
	}

	if token.IsExpired(rel.InviteExpiresAt) {
		// The row stays pending; the scrub job reclaims the token later.
		return nil, apperr.Expired("invite has expired")
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"status":            model.RelationshipActive,
		"accepted_at":       now,
		"invite_token":      nil,
		"invite_expires_at": nil,
	}
	// Bind the acceptor into the slot opposite the inviter.
	if rel.InvitedBy == model.InvitedByCoachee {
		updates["coach_user_id"] = userID
	} else {
		updates["coachee_user_id"] = userID
	}

	res := s.db.WithContext(ctx).Model(&model.CoachRelationship{}).
		Where("id = ? AND status = ?", rel.ID, model.RelationshipPending).
		Updates(updates)
	if res.Error != nil {
		return nil, apperr.Store("accept invite", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("invalid invite")
	}

	var accepted model.CoachRelationship
	if err := s.db.WithContext(ctx).First(&accepted, "id = ?", rel.ID).Error; err != nil {
		return nil, apperr.Store("reload relationship", err)
	}
	return &accepted, nil
}

// EndRelationship marks the relationship ended. Either party may end
// it; anyone else sees the relationship as not found. Shares and notes
// are kept but stop granting anything. Ending twice is a no-op.
func (s *Service) EndRelationship(ctx context.Context, relationshipID, callerID string) error {
	if relationshipID == "" || callerID == "" {
		return apperr.Validation("relationship id and caller id are required")
	}
	rel, err := s.relationship(ctx, relationshipID)
	if err != nil {
		return err
	}
	if rel.CoachUserID != callerID && rel.CoacheeUserID != callerID {
		return apperr.NotFound("relationship not found")
	}
	if rel.Status == model.RelationshipEnded {
		return nil
	}
	now := time.Now().UTC()
	err = s.db.WithContext(ctx).Model(rel).
		Updates(map[string]any{"status": model.RelationshipEnded, "ended_at": now}).Error
	if err != nil {
		return apperr.Store("end relationship", err)
	}
	return nil
}

// Relationships lists every relationship the user is party to, on
// either side, decorated with both emails.
func (s *Service) Relationships(ctx context.Context, userID string) ([]RelationshipView, error) {
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}
	var rels []model.CoachRelationship
	err := s.db.WithContext(ctx).
		Where("coach_user_id = ? OR coachee_user_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&rels).Error
	if err != nil {
		return nil, apperr.Store("list relationships", err)
	}
	return s.decorate(ctx, rels)
}

// AsCoach returns the subset of Relationships where the user coaches.
func (s *Service) AsCoach(ctx context.Context, userID string) ([]RelationshipView, error) {
	all, err := s.Relationships(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]RelationshipView, 0, len(all))
	for _, v := range all {
		if v.Relationship.CoachUserID == userID {
			out = append(out, v)
		}
	}
	return out, nil
}

// AsCoachee returns the subset of Relationships where the user is coached.
func (s *Service) AsCoachee(ctx context.Context, userID string) ([]RelationshipView, error) {
	all, err := s.Relationships(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]RelationshipView, 0, len(all))
	for _, v := range all {
		if v.Relationship.CoacheeUserID == userID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Service) decorate(ctx context.Context, rels []model.CoachRelationship) ([]RelationshipView, error) {
	ids := make([]string, 0, len(rels)*2)
	for _, r := range rels {
		ids = append(ids, r.CoachUserID, r.CoacheeUserID)
	}
	emails, err := s.ids.Emails(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]RelationshipView, 0, len(rels))
	for _, r := range rels {
		out = append(out, RelationshipView{
			Relationship: r,
			CoachEmail:   emails[r.CoachUserID],
			CoacheeEmail: emails[r.CoacheeUserID],
		})
	}
	return out, nil
}

// Shares lists the share grants for one relationship.
func (s *Service) Shares(ctx context.Context, relationshipID string) ([]model.CoachShare, error) {
	if relationshipID == "" {
		return nil, apperr.Validation("relationship id is required")
	}
	var shares []model.CoachShare
	err := s.db.WithContext(ctx).
		Where("relationship_id = ?", relationshipID).
		Order("created_at ASC").
		Find(&shares).Error
	if err != nil {
		return nil, apperr.Store("list coach shares", err)
	}
	return shares, nil
}

// AddShare grants the coach visibility into everything or one folder.
// The grant is the coachee's to give, and only on an active relationship.
func (s *Service) AddShare(ctx context.Context, relationshipID, callerID string, shareType model.ShareType, folderID *string) (*model.CoachShare, error) {
	if _, err := s.coacheeRelationship(ctx, relationshipID, callerID); err != nil {
		return nil, err
	}
	if err := validateShareScope(shareType, folderID); err != nil {
		return nil, err
	}
	share := &model.CoachShare{
		RelationshipID: relationshipID,
		ShareType:      shareType,
		FolderID:       folderID,
	}
	if err := s.db.WithContext(ctx).Create(share).Error; err != nil {
		return nil, apperr.Store("create coach share", err)
	}
	return share, nil
}

// RemoveShare deletes one share grant. Only the coachee of the share's
// relationship may remove it.
func (s *Service) RemoveShare(ctx context.Context, shareID, callerID string) error {
	if shareID == "" || callerID == "" {
		return apperr.Validation("share id and caller id are required")
	}
	var share model.CoachShare
	err := s.db.WithContext(ctx).First(&share, "id = ?", shareID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("share not found")
		}
		return apperr.Store("look up coach share", err)
	}
	rel, err := s.relationship(ctx, share.RelationshipID)
	if err != nil {
		return err
	}
	if rel.CoacheeUserID != callerID {
		return apperr.Conflict("only the coachee can configure shares")
	}

	res := s.db.WithContext(ctx).Where("id = ?", shareID).Delete(&model.CoachShare{})
	if res.Error != nil {
		return apperr.Store("delete coach share", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("share not found")
	}
	return nil
}

// ConfigureShares replaces the relationship's whole share set in one
// transaction. Coachee only, and only while the relationship is active.
func (s *Service) ConfigureShares(ctx context.Context, relationshipID, callerID string, specs []ShareSpec) ([]model.CoachShare, error) {
	if _, err := s.coacheeRelationship(ctx, relationshipID, callerID); err != nil {
		return nil, err
	}
	for _, spec := range specs {
		if err := validateShareScope(spec.ShareType, spec.FolderID); err != nil {
			return nil, err
		}
	}

	var created []model.CoachShare
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("relationship_id = ?", relationshipID).Delete(&model.CoachShare{}).Error; err != nil {
			return err
		}
		for _, spec := range specs {
			share := model.CoachShare{
				RelationshipID: relationshipID,
				ShareType:      spec.ShareType,
				FolderID:       spec.FolderID,
			}
			if err := tx.Create(&share).Error; err != nil {
				return err
			}
			created = append(created, share)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Store("configure coach shares", err)
	}
	return created, nil
}

// Note returns the note for (relationship, call), if any. Readable by
// both parties of the relationship.
func (s *Service) Note(ctx context.Context, relationshipID, callID, callerID string) (*model.CoachNote, error) {
	if relationshipID == "" || callID == "" || callerID == "" {
		return nil, apperr.Validation("relationship id, call recording id, and caller id are required")
	}
	rel, err := s.relationship(ctx, relationshipID)
	if err != nil {
		return nil, err
	}
	if rel.CoachUserID != callerID && rel.CoacheeUserID != callerID {
		return nil, apperr.NotFound("relationship not found")
	}
	var note model.CoachNote
	err = s.db.WithContext(ctx).
		Where("relationship_id = ? AND call_recording_id = ?", relationshipID, callID).
		First(&note).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("note not found")
		}
		return nil, apperr.Store("look up coach note", err)
	}
	return &note, nil
}

// SaveNote upserts the coach's note on one call. Only the relationship's
// coach may write, and only while the relationship is active; the note's
// subject is the coachee, re-read from the relationship rather than
// trusted from the caller.
func (s *Service) SaveNote(ctx context.Context, relationshipID, callID, callerID, text string) (*model.CoachNote, error) {
	if relationshipID == "" || callID == "" || callerID == "" {
		return nil, apperr.Validation("relationship id, call recording id, and caller id are required")
	}
	rel, err := s.relationship(ctx, relationshipID)
	if err != nil {
		return nil, err
	}
	if rel.CoachUserID != callerID {
		return nil, apperr.Conflict("only the coach can write notes")
	}
	if rel.Status != model.RelationshipActive {
		return nil, apperr.Conflict("relationship is not active")
	}

	note := &model.CoachNote{
		RelationshipID:  relationshipID,
		CallRecordingID: callID,
		UserID:          rel.CoacheeUserID,
		Note:            text,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "relationship_id"}, {Name: "call_recording_id"}},
		DoUpdates: clause.Assignments(map[string]any{"note": text, "updated_at": time.Now().UTC()}),
	}).Create(note).Error
	if err != nil {
		return nil, apperr.Store("save coach note", err)
	}
	return s.Note(ctx, relationshipID, callID, callerID)
}

// DeleteNote removes the note for (relationship, call). Coach only.
func (s *Service) DeleteNote(ctx context.Context, relationshipID, callID, callerID string) error {
	if relationshipID == "" || callID == "" || callerID == "" {
		return apperr.Validation("relationship id, call recording id, and caller id are required")
	}
	rel, err := s.relationship(ctx, relationshipID)
	if err != nil {
		return err
	}
	if rel.CoachUserID != callerID {
		return apperr.Conflict("only the coach can write notes")
	}
	res := s.db.WithContext(ctx).
		Where("relationship_id = ? AND call_recording_id = ?", relationshipID, callID).
		Delete(&model.CoachNote{})
	if res.Error != nil {
		return apperr.Store("delete coach note", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("no note to delete")
	}
	return nil
}

// Coachees lists the coach's active coachees with their call counts.
func (s *Service) Coachees(ctx context.Context, coachID string) ([]CoacheeSummary, error) {
	if coachID == "" {
		return nil, apperr.Validation("coach id is required")
	}
	var rels []model.CoachRelationship
	err := s.db.WithContext(ctx).
		Where("coach_user_id = ? AND status = ?", coachID, model.RelationshipActive).
		Find(&rels).Error
	if err != nil {
		return nil, apperr.Store("list coachees", err)
	}

	ids := make([]string, 0, len(rels))
	for _, r := range rels {
		ids = append(ids, r.CoacheeUserID)
	}
	emails, err := s.ids.Emails(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]CoacheeSummary, 0, len(rels))
	for _, r := range rels {
		var count int64
		err := s.db.WithContext(ctx).Model(&model.CallRecording{}).
			Where("user_id = ?", r.CoacheeUserID).
			Count(&count).Error
		if err != nil {
			return nil, apperr.Store("count coachee calls", err)
		}
		out = append(out, CoacheeSummary{
			Relationship: r,
			CoacheeEmail: emails[r.CoacheeUserID],
			CallCount:    int(count),
		})
	}
	return out, nil
}

// SharedCalls lists the coachee's calls visible to the coach through
// the relationship's share grants.
func (s *Service) SharedCalls(ctx context.Context, coachID, coacheeID string) ([]model.CallRecording, error) {
	if coachID == "" || coacheeID == "" {
		return nil, apperr.Validation("coach id and coachee id are required")
	}

	var rel model.CoachRelationship
	err := s.db.WithContext(ctx).
		Where("coach_user_id = ? AND coachee_user_id = ? AND status = ?",
			coachID, coacheeID, model.RelationshipActive).
		First(&rel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("no active relationship")
		}
		return nil, apperr.Store("look up relationship", err)
	}

	shares, err := s.Shares(ctx, rel.ID)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var out []model.CallRecording
	for _, share := range shares {
		var recs []model.CallRecording
		switch share.ShareType {
		case model.ShareAll:
			recs, err = s.calls.ForOwner(ctx, coacheeID)
		case model.ShareFolder:
			if share.FolderID == nil {
				continue
			}
			recs, err = s.calls.ForOwnerInFolder(ctx, coacheeID, *share.FolderID)
		}
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			if !seen[rec.RecordingID] {
				seen[rec.RecordingID] = true
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

// coacheeRelationship loads the relationship and conflicts unless
// callerID is its coachee and the relationship is active. Share grants
// are the coachee's to give.
func (s *Service) coacheeRelationship(ctx context.Context, relationshipID, callerID string) (*model.CoachRelationship, error) {
	if callerID == "" {
		return nil, apperr.Validation("caller id is required")
	}
	rel, err := s.relationship(ctx, relationshipID)
	if err != nil {
		return nil, err
	}
	if rel.CoacheeUserID != callerID {
		return nil, apperr.Conflict("only the coachee can configure shares")
	}
	if rel.Status != model.RelationshipActive {
		return nil, apperr.Conflict("relationship is not active")
	}
	return rel, nil
}

func (s *Service) relationship(ctx context.Context, id string) (*model.CoachRelationship, error) {
	var rel model.CoachRelationship
	if err := s.db.WithContext(ctx).First(&rel, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("relationship not found")
		}
		return nil, apperr.Store("look up relationship", err)
	}
	return &rel, nil
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
