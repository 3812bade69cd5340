// Package access decides whether a signed-in user may view a given
// call recording. It unions every grant path: ownership, an active
// coach relationship, the manager chain, admin visibility, and peer
// team shares. Share links are resolved separately because they
// authenticate by token, not by user.
package access

import (
	"context"
	"errors"

	"github.com/callvault/callvault/internal/apperr"
	"github.com/callvault/callvault/internal/calls"
	"github.com/callvault/callvault/internal/model"
	"gorm.io/gorm"
)

// Level names the strongest grant path that admitted the caller.
type Level string

const (
	LevelNone    Level = ""
	LevelOwner   Level = "owner"
	LevelCoach   Level = "coach"
	LevelManager Level = "manager"
	LevelPeer    Level = "peer"
)

// Evaluator answers access questions against the relationship tables.
type Evaluator struct {
	db    *gorm.DB
	calls *calls.Store
}

// NewEvaluator creates an Evaluator backed by the given GORM DB.
func NewEvaluator(db *gorm.DB, callStore *calls.Store) *Evaluator {
	return &Evaluator{db: db, calls: callStore}
}

// CanAccess reports whether callerID may view the call, and through
// which grant path. Paths are checked strongest-first; an unknown call
// denies without error.
func (e *Evaluator) CanAccess(ctx context.Context, callerID, callID string) (Level, bool, error) {
	if callerID == "" || callID == "" {
		return LevelNone, false, apperr.Validation("caller id and call recording id are required")
	}

	call, err := e.calls.Get(ctx, callID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return LevelNone, false, nil
		}
		return LevelNone, false, err
	}

	if call.UserID == callerID {
		return LevelOwner, true, nil
	}

	ok, err := e.coachAccess(ctx, callerID, call)
	if err != nil {
		return LevelNone, false, err
	}
	if ok {
		return LevelCoach, true, nil
	}

	ok, err = e.managerAccess(ctx, callerID, call.UserID)
	if err != nil {
		return LevelNone, false, err
	}
	if ok {
		return LevelManager, true, nil
	}

	ok, err = e.peerAccess(ctx, callerID, call)
	if err != nil {
		return LevelNone, false, err
	}
	if ok {
		return LevelPeer, true, nil
	}

	return LevelNone, false, nil
}

// coachAccess checks for an active relationship where the caller
// coaches the call's owner, with a share covering the call.
func (e *Evaluator) coachAccess(ctx context.Context, callerID string, call *model.CallRecording) (bool, error) {
	var rels []model.CoachRelationship
	err := e.db.WithContext(ctx).
		Where("coach_user_id = ? AND coachee_user_id = ? AND status = ?",
			callerID, call.UserID, model.RelationshipActive).
		Find(&rels).Error
	if err != nil {
		return false, apperr.Store("look up coach relationships", err)
	}

	for _, rel := range rels {
		var shares []model.CoachShare
		err := e.db.WithContext(ctx).
			Where("relationship_id = ?", rel.ID).
			Find(&shares).Error
		if err != nil {
			return false, apperr.Store("look up coach shares", err)
		}
		if shareCovers(shares, call) {
			return true, nil
		}
	}
	return false, nil
}

// managerAccess walks each of the owner's active memberships up its
// manager chain looking for a membership held by the caller. A team
// with AdminSeesAll additionally admits any of its active admins.
func (e *Evaluator) managerAccess(ctx context.Context, callerID, ownerID string) (bool, error) {
	var memberships []model.TeamMembership
	err := e.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", ownerID, model.MembershipActive).
		Find(&memberships).Error
	if err != nil {
		return false, apperr.Store("look up memberships", err)
	}

	for _, m := range memberships {
		ok, err := e.chainContains(ctx, &m, callerID)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}

		ok, err = e.adminSeesAll(ctx, m.TeamID, callerID)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (e *Evaluator) chainContains(ctx context.Context, start *model.TeamMembership, callerID string) (bool, error) {
	seen := map[string]bool{start.ID: true}
	cur := start
	for cur.ManagerMembershipID != nil {
		var next model.TeamMembership
		err := e.db.WithContext(ctx).First(&next, "id = ?", *cur.ManagerMembershipID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return false, nil
			}
			return false, apperr.Store("walk manager chain", err)
		}
		if next.Status != model.MembershipActive || seen[next.ID] {
			return false, nil
		}
		seen[next.ID] = true
		if next.UserID == callerID {
			return true, nil
		}
		cur = &next
	}
	return false, nil
}

func (e *Evaluator) adminSeesAll(ctx context.Context, teamID, callerID string) (bool, error) {
	var team model.Team
	if err := e.db.WithContext(ctx).First(&team, "id = ?", teamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, apperr.Store("look up team", err)
	}
	if !team.AdminSeesAll {
		return false, nil
	}

	var count int64
	err := e.db.WithContext(ctx).Model(&model.TeamMembership{}).
		Where("team_id = ? AND user_id = ? AND role = ? AND status = ?",
			teamID, callerID, model.RoleAdmin, model.MembershipActive).
		Count(&count).Error
	if err != nil {
		return false, apperr.Store("look up admin membership", err)
	}
	return count > 0, nil
}

// peerAccess checks team shares from the owner to the caller.
func (e *Evaluator) peerAccess(ctx context.Context, callerID string, call *model.CallRecording) (bool, error) {
	var shares []model.TeamShare
	err := e.db.WithContext(ctx).
		Where("owner_user_id = ? AND recipient_user_id = ?", call.UserID, callerID).
		Find(&shares).Error
	if err != nil {
		return false, apperr.Store("look up team shares", err)
	}
	for _, s := range shares {
		if s.ShareType == model.ShareAll {
			return true, nil
		}
		if s.ShareType == model.ShareFolder && s.FolderID != nil &&
			call.FolderID != nil && *s.FolderID == *call.FolderID {
			return true, nil
		}
	}
	return false, nil
}

func shareCovers(shares []model.CoachShare, call *model.CallRecording) bool {
	for _, s := range shares {
		if s.ShareType == model.ShareAll {
			return true
		}
		if s.ShareType == model.ShareFolder && s.FolderID != nil &&
			call.FolderID != nil && *s.FolderID == *call.FolderID {
			return true
		}
	}
	return false
}
