// Package sharelink manages tokenized public share links for call
// recordings: creation, revocation, resolution, and the access log.
package sharelink

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/callvault/callvault/internal/apperr"
	"github.com/callvault/callvault/internal/calls"
	"github.com/callvault/callvault/internal/identity"
	"github.com/callvault/callvault/internal/model"
	"github.com/callvault/callvault/internal/token"
	"gorm.io/gorm"
)

// Store manages share links and their access log.
type Store struct {
	db     *gorm.DB
	calls  *calls.Store
	ids    *identity.Resolver
	logger *slog.Logger
}

// NewStore creates a Store backed by the given GORM DB.
func NewStore(db *gorm.DB, callStore *calls.Store, ids *identity.Resolver, logger *slog.Logger) *Store {
	return &Store{db: db, calls: callStore, ids: ids, logger: logger}
}

// Resolution is the outcome of resolving a share token.
// Call is loaded only when the link is valid.
type Resolution struct {
	Link      *model.ShareLink
	Call      *model.CallRecording
	IsValid   bool
	IsRevoked bool
}

// AccessEntry is one access-log row decorated with the viewer's email.
// ViewerEmail is empty for anonymous views.
type AccessEntry struct {
	Entry       model.ShareAccessLog
	ViewerEmail string
}

// LinkStatus summarises a call's share-link state for its owner.
type LinkStatus struct {
	HasShareLinks  bool
	ShareLinkCount int
}

// Create mints a new active share link for the given call.
// recipientEmail is optional and recorded for display only.
func (s *Store) Create(ctx context.Context, callID, ownerID, recipientEmail string) (*model.ShareLink, error) {
	if callID == "" {
		return nil, apperr.Validation("call recording id is required")
	}
	if ownerID == "" {
		return nil, apperr.Validation("owner id required")
	}

	tok, err := token.New()
	if err != nil {
		return nil, apperr.Store("generate share token", err)
	}

	link := &model.ShareLink{
		CallRecordingID: callID,
		OwnerUserID:     ownerID,
		CreatedByUserID: ownerID,
		ShareToken:      tok,
		Status:          model.ShareLinkActive,
	}
	if email := strings.TrimSpace(recipientEmail); email != "" {
		link.RecipientEmail = &email
	}
	if err := s.db.WithContext(ctx).Create(link).Error; err != nil {
		return nil, apperr.Store("create share link", err)
	}
	return link, nil
}

// Revoke marks the link revoked. Scoped to the link's owner: someone
// else's link id behaves as if it does not exist. Revoking an already
// revoked link is a no-op that succeeds; the end state is the same.
func (s *Store) Revoke(ctx context.Context, linkID, ownerID string) error {
	if linkID == "" || ownerID == "" {
		return apperr.Validation("share link id and owner id are required")
	}
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&model.ShareLink{}).
		Where("id = ? AND owner_user_id = ?", linkID, ownerID).
		Updates(map[string]any{"status": model.ShareLinkRevoked, "revoked_at": now})
	if res.Error != nil {
		return apperr.Store("revoke share link", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("share link not found")
	}
	return nil
}

// Resolve looks up a share token and, when the link is live, loads the
// call it points at. The call lookup is scoped by the link's owner id
// so a link never leaks a recording that changed hands.
func (s *Store) Resolve(ctx context.Context, shareToken string) (*Resolution, error) {
	if shareToken == "" {
		return &Resolution{}, nil
	}

	var link model.ShareLink
	err := s.db.WithContext(ctx).Where("share_token = ?", shareToken).First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Resolution{}, nil
		}
		return nil, apperr.Store("look up share link", err)
	}

	if link.Status == model.ShareLinkRevoked {
		return &Resolution{Link: &link, IsRevoked: true}, nil
	}

	call, err := s.calls.OwnedBy(ctx, link.CallRecordingID, link.OwnerUserID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			// Link outlived its recording.
			return &Resolution{Link: &link}, nil
		}
		return nil, err
	}

	return &Resolution{Link: &link, Call: call, IsValid: true}, nil
}

// LogAccess appends a view to the access log. Best effort: a failed
// write is logged and swallowed so it never blocks the viewer.
func (s *Store) LogAccess(ctx context.Context, linkID, viewerID string) error {
	entry := &model.ShareAccessLog{
		ShareLinkID: linkID,
		AccessedAt:  time.Now().UTC(),
	}
	if viewerID != "" {
		entry.AccessedByUserID = &viewerID
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		s.logger.Warn("share access log write failed", "share_link_id", linkID, "err", err)
	}
	return nil
}

// AccessLog returns the link's access log newest-first, with viewer
// emails resolved where the viewer was signed in. Owner only: the log
// exposes viewer emails, so someone else's link id reads as not found.
func (s *Store) AccessLog(ctx context.Context, linkID, ownerID string) ([]AccessEntry, error) {
	if linkID == "" || ownerID == "" {
		return nil, apperr.Validation("share link id and owner id are required")
	}
	var link model.ShareLink
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_user_id = ?", linkID, ownerID).
		First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("share link not found")
		}
		return nil, apperr.Store("look up share link", err)
	}

	var rows []model.ShareAccessLog
	err = s.db.WithContext(ctx).
		Where("share_link_id = ?", linkID).
		Order("accessed_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Store("list share access log", err)
	}

	var viewerIDs []string
	for _, row := range rows {
		if row.AccessedByUserID != nil {
			viewerIDs = append(viewerIDs, *row.AccessedByUserID)
		}
	}
	emails, err := s.ids.Emails(ctx, viewerIDs)
	if err != nil {
		return nil, err
	}

	out := make([]AccessEntry, 0, len(rows))
	for _, row := range rows {
		entry := AccessEntry{Entry: row}
		if row.AccessedByUserID != nil {
			entry.ViewerEmail = emails[*row.AccessedByUserID]
		}
		out = append(out, entry)
	}
	return out, nil
}

// LinksForCall lists every link ever minted for the call, newest first,
// including revoked ones.
func (s *Store) LinksForCall(ctx context.Context, callID, ownerID string) ([]model.ShareLink, error) {
	if callID == "" || ownerID == "" {
		return nil, apperr.Validation("call recording id and owner id are required")
	}
	var links []model.ShareLink
	err := s.db.WithContext(ctx).
		Where("call_recording_id = ? AND owner_user_id = ?", callID, ownerID).
		Order("created_at DESC").
		Find(&links).Error
	if err != nil {
		return nil, apperr.Store("list share links", err)
	}
	return links, nil
}

// Status reports whether the call currently has live share links.
// Revoked links do not count.
func (s *Store) Status(ctx context.Context, callID, ownerID string) (*LinkStatus, error) {
	if callID == "" || ownerID == "" {
		return nil, apperr.Validation("call recording id and owner id are required")
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&model.ShareLink{}).
		Where("call_recording_id = ? AND owner_user_id = ? AND status = ?",
			callID, ownerID, model.ShareLinkActive).
		Count(&count).Error
	if err != nil {
		return nil, apperr.Store("count share links", err)
	}
	return &LinkStatus{HasShareLinks: count > 0, ShareLinkCount: int(count)}, nil
}
