// Package calls is the read-only store for call recording metadata.
// Every lookup that feeds a sharing decision is scoped by owner id as
// well as recording id, so a recording id alone never grants anything.
package calls

import (
	"context"
	"errors"

	"github.com/callvault/callvault/internal/apperr"
	"github.com/callvault/callvault/internal/model"
	"gorm.io/gorm"
)

// Store reads call recordings. The sharing core never writes this table.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store backed by the given GORM DB.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// OwnedBy returns the recording only when ownerID owns it. A recording
// that exists under a different owner is reported as not found.
func (s *Store) OwnedBy(ctx context.Context, recordingID, ownerID string) (*model.CallRecording, error) {
	if recordingID == "" || ownerID == "" {
		return nil, apperr.Validation("recording id and owner id are required")
	}
	var rec model.CallRecording
	err := s.db.WithContext(ctx).Where("recording_id = ? AND user_id = ?", recordingID, ownerID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("call recording not found")
		}
		return nil, apperr.Store("look up call recording", err)
	}
	return &rec, nil
}

// Get returns the recording by id regardless of owner. Used only after
// an access decision has already been made.
func (s *Store) Get(ctx context.Context, recordingID string) (*model.CallRecording, error) {
	if recordingID == "" {
		return nil, apperr.Validation("recording id is required")
	}
	var rec model.CallRecording
	if err := s.db.WithContext(ctx).Where("recording_id = ?", recordingID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("call recording not found")
		}
		return nil, apperr.Store("look up call recording", err)
	}
	return &rec, nil
}

// ForOwner lists recordings owned by ownerID, newest first.
func (s *Store) ForOwner(ctx context.Context, ownerID string) ([]model.CallRecording, error) {
	if ownerID == "" {
		return nil, apperr.Validation("owner id is required")
	}
	var recs []model.CallRecording
	err := s.db.WithContext(ctx).Where("user_id = ?", ownerID).
		Order("recording_start_time DESC").
		Find(&recs).Error
	if err != nil {
		return nil, apperr.Store("list call recordings", err)
	}
	return recs, nil
}

// ForOwnerInFolder lists recordings owned by ownerID within one folder.
func (s *Store) ForOwnerInFolder(ctx context.Context, ownerID, folderID string) ([]model.CallRecording, error) {
	if ownerID == "" || folderID == "" {
		return nil, apperr.Validation("owner id and folder id are required")
	}
	var recs []model.CallRecording
	err := s.db.WithContext(ctx).Where("user_id = ? AND folder_id = ?", ownerID, folderID).
		Order("recording_start_time DESC").
		Find(&recs).Error
	if err != nil {
		return nil, apperr.Store("list call recordings", err)
	}
	return recs, nil
}
