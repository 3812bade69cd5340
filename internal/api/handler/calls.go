package handler

import (
	"net/http"
	"time"

	"github.com/callvault/callvault/internal/access"
	"github.com/callvault/callvault/internal/api/jsonapi"
	"github.com/callvault/callvault/internal/api/middleware"
	"github.com/callvault/callvault/internal/calls"
	"github.com/callvault/callvault/internal/model"
)

// CallHandler handles call-recording read routes. Every read is gated
// by the access evaluator; a denied caller gets the same 404 as a
// nonexistent recording so callers cannot enumerate call IDs.
type CallHandler struct {
	calls  *calls.Store
	access *access.Evaluator
}

// NewCallHandler creates a CallHandler.
func NewCallHandler(callStore *calls.Store, evaluator *access.Evaluator) *CallHandler {
	return &CallHandler{calls: callStore, access: evaluator}
}

type callAttrs struct {
	CallName           string    `json:"call_name"`
	RecordedByEmail    string    `json:"recorded_by_email"`
	RecordingStartTime time.Time `json:"recording_start_time"`
	Duration           *string   `json:"duration,omitempty"`
	FolderID           *string   `json:"folder_id,omitempty"`
	FullTranscript     *string   `json:"full_transcript,omitempty"`
	AccessLevel        string    `json:"access_level,omitempty"`
}

func callResource(c *model.CallRecording, level access.Level) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "calls",
		ID:   c.RecordingID,
		Attributes: callAttrs{
			CallName:           c.CallName,
			RecordedByEmail:    c.RecordedByEmail,
			RecordingStartTime: c.RecordingStartTime,
			Duration:           c.Duration,
			FolderID:           c.FolderID,
			FullTranscript:     c.FullTranscript,
			AccessLevel:        string(level),
		},
	}
}

// List handles GET /api/v1/calls, the caller's own recordings. An
// optional ?folder_id= query narrows to one folder.
func (h *CallHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	var (
		recs []model.CallRecording
		err  error
	)
	if folderID := r.URL.Query().Get("folder_id"); folderID != "" {
		recs, err = h.calls.ForOwnerInFolder(r.Context(), claims.UserID, folderID)
	} else {
		recs, err = h.calls.ForOwner(r.Context(), claims.UserID)
	}
	if err != nil {
		renderServiceError(w, err)
		return
	}

	data := make([]any, 0, len(recs))
	for i := range recs {
		data = append(data, callResource(&recs[i], access.LevelOwner))
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}

// Get handles GET /api/v1/calls/{id}.
func (h *CallHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	ctx := r.Context()

	level, allowed, err := h.access.CanAccess(ctx, claims.UserID, r.PathValue("id"))
	if err != nil {
		renderServiceError(w, err)
		return
	}
	if !allowed {
		jsonapi.RenderError(w, http.StatusNotFound, "not_found", "Not Found", "call recording not found")
		return
	}

	rec, err := h.calls.Get(ctx, r.PathValue("id"))
	if err != nil {
		renderServiceError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, callResource(rec, level))
}

// Access handles GET /api/v1/calls/{id}/access, reporting the caller's
// effective access level without returning the recording itself.
func (h *CallHandler) Access(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	level, allowed, err := h.access.CanAccess(r.Context(), claims.UserID, r.PathValue("id"))
	if err != nil {
		renderServiceError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type: "call-access",
		ID:   r.PathValue("id"),
		Attributes: map[string]any{
			"allowed":      allowed,
			"access_level": string(level),
		},
	})
}
