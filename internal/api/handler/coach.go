package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/callvault/callvault/internal/api/jsonapi"
	"github.com/callvault/callvault/internal/api/middleware"
	"github.com/callvault/callvault/internal/coach"
	"github.com/callvault/callvault/internal/model"
)

// CoachHandler handles coach relationship routes.
type CoachHandler struct {
	svc *coach.Service
}

// NewCoachHandler creates a CoachHandler.
func NewCoachHandler(svc *coach.Service) *CoachHandler {
	return &CoachHandler{svc: svc}
}

type relationshipAttrs struct {
	CoachEmail   string     `json:"coach_email"`
	CoacheeEmail string     `json:"coachee_email"`
	Status       string     `json:"status"`
	InvitedBy    string     `json:"invited_by"`
	AcceptedAt   *time.Time `json:"accepted_at,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func relationshipResource(v coach.RelationshipView) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "coach-relationships",
		ID:   v.Relationship.ID,
		Attributes: relationshipAttrs{
			CoachEmail:   v.CoachEmail,
			CoacheeEmail: v.CoacheeEmail,
			Status:       string(v.Relationship.Status),
			InvitedBy:    string(v.Relationship.InvitedBy),
			AcceptedAt:   v.Relationship.AcceptedAt,
			EndedAt:      v.Relationship.EndedAt,
			CreatedAt:    v.Relationship.CreatedAt,
		},
	}
}

type inviteCoachRequest struct {
	CoachEmail string `json:"coach_email"`
}

// InviteCoach handles POST /api/v1/coach/invites/coach.
func (h *CoachHandler) InviteCoach(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	var req inviteCoachRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	inv, err := h.svc.InviteCoach(r.Context(), claims.UserID, req.CoachEmail)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	renderInvite(w, inv)
}

// InviteCoachee handles POST /api/v1/coach/invites/coachee.
func (h *CoachHandler) InviteCoachee(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	inv, err := h.svc.InviteCoachee(r.Context(), claims.UserID)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	renderInvite(w, inv)
}

func renderInvite(w http.ResponseWriter, inv *coach.Invite) {
	jsonapi.RenderOne(w, http.StatusCreated, jsonapi.ResourceObject{
		Type: "coach-invites",
		ID:   inv.Relationship.ID,
		Attributes: map[string]any{
			"invite_url": inv.InviteURL,
			"expires_at": inv.Relationship.InviteExpiresAt,
		},
	})
}

// AcceptInvite handles POST /api/v1/coach/invites/{token}/accept.
func (h *CoachHandler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	rel, err := h.svc.AcceptInvite(r.Context(), r.PathValue("token"), claims.UserID)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type: "coach-relationships",
		ID:   rel.ID,
		Attributes: map[string]any{
			"status":      string(rel.Status),
			"accepted_at": rel.AcceptedAt,
		},
	})
}

// End handles DELETE /api/v1/coach/relationships/{id}.
func (h *CoachHandler) End(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if err := h.svc.EndRelationship(r.Context(), r.PathValue("id"), claims.UserID); err != nil {
		renderServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Relationships handles GET /api/v1/coach/relationships.
// The optional ?role=coach|coachee query narrows the view.
func (h *CoachHandler) Relationships(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	ctx := r.Context()

	var (
		views []coach.RelationshipView
		err   error
	)
	switch r.URL.Query().Get("role") {
	case "coach":
		views, err = h.svc.AsCoach(ctx, claims.UserID)
	case "coachee":
		views, err = h.svc.AsCoachee(ctx, claims.UserID)
	default:
		views, err = h.svc.Relationships(ctx, claims.UserID)
	}
	if err != nil {
		renderServiceError(w, err)
		return
	}

	data := make([]any, 0, len(views))
	for _, v := range views {
		data = append(data, relationshipResource(v))
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}

type shareAttrs struct {
	ShareType string  `json:"share_type"`
	FolderID  *string `json:"folder_id,omitempty"`
}

// Shares handles GET /api/v1/coach/relationships/{id}/shares.
func (h *CoachHandler) Shares(w http.ResponseWriter, r *http.Request) {
	shares, err := h.svc.Shares(r.Context(), r.PathValue("id"))
	if err != nil {
		renderServiceError(w, err)
		return
	}
	data := make([]any, 0, len(shares))
	for _, s := range shares {
		data = append(data, jsonapi.ResourceObject{
			Type:       "coach-shares",
			ID:         s.ID,
			Attributes: shareAttrs{ShareType: string(s.ShareType), FolderID: s.FolderID},
		})
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}

type shareRequest struct {
	ShareType string  `json:"share_type"`
	FolderID  *string `json:"folder_id"`
}

// AddShare handles POST /api/v1/coach/relationships/{id}/shares.
func (h *CoachHandler) AddShare(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "request body must be valid JSON")
		return
	}
	share, err := h.svc.AddShare(r.Context(), r.PathValue("id"), claims.UserID, model.ShareType(req.ShareType), req.FolderID)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, jsonapi.ResourceObject{
		Type:       "coach-shares",
		ID:         share.ID,
		Attributes: shareAttrs{ShareType: string(share.ShareType), FolderID: share.FolderID},
	})
}

// RemoveShare handles DELETE /api/v1/coach/shares/{id}.
func (h *CoachHandler) RemoveShare(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if err := h.svc.RemoveShare(r.Context(), r.PathValue("id"), claims.UserID); err != nil {
		renderServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type configureSharesRequest struct {
	Shares []shareRequest `json:"shares"`
}

// ConfigureShares handles PUT /api/v1/coach/relationships/{id}/shares.
func (h *CoachHandler) ConfigureShares(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	var req configureSharesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "request body must be valid JSON")
		return
	}
	specs := make([]coach.ShareSpec, 0, len(req.Shares))
	for _, s := range req.Shares {
		specs = append(specs, coach.ShareSpec{ShareType: model.ShareType(s.ShareType), FolderID: s.FolderID})
	}
	shares, err := h.svc.ConfigureShares(r.Context(), r.PathValue("id"), claims.UserID, specs)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	data := make([]any, 0, len(shares))
	for _, s := range shares {
		data = append(data, jsonapi.ResourceObject{
			Type:       "coach-shares",
			ID:         s.ID,
			Attributes: shareAttrs{ShareType: string(s.ShareType), FolderID: s.FolderID},
		})
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}

type noteAttrs struct {
	Note      string    `json:"note"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Note handles GET /api/v1/coach/relationships/{id}/calls/{callID}/note.
func (h *CoachHandler) Note(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	note, err := h.svc.Note(r.Context(), r.PathValue("id"), r.PathValue("callID"), claims.UserID)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type:       "coach-notes",
		ID:         note.ID,
		Attributes: noteAttrs{Note: note.Note, UpdatedAt: note.UpdatedAt},
	})
}

type saveNoteRequest struct {
	Note string `json:"note"`
}

// SaveNote handles PUT /api/v1/coach/relationships/{id}/calls/{callID}/note.
func (h *CoachHandler) SaveNote(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	var req saveNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "request body must be valid JSON")
		return
	}
	note, err := h.svc.SaveNote(r.Context(), r.PathValue("id"), r.PathValue("callID"), claims.UserID, req.Note)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type:       "coach-notes",
		ID:         note.ID,
		Attributes: noteAttrs{Note: note.Note, UpdatedAt: note.UpdatedAt},
	})
}

// DeleteNote handles DELETE /api/v1/coach/relationships/{id}/calls/{callID}/note.
func (h *CoachHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if err := h.svc.DeleteNote(r.Context(), r.PathValue("id"), r.PathValue("callID"), claims.UserID); err != nil {
		renderServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Coachees handles GET /api/v1/coach/coachees.
func (h *CoachHandler) Coachees(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	coachees, err := h.svc.Coachees(r.Context(), claims.UserID)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	data := make([]any, 0, len(coachees))
	for _, c := range coachees {
		data = append(data, jsonapi.ResourceObject{
			Type: "coachees",
			ID:   c.Relationship.ID,
			Attributes: map[string]any{
				"coachee_email": c.CoacheeEmail,
				"call_count":    c.CallCount,
			},
		})
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}

// SharedCalls handles GET /api/v1/coach/coachees/{coacheeID}/calls.
func (h *CoachHandler) SharedCalls(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	recs, err := h.svc.SharedCalls(r.Context(), claims.UserID, r.PathValue("coacheeID"))
	if err != nil {
		renderServiceError(w, err)
		return
	}
	data := make([]any, 0, len(recs))
	for _, rec := range recs {
		data = append(data, jsonapi.ResourceObject{
			Type: "calls",
			ID:   rec.RecordingID,
			Attributes: map[string]any{
				"call_name":            rec.CallName,
				"recording_start_time": rec.RecordingStartTime,
				"folder_id":            rec.FolderID,
			},
		})
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}
