package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/callvault/callvault/internal/api/jsonapi"
	"github.com/callvault/callvault/internal/api/middleware"
	"github.com/callvault/callvault/internal/model"
	"github.com/callvault/callvault/internal/sharelink"
)

// ShareLinkHandler handles share-link routes, including the public
// tokenized view.
type ShareLinkHandler struct {
	links *sharelink.Store
}

// NewShareLinkHandler creates a ShareLinkHandler.
func NewShareLinkHandler(links *sharelink.Store) *ShareLinkHandler {
	return &ShareLinkHandler{links: links}
}

type shareLinkAttrs struct {
	CallRecordingID string     `json:"call_recording_id"`
	ShareToken      string     `json:"share_token"`
	RecipientEmail  *string    `json:"recipient_email,omitempty"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
}

func shareLinkResource(l *model.ShareLink) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "share-links",
		ID:   l.ID,
		Attributes: shareLinkAttrs{
			CallRecordingID: l.CallRecordingID,
			ShareToken:      l.ShareToken,
			RecipientEmail:  l.RecipientEmail,
			Status:          string(l.Status),
			CreatedAt:       l.CreatedAt,
			RevokedAt:       l.RevokedAt,
		},
	}
}

type createShareLinkRequest struct {
	RecipientEmail string `json:"recipient_email"`
}

// Create handles POST /api/v1/calls/{callID}/share-links.
func (h *ShareLinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	var req createShareLinkRequest
	// An empty body is fine; recipient email is optional.
	_ = json.NewDecoder(r.Body).Decode(&req)

	link, err := h.links.Create(r.Context(), r.PathValue("callID"), claims.UserID, req.RecipientEmail)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, shareLinkResource(link))
}

// List handles GET /api/v1/calls/{callID}/share-links.
func (h *ShareLinkHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	links, err := h.links.LinksForCall(r.Context(), r.PathValue("callID"), claims.UserID)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	data := make([]any, 0, len(links))
	for i := range links {
		data = append(data, shareLinkResource(&links[i]))
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}

// Status handles GET /api/v1/calls/{callID}/share-links/status.
func (h *ShareLinkHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	status, err := h.links.Status(r.Context(), r.PathValue("callID"), claims.UserID)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type: "share-link-status",
		ID:   r.PathValue("callID"),
		Attributes: map[string]any{
			"has_share_links":  status.HasShareLinks,
			"share_link_count": status.ShareLinkCount,
		},
	})
}

// Revoke handles DELETE /api/v1/share-links/{id}.
func (h *ShareLinkHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if err := h.links.Revoke(r.Context(), r.PathValue("id"), claims.UserID); err != nil {
		renderServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AccessLog handles GET /api/v1/share-links/{id}/access-log.
func (h *ShareLinkHandler) AccessLog(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	entries, err := h.links.AccessLog(r.Context(), r.PathValue("id"), claims.UserID)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	data := make([]any, 0, len(entries))
	for _, e := range entries {
		data = append(data, jsonapi.ResourceObject{
			Type: "share-access-log",
			ID:   e.Entry.ID,
			Attributes: map[string]any{
				"accessed_at":  e.Entry.AccessedAt,
				"viewer_email": e.ViewerEmail,
			},
		})
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}

type sharedCallAttrs struct {
	CallName           string    `json:"call_name"`
	RecordedByEmail    string    `json:"recorded_by_email"`
	RecordingStartTime time.Time `json:"recording_start_time"`
	Duration           *string   `json:"duration,omitempty"`
	FullTranscript     *string   `json:"full_transcript,omitempty"`
}

// Resolve handles GET /api/v1/shared/{token}, the public view. Wrapped
// in OptionalAuth so signed-in viewers are attributed in the access log.
func (h *ShareLinkHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	res, err := h.links.Resolve(r.Context(), r.PathValue("token"))
	if err != nil {
		renderServiceError(w, err)
		return
	}
	if res.IsRevoked {
		jsonapi.RenderError(w, http.StatusGone, "revoked", "Gone", "this share link has been revoked")
		return
	}
	if !res.IsValid {
		jsonapi.RenderError(w, http.StatusNotFound, "not_found", "Not Found", "this share link does not exist")
		return
	}

	viewerID := ""
	if claims := middleware.ClaimsFromContext(r.Context()); claims != nil {
		viewerID = claims.UserID
	}
	_ = h.links.LogAccess(r.Context(), res.Link.ID, viewerID)

	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type: "shared-calls",
		ID:   res.Call.RecordingID,
		Attributes: sharedCallAttrs{
			CallName:           res.Call.CallName,
			RecordedByEmail:    res.Call.RecordedByEmail,
			RecordingStartTime: res.Call.RecordingStartTime,
			Duration:           res.Call.Duration,
			FullTranscript:     res.Call.FullTranscript,
		},
	})
}
