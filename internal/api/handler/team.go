package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/callvault/callvault/internal/api/jsonapi"
	"github.com/callvault/callvault/internal/api/middleware"
	"github.com/callvault/callvault/internal/model"
	"github.com/callvault/callvault/internal/team"
)

// TeamHandler handles team routes.
type TeamHandler struct {
	svc *team.Service
}

// NewTeamHandler creates a TeamHandler.
func NewTeamHandler(svc *team.Service) *TeamHandler {
	return &TeamHandler{svc: svc}
}

type teamAttrs struct {
	Name         string    `json:"name"`
	AdminSeesAll bool      `json:"admin_sees_all"`
	CreatedAt    time.Time `json:"created_at"`
}

func teamResource(t *model.Team) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "teams",
		ID:   t.ID,
		Attributes: teamAttrs{
			Name:         t.Name,
			AdminSeesAll: t.AdminSeesAll,
			CreatedAt:    t.CreatedAt,
		},
	}
}

type teamRequest struct {
	Name         string `json:"name"`
	AdminSeesAll bool   `json:"admin_sees_all"`
}

// Create handles POST /api/v1/teams.
func (h *TeamHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	var req teamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "request body must be valid JSON")
		return
	}
	tm, err := h.svc.CreateTeam(r.Context(), req.Name, claims.UserID, req.AdminSeesAll)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, teamResource(tm))
}

// Get handles GET /api/v1/teams/{id}.
func (h *TeamHandler) Get(w http.ResponseWriter, r *http.Request) {
	tm, err := h.svc.Team(r.Context(), r.PathValue("id"))
	if err != nil {
		renderServiceError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, teamResource(tm))
}

// Update handles PATCH /api/v1/teams/{id}.
func (h *TeamHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	var req teamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "request body must be valid JSON")
		return
	}
	tm, err := h.svc.UpdateTeam(r.Context(), r.PathValue("id"), claims.UserID, req.Name, req.AdminSeesAll)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, teamResource(tm))
}

// Delete handles DELETE /api/v1/teams/{id}.
func (h *TeamHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if err := h.svc.DeleteTeam(r.Context(), r.PathValue("id"), claims.UserID); err != nil {
		renderServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type inviteMemberRequest struct {
	Email               string  `json:"email"`
	Role                string  `json:"role"`
	ManagerMembershipID *string `json:"manager_membership_id"`
}

// InviteMember handles POST /api/v1/teams/{id}/invites.
func (h *TeamHandler) InviteMember(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	var req inviteMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "request body must be valid JSON")
		return
	}
	role := model.TeamRole(req.Role)
	if req.Role == "" {
		role = model.RoleMember
	}
	inv, err := h.svc.InviteMember(r.Context(), r.PathValue("id"), req.Email, claims.UserID, role, req.ManagerMembershipID)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, jsonapi.ResourceObject{
		Type: "team-invites",
		ID:   inv.Membership.ID,
		Attributes: map[string]any{
			"invite_url": inv.InviteURL,
			"expires_at": inv.Membership.InviteExpiresAt,
		},
	})
}

// AcceptInvite handles POST /api/v1/teams/invites/{token}/accept.
func (h *TeamHandler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	m, err := h.svc.AcceptInvite(r.Context(), r.PathValue("token"), claims.UserID)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, membershipResource(m, "", ""))
}

// GenerateInvite handles POST /api/v1/teams/{id}/invite-link.
func (h *TeamHandler) GenerateInvite(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	inv, err := h.svc.GenerateTeamInvite(r.Context(), r.PathValue("id"), claims.UserID)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type: "team-invite-links",
		ID:   r.PathValue("id"),
		Attributes: map[string]any{
			"invite_url": inv.InviteURL,
			"expires_at": inv.ExpiresAt,
		},
	})
}

// Join handles POST /api/v1/teams/join/{token}.
func (h *TeamHandler) Join(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	m, err := h.svc.JoinTeam(r.Context(), r.PathValue("token"), claims.UserID)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, membershipResource(m, "", ""))
}

type membershipAttrs struct {
	UserID              string     `json:"user_id"`
	Email               string     `json:"email,omitempty"`
	Role                string     `json:"role"`
	Status              string     `json:"status"`
	ManagerMembershipID *string    `json:"manager_membership_id,omitempty"`
	ManagerEmail        string     `json:"manager_email,omitempty"`
	JoinedAt            *time.Time `json:"joined_at,omitempty"`
}

func membershipResource(m *model.TeamMembership, email, managerEmail string) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "team-memberships",
		ID:   m.ID,
		Attributes: membershipAttrs{
			UserID:              m.UserID,
			Email:               email,
			Role:                string(m.Role),
			Status:              string(m.Status),
			ManagerMembershipID: m.ManagerMembershipID,
			ManagerEmail:        managerEmail,
			JoinedAt:            m.JoinedAt,
		},
	}
}

// Members handles GET /api/v1/teams/{id}/members.
func (h *TeamHandler) Members(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.Members(r.Context(), r.PathValue("id"))
	if err != nil {
		renderServiceError(w, err)
		return
	}
	data := make([]any, 0, len(views))
	for i := range views {
		data = append(data, membershipResource(&views[i].Membership, views[i].Email, views[i].ManagerEmail))
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}

// MyMembership handles GET /api/v1/teams/{id}/membership.
func (h *TeamHandler) MyMembership(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	info, err := h.svc.MembershipFor(r.Context(), r.PathValue("id"), claims.UserID)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type: "team-memberships",
		ID:   info.Membership.ID,
		Attributes: map[string]any{
			"role":       string(info.Membership.Role),
			"is_admin":   info.IsAdmin,
			"is_manager": info.IsManager,
		},
	})
}

type updateMemberRequest struct {
	Role                string  `json:"role"`
	ManagerMembershipID *string `json:"manager_membership_id"`
}

// UpdateMember handles PATCH /api/v1/teams/memberships/{id}.
func (h *TeamHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	var req updateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "request body must be valid JSON")
		return
	}
	m, err := h.svc.UpdateMember(r.Context(), r.PathValue("id"), claims.UserID, model.TeamRole(req.Role), req.ManagerMembershipID)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, membershipResource(m, "", ""))
}

// SetManager handles PUT /api/v1/teams/memberships/{id}/manager.
func (h *TeamHandler) SetManager(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	var req updateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "request body must be valid JSON")
		return
	}
	if err := h.svc.SetManager(r.Context(), r.PathValue("id"), claims.UserID, req.ManagerMembershipID); err != nil {
		renderServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveMember handles DELETE /api/v1/teams/memberships/{id}.
func (h *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if err := h.svc.RemoveMember(r.Context(), r.PathValue("id"), claims.UserID); err != nil {
		renderServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func teamShareResource(s *model.TeamShare) jsonapi.ResourceObject {
	return jsonapi.ResourceObject{
		Type: "team-shares",
		ID:   s.ID,
		Attributes: map[string]any{
			"owner_user_id":     s.OwnerUserID,
			"recipient_user_id": s.RecipientUserID,
			"share_type":        string(s.ShareType),
			"folder_id":         s.FolderID,
		},
	}
}

// Shares handles GET /api/v1/teams/{id}/shares.
func (h *TeamHandler) Shares(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	shares, err := h.svc.Shares(r.Context(), r.PathValue("id"), claims.UserID)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	data := make([]any, 0, len(shares))
	for i := range shares {
		data = append(data, teamShareResource(&shares[i]))
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}

// SharesWithMe handles GET /api/v1/teams/{id}/shares/with-me.
func (h *TeamHandler) SharesWithMe(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	shares, err := h.svc.SharesWithMe(r.Context(), r.PathValue("id"), claims.UserID)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	data := make([]any, 0, len(shares))
	for i := range shares {
		data = append(data, teamShareResource(&shares[i]))
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}

type teamShareRequest struct {
	RecipientUserID string  `json:"recipient_user_id"`
	ShareType       string  `json:"share_type"`
	FolderID        *string `json:"folder_id"`
}

// AddShare handles POST /api/v1/teams/{id}/shares.
func (h *TeamHandler) AddShare(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	var req teamShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "request body must be valid JSON")
		return
	}
	share, err := h.svc.AddShare(r.Context(), r.PathValue("id"), claims.UserID, req.RecipientUserID,
		model.ShareType(req.ShareType), req.FolderID)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusCreated, teamShareResource(share))
}

// RemoveShare handles DELETE /api/v1/teams/shares/{id}.
func (h *TeamHandler) RemoveShare(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if err := h.svc.RemoveShare(r.Context(), r.PathValue("id"), claims.UserID); err != nil {
		renderServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Note handles GET /api/v1/manager/calls/{callID}/note.
func (h *TeamHandler) Note(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	note, err := h.svc.Note(r.Context(), claims.UserID, r.PathValue("callID"))
	if err != nil {
		renderServiceError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type:       "manager-notes",
		ID:         note.ID,
		Attributes: noteAttrs{Note: note.Note, UpdatedAt: note.UpdatedAt},
	})
}

// SaveNote handles PUT /api/v1/manager/calls/{callID}/note.
func (h *TeamHandler) SaveNote(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	var req saveNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "request body must be valid JSON")
		return
	}
	note, err := h.svc.SaveNote(r.Context(), claims.UserID, r.PathValue("callID"), req.Note)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type:       "manager-notes",
		ID:         note.ID,
		Attributes: noteAttrs{Note: note.Note, UpdatedAt: note.UpdatedAt},
	})
}

// DeleteNote handles DELETE /api/v1/manager/calls/{callID}/note.
func (h *TeamHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if err := h.svc.DeleteNote(r.Context(), claims.UserID, r.PathValue("callID")); err != nil {
		renderServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DirectReports handles GET /api/v1/manager/reports.
func (h *TeamHandler) DirectReports(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	reports, err := h.svc.DirectReports(r.Context(), claims.UserID)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	data := make([]any, 0, len(reports))
	for _, rep := range reports {
		calls := make([]map[string]any, 0, len(rep.RecentCalls))
		for _, c := range rep.RecentCalls {
			calls = append(calls, map[string]any{
				"recording_id":         c.RecordingID,
				"call_name":            c.CallName,
				"recording_start_time": c.RecordingStartTime,
			})
		}
		data = append(data, jsonapi.ResourceObject{
			Type: "direct-reports",
			ID:   rep.Membership.ID,
			Attributes: map[string]any{
				"email":        rep.Email,
				"recent_calls": calls,
			},
		})
	}
	jsonapi.RenderList(w, http.StatusOK, data, nil)
}

type orgChartNode struct {
	MembershipID string         `json:"membership_id"`
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	Children     []orgChartNode `json:"children"`
}

func toOrgChartNode(n *team.OrgChartNode) orgChartNode {
	out := orgChartNode{
		MembershipID: n.Member.Membership.ID,
		Email:        n.Member.Email,
		Role:         string(n.Member.Membership.Role),
		Children:     []orgChartNode{},
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, toOrgChartNode(c))
	}
	return out
}

// OrgChart handles GET /api/v1/teams/{id}/org-chart.
func (h *TeamHandler) OrgChart(w http.ResponseWriter, r *http.Request) {
	chart, err := h.svc.Chart(r.Context(), r.PathValue("id"))
	if err != nil {
		renderServiceError(w, err)
		return
	}
	roots := make([]orgChartNode, 0, len(chart.Roots))
	for _, n := range chart.Roots {
		roots = append(roots, toOrgChartNode(n))
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type: "org-charts",
		ID:   r.PathValue("id"),
		Attributes: map[string]any{
			"roots":         roots,
			"total_members": chart.TotalMembers,
		},
	})
}
