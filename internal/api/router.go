// Package api wires all API routes onto the provided ServeMux.
package api

import (
	"net/http"

	"github.com/callvault/callvault/internal/api/handler"
	"github.com/callvault/callvault/internal/api/middleware"
	"github.com/callvault/callvault/internal/health"
)

// Handlers bundles the resource handlers registered on the mux.
type Handlers struct {
	Health    *health.Handler
	Auth      *handler.AuthHandler
	Calls     *handler.CallHandler
	ShareLink *handler.ShareLinkHandler
	Coach     *handler.CoachHandler
	Team      *handler.TeamHandler
}

// RegisterRoutes registers all application routes on mux.
func RegisterRoutes(mux *http.ServeMux, h Handlers, jwtSecret string) {
	// Public health endpoints (no auth required)
	mux.HandleFunc("GET /api/v1/health", h.Health.ServeHealth)
	mux.HandleFunc("GET /api/v1/ready", h.Health.ServeReady)

	// Auth endpoints (no auth required)
	mux.HandleFunc("POST /api/v1/auth/register", h.Auth.Register)
	mux.HandleFunc("POST /api/v1/auth/login", h.Auth.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", h.Auth.Refresh)

	// The public share view works without a session, but a signed-in
	// viewer is attributed in the access log.
	optional := middleware.OptionalAuth(jwtSecret)
	mux.Handle("GET /api/v1/shared/{token}", optional(http.HandlerFunc(h.ShareLink.Resolve)))

	// Auth-required routes — wrap with RequireAuth middleware.
	protected := middleware.RequireAuth(jwtSecret)
	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, protected(fn))
	}

	route("POST /api/v1/auth/logout", h.Auth.Logout)

	// Call recordings
	route("GET /api/v1/calls", h.Calls.List)
	route("GET /api/v1/calls/{id}", h.Calls.Get)
	route("GET /api/v1/calls/{id}/access", h.Calls.Access)

	// Share links
	route("POST /api/v1/calls/{callID}/share-links", h.ShareLink.Create)
	route("GET /api/v1/calls/{callID}/share-links", h.ShareLink.List)
	route("GET /api/v1/calls/{callID}/share-links/status", h.ShareLink.Status)
	route("DELETE /api/v1/share-links/{id}", h.ShareLink.Revoke)
	route("GET /api/v1/share-links/{id}/access-log", h.ShareLink.AccessLog)

	// Coach relationships
	route("POST /api/v1/coach/invites/coach", h.Coach.InviteCoach)
	route("POST /api/v1/coach/invites/coachee", h.Coach.InviteCoachee)
	route("POST /api/v1/coach/invites/{token}/accept", h.Coach.AcceptInvite)
	route("GET /api/v1/coach/relationships", h.Coach.Relationships)
	route("DELETE /api/v1/coach/relationships/{id}", h.Coach.End)
	route("GET /api/v1/coach/relationships/{id}/shares", h.Coach.Shares)
	route("POST /api/v1/coach/relationships/{id}/shares", h.Coach.AddShare)
	route("PUT /api/v1/coach/relationships/{id}/shares", h.Coach.ConfigureShares)
	route("DELETE /api/v1/coach/shares/{id}", h.Coach.RemoveShare)
	route("GET /api/v1/coach/relationships/{id}/calls/{callID}/note", h.Coach.Note)
	route("PUT /api/v1/coach/relationships/{id}/calls/{callID}/note", h.Coach.SaveNote)
	route("DELETE /api/v1/coach/relationships/{id}/calls/{callID}/note", h.Coach.DeleteNote)
	route("GET /api/v1/coach/coachees", h.Coach.Coachees)
	route("GET /api/v1/coach/coachees/{coacheeID}/calls", h.Coach.SharedCalls)

	// Teams
	route("POST /api/v1/teams", h.Team.Create)
	route("GET /api/v1/teams/{id}", h.Team.Get)
	route("PATCH /api/v1/teams/{id}", h.Team.Update)
	route("DELETE /api/v1/teams/{id}", h.Team.Delete)
	route("POST /api/v1/teams/{id}/invites", h.Team.InviteMember)
	route("POST /api/v1/teams/invites/{token}/accept", h.Team.AcceptInvite)
	route("POST /api/v1/teams/{id}/invite-link", h.Team.GenerateInvite)
	route("POST /api/v1/teams/join/{token}", h.Team.Join)
	route("GET /api/v1/teams/{id}/members", h.Team.Members)
	route("GET /api/v1/teams/{id}/membership", h.Team.MyMembership)
	route("PATCH /api/v1/teams/memberships/{id}", h.Team.UpdateMember)
	route("PUT /api/v1/teams/memberships/{id}/manager", h.Team.SetManager)
	route("DELETE /api/v1/teams/memberships/{id}", h.Team.RemoveMember)
	route("GET /api/v1/teams/{id}/shares", h.Team.Shares)
	route("GET /api/v1/teams/{id}/shares/with-me", h.Team.SharesWithMe)
	route("POST /api/v1/teams/{id}/shares", h.Team.AddShare)
	route("DELETE /api/v1/teams/shares/{id}", h.Team.RemoveShare)
	route("GET /api/v1/teams/{id}/org-chart", h.Team.OrgChart)

	// Manager views
	route("GET /api/v1/manager/reports", h.Team.DirectReports)
	route("GET /api/v1/manager/calls/{callID}/note", h.Team.Note)
	route("PUT /api/v1/manager/calls/{callID}/note", h.Team.SaveNote)
	route("DELETE /api/v1/manager/calls/{callID}/note", h.Team.DeleteNote)

	// Catch-all 404
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
}
