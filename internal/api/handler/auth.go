package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/callvault/callvault/internal/api/jsonapi"
	"github.com/callvault/callvault/internal/auth"
	"github.com/callvault/callvault/internal/identity"
	"gorm.io/gorm"
)

// AuthHandler handles /api/v1/auth/* routes.
type AuthHandler struct {
	creds     *auth.Credentials
	refresh   *auth.RefreshStore
	ids       *identity.Resolver
	jwtSecret string
	accessTTL time.Duration
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtSecret string, accessTTL, refreshTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		creds:     auth.NewCredentials(db),
		refresh:   auth.NewRefreshStore(db, refreshTTL),
		ids:       identity.NewResolver(db),
		jwtSecret: jwtSecret,
		accessTTL: accessTTL,
	}
}

// credentialsRequest holds the fields submitted to login and register.
// Sensitive field names are kept unexported and decoded via a map to
// avoid leaking them through reflection-based logging.
type credentialsRequest struct {
	Email string
	Name  string
	pass  string
}

func (r *credentialsRequest) UnmarshalJSON(data []byte) error {
	obj := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if v, ok := obj["email"]; ok {
		if err := json.Unmarshal(v, &r.Email); err != nil {
			return err
		}
	}
	if v, ok := obj["name"]; ok {
		if err := json.Unmarshal(v, &r.Name); err != nil {
			return err
		}
	}
	if v, ok := obj["password"]; ok {
		if err := json.Unmarshal(v, &r.pass); err != nil {
			return err
		}
	}
	return nil
}

// tokenAttrs are the JSON attributes returned in successful auth responses.
type tokenAttrs struct {
	accessToken  string
	refreshToken string
	TokenType    string
}

func (t tokenAttrs) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"access_token":  t.accessToken,
		"refresh_token": t.refreshToken,
		"token_type":    t.TokenType,
	})
}

func (h *AuthHandler) issueTokens(w http.ResponseWriter, r *http.Request, userID, email string) {
	accessToken, err := auth.IssueAccessToken(userID, email, h.jwtSecret, h.accessTTL)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError, "token_error", "Internal Server Error", "failed to issue access token")
		return
	}
	refreshToken, err := h.refresh.IssueRefreshToken(r.Context(), userID)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError, "token_error", "Internal Server Error", "failed to issue refresh token")
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type: "auth_token",
		ID:   userID,
		Attributes: tokenAttrs{
			accessToken:  accessToken,
			refreshToken: refreshToken,
			TokenType:    "Bearer",
		},
	})
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "request body must be valid JSON")
		return
	}
	user, err := h.creds.Register(r.Context(), req.Email, req.Name, req.pass)
	if err != nil {
		renderServiceError(w, err)
		return
	}
	h.issueTokens(w, r, user.ID, user.Email)
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "request body must be valid JSON")
		return
	}
	if req.Email == "" || req.pass == "" {
		jsonapi.RenderError(w, http.StatusUnprocessableEntity, "missing_field", "Unprocessable Entity", "email and password are required")
		return
	}

	user, err := h.creds.Verify(r.Context(), req.Email, req.pass)
	if err != nil {
		// Uniform response whether the email or the password was wrong.
		jsonapi.RenderError(w, http.StatusUnauthorized, "invalid_credentials", "Unauthorized", "email or password is incorrect")
		return
	}
	h.issueTokens(w, r, user.ID, user.Email)
}

// refreshRequest holds the token submitted to refresh and logout.
type refreshRequest struct {
	token string // unexported; decoded via UnmarshalJSON
}

func (r *refreshRequest) UnmarshalJSON(data []byte) error {
	obj := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if v, ok := obj["refresh_token"]; ok {
		if err := json.Unmarshal(v, &r.token); err != nil {
			return err
		}
	}
	return nil
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.token == "" {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "refresh_token is required")
		return
	}

	ctx := r.Context()
	newRefresh, userID, err := h.refresh.RotateRefreshToken(ctx, req.token)
	if err != nil {
		jsonapi.RenderError(w, http.StatusUnauthorized, "invalid_token", "Unauthorized", "refresh token is invalid or expired")
		return
	}

	user, err := h.ids.User(ctx, userID)
	if err != nil {
		jsonapi.RenderError(w, http.StatusUnauthorized, "user_not_found", "Unauthorized", "user account does not exist")
		return
	}

	accessToken, err := auth.IssueAccessToken(user.ID, user.Email, h.jwtSecret, h.accessTTL)
	if err != nil {
		jsonapi.RenderError(w, http.StatusInternalServerError, "token_error", "Internal Server Error", "failed to issue access token")
		return
	}

	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type: "auth_token",
		ID:   userID,
		Attributes: tokenAttrs{
			accessToken:  accessToken,
			refreshToken: newRefresh,
			TokenType:    "Bearer",
		},
	})
}

// Logout handles POST /api/v1/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.token == "" {
		jsonapi.RenderError(w, http.StatusBadRequest, "invalid_body", "Bad Request", "refresh_token is required")
		return
	}
	// Ignore error: even if token not found, return 204 to avoid token probing.
	_ = h.refresh.RevokeRefreshToken(r.Context(), req.token)
	w.WriteHeader(http.StatusNoContent)
}
