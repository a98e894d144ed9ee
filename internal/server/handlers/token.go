package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/indecisive-app/indecisive/internal/models"
	"github.com/indecisive-app/indecisive/internal/oauth"
)

// TokenHandler serves the OAuth2 token endpoint. It is a raw handler
// because the grant request is form-encoded, not JSON.
type TokenHandler struct {
	tokens *oauth.TokenService
	purger *oauth.Purger
}

// NewTokenHandler creates the token endpoint handler. purger may be nil.
func NewTokenHandler(tokens *oauth.TokenService, purger *oauth.Purger) *TokenHandler {
	return &TokenHandler{tokens: tokens, purger: purger}
}

// tokenResponse is the RFC 6749 access token response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// Token handles POST /oauth/token for the client_credentials grant.
// Credentials arrive either as form fields or HTTP Basic auth.
func (h *TokenHandler) Token(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		writeErrorResponse(w, models.BadRequest("invalid form body"))
		return
	}
	if grant := r.PostForm.Get("grant_type"); grant != oauth.GrantClientCredentials {
		writeErrorResponse(w, models.BadRequest("unsupported grant_type").WithDetail("grant_type", grant))
		return
	}
	clientID, clientSecret, ok := r.BasicAuth()
	if !ok {
		clientID = r.PostForm.Get("client_id")
		clientSecret = r.PostForm.Get("client_secret")
	}
	if clientID == "" {
		writeErrorResponse(w, models.MissingField("client_id"))
		return
	}
	scope := r.PostForm.Get("scope")

	tok, err := h.tokens.Issue(ctx, clientID, clientSecret, scope)
	if err != nil {
		writeErrorResponse(w, err)
		return
	}
	// Issuing is the natural moment to sweep out expired tokens.
	if h.purger != nil {
		h.purger.Trigger(ctx)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	resp := tokenResponse{
		AccessToken: tok.Token.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(tok.Token.AccessTokenExpiresAt).Seconds()),
		Scope:       tok.Token.Scope,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "Failed to encode token response", "err", err)
	}
}
