// Package client is a typed Go client for the indecisive HTTP API. It
// obtains access tokens through the client-credentials grant against the
// server's own /oauth/token endpoint and refreshes them transparently.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/indecisive-app/indecisive/internal/models"
)

// Client calls the API on behalf of one registered OAuth client. All
// methods act as the user the client's token is bound to.
type Client struct {
	baseURL string
	hc      *http.Client
}

// New creates a client for the API at baseURL authenticating with the
// given client credentials. The requested scopes, if any, must be a
// subset of the ones registered for the client.
func New(ctx context.Context, baseURL, clientID, clientSecret string, scopes ...string) *Client {
	base := strings.TrimRight(baseURL, "/")
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     base + "/oauth/token",
		Scopes:       scopes,
	}
	return &Client{baseURL: base, hc: cfg.Client(ctx)}
}

// sessionEnvelope matches the create/invite response shape, which wraps
// the session with best-effort warnings.
type sessionEnvelope struct {
	Session  *models.Session `json:"session"`
	Warnings []string        `json:"warnings,omitempty"`
}

// CreateSession opens a session owned by the acting user.
func (c *Client) CreateSession(ctx context.Context, name string) (*models.Session, error) {
	var out sessionEnvelope
	body := map[string]string{"name": name}
	if err := c.do(ctx, http.MethodPost, "/api/sessions", body, &out); err != nil {
		return nil, err
	}
	return out.Session, nil
}

// GetSession fetches one session the acting user owns or is invited to.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var out models.Session
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+sessionID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSessions returns the sessions visible to the acting user.
func (c *Client) ListSessions(ctx context.Context) ([]*models.Session, error) {
	var out struct {
		Sessions []*models.Session `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// Invite invites a user to a session owned by the acting user.
func (c *Client) Invite(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	var out sessionEnvelope
	body := map[string]string{"userId": userID}
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/invitations", body, &out); err != nil {
		return nil, err
	}
	return out.Session, nil
}

// Respond records the acting user's answer to their own invitation.
func (c *Client) Respond(ctx context.Context, sessionID, userID string, accepted bool, attending models.Attendance) (*models.Session, error) {
	var out models.Session
	body := map[string]any{"accepted": accepted, "attending": attending}
	path := "/api/sessions/" + sessionID + "/invitations/" + userID
	if err := c.do(ctx, http.MethodPut, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Suggest adds a named suggestion to a session on behalf of the acting
// user.
func (c *Client) Suggest(ctx context.Context, sessionID, name string) (*models.Session, error) {
	var out models.Session
	body := map[string]string{"name": name}
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/suggestions", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Vote casts the acting user's vote on a suggestion. models.VoteNone
// retracts a prior vote.
func (c *Client) Vote(ctx context.Context, sessionID, suggestionID string, vote models.Vote) (*models.Session, error) {
	var out models.Session
	body := map[string]any{"vote": vote}
	path := "/api/sessions/" + sessionID + "/suggestions/" + suggestionID + "/vote"
	if err := c.do(ctx, http.MethodPut, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do issues one request and decodes the response. Non-2xx responses are
// turned back into the server's typed errors.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return decodeError(res)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError reconstructs an APIError from the error response body so
// callers can use models.IsNotFound and friends against client results.
func decodeError(res *http.Response) error {
	var er models.ErrorResponse
	if err := json.NewDecoder(res.Body).Decode(&er); err != nil || er.Error.Code == "" {
		return models.NewAPIError(res.StatusCode, models.ErrorCodeInternal,
			fmt.Sprintf("unexpected response status %d", res.StatusCode))
	}
	apiErr := models.NewAPIError(res.StatusCode, er.Error.Code, er.Error.Message)
	for k, v := range er.Details {
		apiErr = apiErr.WithDetail(k, v)
	}
	return apiErr
}
