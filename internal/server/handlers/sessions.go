package handlers

import (
	"context"

	"github.com/indecisive-app/indecisive/internal/models"
	"github.com/indecisive-app/indecisive/internal/server/reqctx"
	"github.com/indecisive-app/indecisive/internal/sessions"
)

// SessionHandler handles the scheduling/voting endpoints. The acting user
// is the one the authenticated client's token is bound to.
type SessionHandler struct {
	sessions *sessions.Service
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(svc *sessions.Service) *SessionHandler {
	return &SessionHandler{sessions: svc}
}

// SessionResponse carries a session plus the warnings of best-effort
// secondary updates.
type SessionResponse struct {
	Session  *models.Session `json:"session"`
	Warnings []string        `json:"warnings,omitempty"`
}

// actingUser resolves the caller's user id; sessions endpoints require a
// token bound to a user.
func actingUser(ctx context.Context) (string, error) {
	userID := reqctx.UserID(ctx)
	if userID == "" {
		return "", models.Forbidden("token is not bound to a user")
	}
	return userID, nil
}

// CreateSessionRequest opens a new session owned by the caller.
type CreateSessionRequest struct {
	Name string `json:"name"`
}

func (r *CreateSessionRequest) Validate() error {
	if r.Name == "" {
		return models.MissingField("name")
	}
	return nil
}

// CreateSession creates a session owned by the acting user.
func (h *SessionHandler) CreateSession(ctx context.Context, req *CreateSessionRequest) (*SessionResponse, error) {
	userID, err := actingUser(ctx)
	if err != nil {
		return nil, err
	}
	res, err := h.sessions.Create(ctx, &models.Session{Name: req.Name, OwnerID: userID})
	if err != nil {
		return nil, err
	}
	return &SessionResponse{Session: res.Session, Warnings: res.Warnings}, nil
}

// GetSessionRequest identifies one session.
type GetSessionRequest struct {
	SessionID string `path:"sessionId"`
}

func (r *GetSessionRequest) Validate() error {
	if r.SessionID == "" {
		return models.MissingField("sessionId")
	}
	return nil
}

// GetSession returns one session if the caller owns it or is invited.
func (h *SessionHandler) GetSession(ctx context.Context, req *GetSessionRequest) (*models.Session, error) {
	userID, err := actingUser(ctx)
	if err != nil {
		return nil, err
	}
	sess, err := h.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	// Hidden sessions are indistinguishable from absent ones.
	if !sess.CanView(userID) {
		return nil, models.NotFound("session").WithDetail("id", req.SessionID)
	}
	return sess, nil
}

// ListSessionsRequest is empty.
type ListSessionsRequest struct{}

func (r *ListSessionsRequest) Validate() error { return nil }

// SessionListResponse carries the visible sessions ordered by name.
type SessionListResponse struct {
	Sessions []*models.Session `json:"sessions"`
}

// ListSessions returns the sessions the caller owns or is invited to.
func (h *SessionHandler) ListSessions(ctx context.Context, _ *ListSessionsRequest) (*SessionListResponse, error) {
	userID, err := actingUser(ctx)
	if err != nil {
		return nil, err
	}
	list, err := h.sessions.ListVisibleTo(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &SessionListResponse{Sessions: list}, nil
}

// DeleteSessionRequest identifies the session to remove.
type DeleteSessionRequest struct {
	SessionID string `path:"sessionId"`
}

func (r *DeleteSessionRequest) Validate() error {
	if r.SessionID == "" {
		return models.MissingField("sessionId")
	}
	return nil
}

// DeleteSession removes a session. Only the owner may delete it.
func (h *SessionHandler) DeleteSession(ctx context.Context, req *DeleteSessionRequest) (*OkResponse, error) {
	userID, err := actingUser(ctx)
	if err != nil {
		return nil, err
	}
	sess, err := h.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.OwnerID != userID {
		return nil, models.Forbidden("only the owner may delete a session")
	}
	removed, warnings, err := h.sessions.Delete(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	return &OkResponse{Ok: removed, Warnings: warnings}, nil
}

// InviteRequest invites a user to a session.
type InviteRequest struct {
	SessionID string `path:"sessionId"`
	UserID    string `json:"userId"`
}

func (r *InviteRequest) Validate() error {
	if r.SessionID == "" {
		return models.MissingField("sessionId")
	}
	if r.UserID == "" {
		return models.MissingField("userId")
	}
	return nil
}

// Invite adds an invitation. Only the owner may invite.
func (h *SessionHandler) Invite(ctx context.Context, req *InviteRequest) (*SessionResponse, error) {
	userID, err := actingUser(ctx)
	if err != nil {
		return nil, err
	}
	sess, err := h.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.OwnerID != userID {
		return nil, models.Forbidden("only the owner may invite")
	}
	res, err := h.sessions.Invite(ctx, req.SessionID, req.UserID)
	if err != nil {
		return nil, err
	}
	return &SessionResponse{Session: res.Session, Warnings: res.Warnings}, nil
}

// RespondRequest records the caller's answer to their invitation.
type RespondRequest struct {
	SessionID string            `path:"sessionId"`
	UserID    string            `path:"userId"`
	Accepted  bool              `json:"accepted"`
	Attending models.Attendance `json:"attending"`
}

func (r *RespondRequest) Validate() error {
	if r.SessionID == "" {
		return models.MissingField("sessionId")
	}
	if r.UserID == "" {
		return models.MissingField("userId")
	}
	return nil
}

// Respond updates the caller's invitation. Users answer only for
// themselves.
func (h *SessionHandler) Respond(ctx context.Context, req *RespondRequest) (*models.Session, error) {
	userID, err := actingUser(ctx)
	if err != nil {
		return nil, err
	}
	if req.UserID != userID {
		return nil, models.Forbidden("cannot respond to another user's invitation")
	}
	return h.sessions.Respond(ctx, req.SessionID, req.UserID, req.Accepted, req.Attending)
}

// SuggestRequest adds a suggestion to a session.
type SuggestRequest struct {
	SessionID string `path:"sessionId"`
	Name      string `json:"name"`
}

func (r *SuggestRequest) Validate() error {
	if r.SessionID == "" {
		return models.MissingField("sessionId")
	}
	if r.Name == "" {
		return models.MissingField("name")
	}
	return nil
}

// Suggest adds a named suggestion on behalf of the caller.
func (h *SessionHandler) Suggest(ctx context.Context, req *SuggestRequest) (*models.Session, error) {
	userID, err := actingUser(ctx)
	if err != nil {
		return nil, err
	}
	return h.sessions.Suggest(ctx, req.SessionID, userID, req.Name)
}

// VoteRequest casts the caller's vote on a suggestion.
type VoteRequest struct {
	SessionID    string      `path:"sessionId"`
	SuggestionID string      `path:"suggestionId"`
	Vote         models.Vote `json:"vote"`
}

func (r *VoteRequest) Validate() error {
	if r.SessionID == "" {
		return models.MissingField("sessionId")
	}
	if r.SuggestionID == "" {
		return models.MissingField("suggestionId")
	}
	if r.Vote == "" {
		return models.MissingField("vote")
	}
	return nil
}

// Vote applies the caller's vote.
func (h *SessionHandler) Vote(ctx context.Context, req *VoteRequest) (*models.Session, error) {
	userID, err := actingUser(ctx)
	if err != nil {
		return nil, err
	}
	return h.sessions.Vote(ctx, req.SessionID, req.SuggestionID, userID, req.Vote)
}
