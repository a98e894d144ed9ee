package handlers

import (
	"context"

	"github.com/indecisive-app/indecisive/internal/models"
	"github.com/indecisive-app/indecisive/internal/oauth"
)

// AdminHandler handles client registration and token administration.
// Every route mounting it requires the admin scope.
type AdminHandler struct {
	clients *oauth.ClientService
	tokens  *oauth.TokenService
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(clients *oauth.ClientService, tokens *oauth.TokenService) *AdminHandler {
	return &AdminHandler{clients: clients, tokens: tokens}
}

// ListClientsRequest is empty.
type ListClientsRequest struct{}

func (r *ListClientsRequest) Validate() error { return nil }

// ClientListResponse carries the registered clients, secrets redacted.
type ClientListResponse struct {
	Clients []*models.Client `json:"clients"`
}

// ListClients returns all registered clients.
func (h *AdminHandler) ListClients(ctx context.Context, _ *ListClientsRequest) (*ClientListResponse, error) {
	clients, err := h.clients.List(ctx)
	if err != nil {
		return nil, err
	}
	return &ClientListResponse{Clients: clients}, nil
}

// CreateClientRequest registers a new client.
type CreateClientRequest struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Secret string   `json:"secret"`
	Grants []string `json:"grants,omitempty"`
	UserID string   `json:"userId,omitempty"`
	Scopes []string `json:"scopes,omitempty"`
}

func (r *CreateClientRequest) Validate() error {
	if r.Name == "" {
		return models.MissingField("name")
	}
	if r.Secret == "" {
		return models.MissingField("secret")
	}
	return nil
}

// CreateClient registers a client. The response never echoes the secret.
func (h *AdminHandler) CreateClient(ctx context.Context, req *CreateClientRequest) (*models.Client, error) {
	created, err := h.clients.Create(ctx, oauth.ClientSeed{
		ID:     req.ID,
		Name:   req.Name,
		Secret: req.Secret,
		Grants: req.Grants,
		UserID: req.UserID,
		Scopes: req.Scopes,
	})
	if err != nil {
		return nil, err
	}
	redacted := *created
	redacted.Secret = ""
	return &redacted, nil
}

// DeleteClientRequest identifies the client to remove.
type DeleteClientRequest struct {
	ClientID string `path:"clientId"`
}

func (r *DeleteClientRequest) Validate() error {
	if r.ClientID == "" {
		return models.MissingField("clientId")
	}
	return nil
}

// DeleteClient removes a client registration.
func (h *AdminHandler) DeleteClient(ctx context.Context, req *DeleteClientRequest) (*OkResponse, error) {
	removed, err := h.clients.Delete(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, models.NotFound("client").WithDetail("id", req.ClientID)
	}
	return &OkResponse{Ok: true}, nil
}

// ListTokensRequest is empty.
type ListTokensRequest struct{}

func (r *ListTokensRequest) Validate() error { return nil }

// TokenListResponse carries the stored tokens, raw strings redacted.
type TokenListResponse struct {
	Tokens []*models.Token `json:"tokens"`
}

// ListTokens returns the stored tokens.
func (h *AdminHandler) ListTokens(ctx context.Context, _ *ListTokensRequest) (*TokenListResponse, error) {
	tokens, err := h.tokens.List(ctx)
	if err != nil {
		return nil, err
	}
	return &TokenListResponse{Tokens: tokens}, nil
}

// PurgeTokensRequest is empty.
type PurgeTokensRequest struct{}

func (r *PurgeTokensRequest) Validate() error { return nil }

// PurgeTokensResponse reports the ids deleted by the sweep.
type PurgeTokensResponse struct {
	Deleted []string `json:"deleted"`
}

// PurgeTokens runs the expired-token sweep immediately, bypassing the
// throttle.
func (h *AdminHandler) PurgeTokens(ctx context.Context, _ *PurgeTokensRequest) (*PurgeTokensResponse, error) {
	deleted, err := h.tokens.PurgeExpired(ctx)
	if err != nil {
		return nil, err
	}
	if deleted == nil {
		deleted = []string{}
	}
	return &PurgeTokensResponse{Deleted: deleted}, nil
}
