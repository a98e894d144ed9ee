package handlers

import (
	"context"

	"github.com/indecisive-app/indecisive/internal/identity"
	"github.com/indecisive-app/indecisive/internal/models"
)

// UserHandler handles user management requests.
type UserHandler struct {
	users *identity.Service
}

// NewUserHandler creates a user handler.
func NewUserHandler(users *identity.Service) *UserHandler {
	return &UserHandler{users: users}
}

// ListUsersRequest is empty.
type ListUsersRequest struct{}

func (r *ListUsersRequest) Validate() error { return nil }

// UserListResponse carries the users ordered by name.
type UserListResponse struct {
	Users []*models.User `json:"users"`
}

// ListUsers returns all users.
func (h *UserHandler) ListUsers(ctx context.Context, _ *ListUsersRequest) (*UserListResponse, error) {
	users, err := h.users.List(ctx)
	if err != nil {
		return nil, err
	}
	return &UserListResponse{Users: users}, nil
}

// GetUserRequest identifies one user.
type GetUserRequest struct {
	UserID string `path:"userId"`
}

func (r *GetUserRequest) Validate() error {
	if r.UserID == "" {
		return models.MissingField("userId")
	}
	return nil
}

// GetUser returns one user.
func (h *UserHandler) GetUser(ctx context.Context, req *GetUserRequest) (*models.User, error) {
	return h.users.Get(ctx, req.UserID)
}

// CreateUserRequest registers a user.
type CreateUserRequest struct {
	Name string `json:"name"`
}

func (r *CreateUserRequest) Validate() error {
	if r.Name == "" {
		return models.MissingField("name")
	}
	return nil
}

// CreateUser registers a new user.
func (h *UserHandler) CreateUser(ctx context.Context, req *CreateUserRequest) (*models.User, error) {
	return h.users.Create(ctx, &models.User{Name: req.Name})
}

// RenameUserRequest updates a user's display name.
type RenameUserRequest struct {
	UserID string `path:"userId"`
	Name   string `json:"name"`
}

func (r *RenameUserRequest) Validate() error {
	if r.UserID == "" {
		return models.MissingField("userId")
	}
	if r.Name == "" {
		return models.MissingField("name")
	}
	return nil
}

// RenameUser updates the display name.
func (h *UserHandler) RenameUser(ctx context.Context, req *RenameUserRequest) (*models.User, error) {
	return h.users.Rename(ctx, req.UserID, req.Name)
}

// DeleteUserRequest identifies the user to remove.
type DeleteUserRequest struct {
	UserID string `path:"userId"`
}

func (r *DeleteUserRequest) Validate() error {
	if r.UserID == "" {
		return models.MissingField("userId")
	}
	return nil
}

// DeleteUser removes a user document.
func (h *UserHandler) DeleteUser(ctx context.Context, req *DeleteUserRequest) (*OkResponse, error) {
	removed, err := h.users.Delete(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, models.NotFound("user").WithDetail("id", req.UserID)
	}
	return &OkResponse{Ok: true}, nil
}
