package handlers

import "context"

// HealthHandler reports server liveness.
type HealthHandler struct {
	version string
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{version: version}
}

// HealthRequest is empty.
type HealthRequest struct{}

// Validate implements Validatable.
func (r *HealthRequest) Validate() error { return nil }

// HealthResponse reports server status.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Health returns the server status.
func (h *HealthHandler) Health(ctx context.Context, _ *HealthRequest) (*HealthResponse, error) {
	return &HealthResponse{Status: "ok", Version: h.version}, nil
}
