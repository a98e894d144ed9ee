// Package handlers implements the HTTP API endpoints. Each handler method
// has the signature func(ctx, *Req) (*Resp, error) and is mounted through
// the server package's Wrap adapters; requests carry their own validation.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/indecisive-app/indecisive/internal/identity"
	"github.com/indecisive-app/indecisive/internal/models"
	"github.com/indecisive-app/indecisive/internal/oauth"
	"github.com/indecisive-app/indecisive/internal/rubrics"
	"github.com/indecisive-app/indecisive/internal/sessions"
)

// Validatable is implemented by every request type.
type Validatable interface {
	Validate() error
}

// Services aggregates the domain services the handlers dispatch to.
type Services struct {
	Users    *identity.Service
	Sessions *sessions.Service
	Clients  *oauth.ClientService
	Tokens   *oauth.TokenService
	Rubrics  *rubrics.Service
	Purger   *oauth.Purger
}

// OkResponse acknowledges an operation without a payload.
type OkResponse struct {
	Ok       bool     `json:"ok"`
	Warnings []string `json:"warnings,omitempty"`
}

// writeErrorResponse renders err in the standard error JSON shape.
func writeErrorResponse(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	code := models.ErrorCodeInternal
	var details map[string]any
	var ews models.ErrorWithStatus
	if errors.As(err, &ews) {
		statusCode = ews.StatusCode()
		code = ews.Code()
		details = ews.Details()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	resp := models.ErrorResponse{
		Error:   models.ErrorDetails{Code: code, Message: err.Error()},
		Details: details,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode error response", "err", err)
	}
}
