// Generic adapters turning typed handler functions into http.Handlers:
// JSON body decoding, path/query population, validation, bearer token
// checks, and rate limiting.

package server

import (
	"bytes"
	"context"
	"encoding"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/indecisive-app/indecisive/internal/models"
	"github.com/indecisive-app/indecisive/internal/oauth"
	"github.com/indecisive-app/indecisive/internal/server/handlers"
	"github.com/indecisive-app/indecisive/internal/server/ratelimit"
	"github.com/indecisive-app/indecisive/internal/server/reqctx"
)

// maxRequestBodyBytes bounds JSON request bodies.
const maxRequestBodyBytes = 1 << 20

// addRequestMetadataToContext adds client IP and User-Agent to the context.
func addRequestMetadataToContext(ctx context.Context, r *http.Request) context.Context {
	ctx = reqctx.WithClientIP(ctx, reqctx.GetClientIP(r))
	ctx = reqctx.WithUserAgent(ctx, r.Header.Get("User-Agent"))
	return ctx
}

// checkRateLimit runs the limiter and writes the 429 when exceeded.
// Reports whether the request may proceed.
func checkRateLimit(w http.ResponseWriter, limiter *ratelimit.Limiter, key string) bool {
	if limiter == nil {
		return true
	}
	result := limiter.Allow(key)
	ratelimit.SetHeaders(w, result)
	if !result.Allowed {
		writeErrorResponse(w, models.NewAPIError(http.StatusTooManyRequests, models.ErrorCodeValidationFailed,
			"Rate limit exceeded").WithDetail("retryAfterSeconds", int(result.RetryAfter.Seconds())))
		return false
	}
	return true
}

// readAndDecodeBody reads the size-limited request body and decodes JSON
// into input. Reports false when an error was already written.
func readAndDecodeBody[In any](ctx context.Context, w http.ResponseWriter, r *http.Request, input *In) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err2 := r.Body.Close(); err == nil {
		err = err2
	}
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeErrorResponse(w, models.NewAPIError(http.StatusRequestEntityTooLarge,
				models.ErrorCodeValidationFailed, "Request body too large").WithDetail("limit", maxBytesErr.Limit))
			return false
		}
		slog.ErrorContext(ctx, "Failed to read request body", "err", err)
		writeErrorResponse(w, models.BadRequest("Failed to read request body"))
		return false
	}
	if len(body) > 0 {
		d := json.NewDecoder(bytes.NewReader(body))
		d.DisallowUnknownFields()
		if err := d.Decode(input); err != nil {
			slog.ErrorContext(ctx, "Failed to decode request body", "err", err)
			writeErrorResponse(w, models.BadRequest("Invalid request body"))
			return false
		}
	}
	return true
}

// writeJSONResponse writes the handler outcome: the output on success, the
// mapped error otherwise.
func writeJSONResponse[Out any](ctx context.Context, w http.ResponseWriter, output *Out, err error) {
	if err != nil {
		var ews models.ErrorWithStatus
		if errors.As(err, &ews) {
			slog.ErrorContext(ctx, "Handler error", "err", err, "statusCode", ews.StatusCode(), "code", ews.Code())
		} else {
			slog.ErrorContext(ctx, "Handler error", "err", err)
		}
		writeErrorResponse(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(output); err != nil {
		slog.ErrorContext(ctx, "Failed to encode response", "err", err)
	}
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

// bearerToken extracts the bearer token from the Authorization header.
func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", models.Unauthorized()
	}
	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", models.NewAPIError(http.StatusUnauthorized, models.ErrorCodeUnauthorized,
			"Invalid authorization header")
	}
	return token, nil
}

// Wrap adapts an unauthenticated handler with signature
// func(ctx, *In) (*Out, error) into an http.Handler. Path parameters
// populate fields tagged `path:"name"`, query parameters fields tagged
// `query:"name"`. *In must implement handlers.Validatable.
func Wrap[In any, PtrIn interface {
	*In
	handlers.Validatable
}, Out any](fn func(context.Context, PtrIn) (*Out, error), limiter *ratelimit.Limiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := addRequestMetadataToContext(r.Context(), r)
		if !checkRateLimit(w, limiter, reqctx.GetClientIP(r)) {
			return
		}
		input := new(In)
		if !readAndDecodeBody(ctx, w, r, input) {
			return
		}
		populatePathParams(r, input)
		populateQueryParams(r, input)
		if err := PtrIn(input).Validate(); err != nil {
			writeErrorResponse(w, err)
			return
		}
		output, err := fn(ctx, PtrIn(input))
		writeJSONResponse(ctx, w, output, err)
	})
}

// WrapAuth adapts an authenticated handler. The bearer token is validated
// against the token store, required to carry requiredScope when non-empty,
// and placed in the context for the handler.
func WrapAuth[In any, PtrIn interface {
	*In
	handlers.Validatable
}, Out any](fn func(context.Context, PtrIn) (*Out, error), tokens *oauth.TokenService, requiredScope string, limiter *ratelimit.Limiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := addRequestMetadataToContext(r.Context(), r)

		raw, err := bearerToken(r)
		if err != nil {
			writeErrorResponse(w, err)
			return
		}
		tok, err := tokens.GetAccessToken(ctx, raw)
		if err != nil {
			writeErrorResponse(w, err)
			return
		}
		if !oauth.VerifyScope(tok, requiredScope) {
			writeErrorResponse(w, models.Forbidden("missing required scope").WithDetail("scope", requiredScope))
			return
		}
		ctx = reqctx.WithToken(ctx, tok)

		// Authenticated requests are limited per client, not per IP.
		if !checkRateLimit(w, limiter, tok.Token.ClientID) {
			return
		}

		input := new(In)
		if !readAndDecodeBody(ctx, w, r, input) {
			return
		}
		populatePathParams(r, input)
		populateQueryParams(r, input)
		if err := PtrIn(input).Validate(); err != nil {
			writeErrorResponse(w, err)
			return
		}
		output, err := fn(ctx, PtrIn(input))
		writeJSONResponse(ctx, w, output, err)
	})
}

// populatePathParams extracts path parameters from the request and
// populates struct fields tagged `path:"paramName"`.
func populatePathParams(r *http.Request, input any) {
	val := reflect.ValueOf(input)
	if val.Kind() != reflect.Pointer {
		return
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Struct {
		return
	}
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("path")
		if tag == "" {
			continue
		}
		paramValue := r.PathValue(tag)
		if paramValue == "" {
			continue
		}
		if field.Type.Kind() == reflect.String {
			elem.Field(i).SetString(paramValue)
		}
	}
}

// populateQueryParams extracts query parameters from the request and
// populates struct fields tagged `query:"paramName"`.
func populateQueryParams(r *http.Request, input any) {
	val := reflect.ValueOf(input)
	if val.Kind() != reflect.Pointer {
		return
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Struct {
		return
	}
	query := r.URL.Query()
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		tag := field.Tag.Get("query")
		if tag == "" {
			continue
		}
		paramValue := query.Get(tag)
		if paramValue == "" {
			continue
		}
		fieldVal := elem.Field(i)
		switch field.Type.Kind() {
		case reflect.String:
			fieldVal.SetString(paramValue)
		case reflect.Int:
			if intVal, err := strconv.Atoi(paramValue); err == nil {
				fieldVal.SetInt(int64(intVal))
			}
		case reflect.Bool:
			if boolVal, err := strconv.ParseBool(paramValue); err == nil {
				fieldVal.SetBool(boolVal)
			}
		default:
			if fieldVal.CanAddr() {
				if unmarshaler, ok := fieldVal.Addr().Interface().(encoding.TextUnmarshaler); ok {
					_ = unmarshaler.UnmarshalText([]byte(paramValue))
				}
			}
		}
	}
}
