// Package reqctx passes request metadata and the authenticated principal
// through the context.
package reqctx

import (
	"context"
	"net/http"
	"strings"

	"github.com/indecisive-app/indecisive/internal/models"
)

// GetClientIP extracts the client IP from an HTTP request, checking
// X-Forwarded-For and X-Real-IP headers for proxied requests.
func GetClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs: "client, proxy1, proxy2".
	// The leftmost IP is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, found := strings.Cut(xff, ","); found {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	addr := r.RemoteAddr
	// IPv6 addresses look like [::1]:8080.
	if strings.HasPrefix(addr, "[") {
		if host, _, found := strings.Cut(addr, "]:"); found {
			return host[1:]
		}
		return strings.Trim(addr, "[]")
	}
	if host, _, found := strings.Cut(addr, ":"); found {
		return host
	}
	return addr
}

type contextKey string

const (
	keyClientIP  contextKey = "clientIP"
	keyUserAgent contextKey = "userAgent"
	keyToken     contextKey = "token"
)

// WithClientIP adds the client IP to the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, keyClientIP, ip)
}

// WithUserAgent adds the User-Agent to the context.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, keyUserAgent, ua)
}

// WithToken adds the validated access token to the context.
func WithToken(ctx context.Context, tok *models.Token) context.Context {
	return context.WithValue(ctx, keyToken, tok)
}

// ClientIP extracts the client IP from the context.
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(keyClientIP).(string); ok {
		return v
	}
	return ""
}

// UserAgent extracts the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if v, ok := ctx.Value(keyUserAgent).(string); ok {
		return v
	}
	return ""
}

// Token extracts the validated access token from the context, nil when the
// request was unauthenticated.
func Token(ctx context.Context) *models.Token {
	if v, ok := ctx.Value(keyToken).(*models.Token); ok {
		return v
	}
	return nil
}

// UserID returns the user the authenticated client acts as, "" when
// unauthenticated.
func UserID(ctx context.Context) string {
	if tok := Token(ctx); tok != nil {
		return tok.Token.UserID
	}
	return ""
}
