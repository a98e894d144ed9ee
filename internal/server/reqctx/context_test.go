package reqctx

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/indecisive-app/indecisive/internal/models"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr with port", "10.0.0.1:1234", nil, "10.0.0.1"},
		{"ipv6 with port", "[::1]:8080", nil, "::1"},
		{"x-forwarded-for single", "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "203.0.113.7"}, "203.0.113.7"},
		{"x-forwarded-for chain", "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.2"}, "203.0.113.7"},
		{"x-real-ip", "10.0.0.1:1234", map[string]string{"X-Real-IP": "203.0.113.9"}, "203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := GetClientIP(r); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	if Token(ctx) != nil || UserID(ctx) != "" {
		t.Fatal("empty context carries a token")
	}
	tok := &models.Token{Token: models.TokenPayload{UserID: "u1"}}
	ctx = WithToken(ctx, tok)
	if Token(ctx) != tok || UserID(ctx) != "u1" {
		t.Error("token not carried through context")
	}
}
