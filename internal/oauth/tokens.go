package oauth

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/indecisive-app/indecisive/internal/filedb"
	"github.com/indecisive-app/indecisive/internal/genid"
	"github.com/indecisive-app/indecisive/internal/models"
	"github.com/indecisive-app/indecisive/internal/mutex"
	"github.com/indecisive-app/indecisive/internal/resource"
)

// TokenDef describes the issued-tokens collection.
var TokenDef = &filedb.Def{
	Namespace: "auth",
	Name:      "tokens",
	Singular:  "token",
	Param:     "tokenId",
	SortField: "name",
}

// DefaultTokenTTL is the access token lifetime when none is configured.
const DefaultTokenTTL = time.Hour

// tokenIDLength sizes the content-hash ids of token documents. The JWT
// itself is too long for a filename; the hash is the lookup key.
const tokenIDLength = 16

// TokenService issues, validates, and purges access tokens.
type TokenService struct {
	col     *resource.Collection[*models.Token]
	clients *ClientService
	secret  []byte
	ttl     time.Duration
}

// NewTokenService creates a token service. jwtSecret signs and verifies
// access tokens; ttl defaults to DefaultTokenTTL when zero.
func NewTokenService(db *filedb.DB, locks *mutex.Table, clients *ClientService, jwtSecret string, ttl, lockTimeout time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	col := resource.NewCollection(db, locks, TokenDef, resource.Options[*models.Token]{
		New:         func() *models.Token { return &models.Token{} },
		Less:        func(a, b *models.Token) bool { return a.Name < b.Name },
		LockTimeout: lockTimeout,
	})
	return &TokenService{col: col, clients: clients, secret: []byte(jwtSecret), ttl: ttl}
}

// Collection exposes the underlying CRUD collection for HTTP handlers.
func (s *TokenService) Collection() *resource.Collection[*models.Token] { return s.col }

// tokenDocID derives the document id from the access token string, so
// bearer validation resolves the stored record without a scan.
func tokenDocID(token string) (string, error) {
	return genid.ContentHash(token, tokenIDLength)
}

// Issue runs the client-credentials grant: authenticate the client, check
// the grant and requested scope, mint a signed JWT, and persist the token
// document.
func (s *TokenService) Issue(ctx context.Context, clientID, clientSecret, scope string) (*models.Token, error) {
	client, err := s.clients.Authenticate(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}
	if !HasGrant(client, GrantClientCredentials) {
		return nil, models.Forbidden("grant type not allowed for this client")
	}
	if err := ValidateScope(client, scope); err != nil {
		return nil, err
	}

	now := time.Now()
	expiresAt := now.Add(s.ttl)
	claims := jwt.MapClaims{
		"sub": client.User.UserID,
		"cid": client.Client.ID,
		"exp": expiresAt.Unix(),
		"iat": now.Unix(),
	}
	if scope != "" {
		claims["scope"] = scope
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, models.Internal("cannot sign access token").Wrap(err)
	}

	tok := &models.Token{
		Name: client.Name,
		Token: models.TokenPayload{
			AccessToken:          signed,
			AccessTokenExpiresAt: expiresAt,
			Scope:                scope,
			ClientID:             client.Client.ID,
			UserID:               client.User.UserID,
		},
	}
	id, err := tokenDocID(signed)
	if err != nil {
		return nil, models.Internal("cannot derive token id").Wrap(err)
	}
	tok.ID = id
	return s.col.Create(ctx, tok)
}

// GetAccessToken validates a bearer token string: signature and expiry via
// the JWT, then presence of the stored document. A missing document means
// the token was revoked or purged.
func (s *TokenService) GetAccessToken(ctx context.Context, token string) (*models.Token, error) {
	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return nil, errInvalidToken().Wrap(err)
	}
	id, err := tokenDocID(token)
	if err != nil {
		return nil, models.Internal("cannot derive token id").Wrap(err)
	}
	tok, err := s.col.Get(ctx, id)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, errInvalidToken()
		}
		return nil, err
	}
	if tok.Expired(time.Now()) {
		return nil, errInvalidToken()
	}
	return tok, nil
}

// VerifyScope reports whether the token grants the required scope. An
// empty requirement always passes; the token's scope field is a
// space-separated list.
func VerifyScope(tok *models.Token, required string) bool {
	if required == "" {
		return true
	}
	return slices.Contains(strings.Fields(tok.Token.Scope), required)
}

// ValidateScope checks that every requested scope is allowed for the
// client.
func ValidateScope(client *models.Client, requested string) error {
	for _, scope := range strings.Fields(requested) {
		if !client.HasScope(scope) {
			return models.Forbidden("scope not allowed for this client").WithDetail("scope", scope)
		}
	}
	return nil
}

// List returns all stored tokens with the raw token strings redacted.
func (s *TokenService) List(ctx context.Context) ([]*models.Token, error) {
	return s.col.List(ctx, func(t *models.Token) (*models.Token, bool) {
		redacted := *t
		redacted.Token.AccessToken = ""
		return &redacted, true
	})
}

// Revoke deletes the document backing the given token string. Validation
// fails afterwards even though the JWT is still within its lifetime.
func (s *TokenService) Revoke(ctx context.Context, token string) (bool, error) {
	id, err := tokenDocID(token)
	if err != nil {
		return false, models.Internal("cannot derive token id").Wrap(err)
	}
	removed, _, err := s.col.Delete(ctx, id, nil)
	return removed, err
}

func errInvalidToken() *models.APIError {
	return models.NewAPIError(http.StatusUnauthorized, models.ErrorCodeUnauthorized, "Invalid or expired token")
}
