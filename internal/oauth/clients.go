// Package oauth implements the client-credentials grant over the resource
// store: registered clients with bcrypt-hashed secrets, JWT access tokens
// persisted as token documents, and a throttled purge of expired tokens.
package oauth

import (
	"context"
	"net/http"
	"slices"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/indecisive-app/indecisive/internal/filedb"
	"github.com/indecisive-app/indecisive/internal/models"
	"github.com/indecisive-app/indecisive/internal/mutex"
	"github.com/indecisive-app/indecisive/internal/resource"
)

// ClientDef describes the registered-clients collection.
var ClientDef = &filedb.Def{
	Namespace: "auth",
	Name:      "clients",
	Singular:  "client",
	Param:     "clientId",
	SortField: "name",
}

// GrantClientCredentials is the only grant type the token endpoint serves.
const GrantClientCredentials = "client_credentials"

// Well-known scopes.
const (
	ScopeAdmin  = "admin"
	ScopeGrader = "grader"
)

// ClientService manages registered OAuth2 clients.
type ClientService struct {
	col *resource.Collection[*models.Client]
}

// NewClientService creates a client service over the shared store.
func NewClientService(db *filedb.DB, locks *mutex.Table, lockTimeout time.Duration) *ClientService {
	col := resource.NewCollection(db, locks, ClientDef, resource.Options[*models.Client]{
		New:         func() *models.Client { return &models.Client{} },
		Less:        func(a, b *models.Client) bool { return a.Name < b.Name },
		LockTimeout: lockTimeout,
	})
	return &ClientService{col: col}
}

// Collection exposes the underlying CRUD collection for HTTP handlers.
func (s *ClientService) Collection() *resource.Collection[*models.Client] { return s.col }

// ClientSeed is the registration input: the secret arrives in plaintext
// and is stored only as a bcrypt hash.
type ClientSeed struct {
	ID     string
	Name   string
	Secret string
	Grants []string
	UserID string
	Scopes []string
}

// Create registers a client. The id is minted when absent.
func (s *ClientService) Create(ctx context.Context, seed ClientSeed) (*models.Client, error) {
	if seed.Name == "" {
		return nil, models.MissingField("name")
	}
	if seed.Secret == "" {
		return nil, models.MissingField("secret")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(seed.Secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.Internal("cannot hash client secret").Wrap(err)
	}
	grants := seed.Grants
	if grants == nil {
		grants = []string{GrantClientCredentials}
	}
	scopes := seed.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	c := &models.Client{
		Name:   seed.Name,
		Secret: string(hash),
		Client: models.ClientInfo{ID: seed.ID, Grants: grants},
		User:   models.ClientUser{UserID: seed.UserID, Scopes: scopes},
	}
	c.ID = seed.ID
	created, err := s.col.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	// The nested client info mirrors the document id for token claims.
	if created.Client.ID == "" {
		created, err = s.col.Update(ctx, created.ID, func(cur *models.Client) error {
			cur.Client.ID = cur.ID
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return created, nil
}

// Authenticate resolves a client by id and verifies its secret against the
// stored bcrypt hash. Unknown ids and wrong secrets are indistinguishable
// to the caller.
func (s *ClientService) Authenticate(ctx context.Context, id, secret string) (*models.Client, error) {
	c, err := s.col.Get(ctx, id)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, errInvalidCredentials()
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(c.Secret), []byte(secret)) != nil {
		return nil, errInvalidCredentials()
	}
	return c, nil
}

// Get resolves one client.
func (s *ClientService) Get(ctx context.Context, id string) (*models.Client, error) {
	return s.col.Get(ctx, id)
}

// List returns all clients with the secret hashes redacted.
func (s *ClientService) List(ctx context.Context) ([]*models.Client, error) {
	return s.col.List(ctx, func(c *models.Client) (*models.Client, bool) {
		redacted := *c
		redacted.Secret = ""
		return &redacted, true
	})
}

// Delete removes a client registration.
func (s *ClientService) Delete(ctx context.Context, id string) (bool, error) {
	removed, _, err := s.col.Delete(ctx, id, nil)
	return removed, err
}

// errInvalidCredentials is deliberately identical for unknown ids and
// wrong secrets.
func errInvalidCredentials() *models.APIError {
	return models.NewAPIError(http.StatusUnauthorized, models.ErrorCodeUnauthorized, "Invalid client credentials")
}

// HasGrant reports whether the client may use the given grant type.
func HasGrant(c *models.Client, grant string) bool {
	return slices.Contains(c.Client.Grants, grant)
}

// Bootstrap registers the given clients, skipping ids that already exist.
// It returns the ids actually created.
func (s *ClientService) Bootstrap(ctx context.Context, seeds []ClientSeed) ([]string, error) {
	var created []string
	for _, seed := range seeds {
		if seed.ID == "" {
			return created, models.MissingField("id")
		}
		if _, err := s.col.Get(ctx, seed.ID); err == nil {
			continue
		} else if !models.IsNotFound(err) {
			return created, err
		}
		if _, err := s.Create(ctx, seed); err != nil {
			if models.IsConflict(err) {
				continue
			}
			return created, err
		}
		created = append(created, seed.ID)
	}
	return created, nil
}
