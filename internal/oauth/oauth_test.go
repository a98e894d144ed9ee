package oauth

import (
	"context"
	"testing"
	"time"

	"github.com/indecisive-app/indecisive/internal/filedb"
	"github.com/indecisive-app/indecisive/internal/models"
	"github.com/indecisive-app/indecisive/internal/mutex"
)

func newOAuth(t *testing.T, ttl time.Duration) (*ClientService, *TokenService) {
	t.Helper()
	db, err := filedb.New(t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}
	locks := mutex.NewTable()
	clients := NewClientService(db, locks, 0)
	tokens := NewTokenService(db, locks, clients, "test-jwt-secret", ttl, 0)
	return clients, tokens
}

func seedClient(t *testing.T, clients *ClientService, scopes ...string) *models.Client {
	t.Helper()
	c, err := clients.Create(context.Background(), ClientSeed{
		ID:     "mobile",
		Name:   "Mobile app",
		Secret: "hunter2",
		UserID: "u1",
		Scopes: scopes,
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestAuthenticate(t *testing.T) {
	clients, _ := newOAuth(t, 0)
	ctx := context.Background()
	c := seedClient(t, clients)

	if c.Secret == "hunter2" {
		t.Fatal("secret stored in plaintext")
	}
	if c.Client.ID != "mobile" {
		t.Errorf("nested client id = %q", c.Client.ID)
	}

	got, err := clients.Authenticate(ctx, "mobile", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "mobile" {
		t.Errorf("id = %q", got.ID)
	}

	// Wrong secret and unknown id fail identically.
	_, wrongSecret := clients.Authenticate(ctx, "mobile", "nope")
	_, unknownID := clients.Authenticate(ctx, "ghost", "hunter2")
	for _, err := range []error{wrongSecret, unknownID} {
		if !models.HasCode(err, models.ErrorCodeUnauthorized) {
			t.Errorf("err = %v, want unauthorized", err)
		}
	}
	if wrongSecret.Error() != unknownID.Error() {
		t.Errorf("distinguishable failures: %q vs %q", wrongSecret, unknownID)
	}
}

func TestListRedactsSecrets(t *testing.T) {
	clients, _ := newOAuth(t, 0)
	seedClient(t, clients)

	all, err := clients.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Secret != "" {
		t.Errorf("list = %+v", all)
	}
	// Redaction does not touch the stored document.
	stored, err := clients.Get(context.Background(), "mobile")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Secret == "" {
		t.Error("stored secret lost")
	}
}

func TestIssueAndValidate(t *testing.T) {
	clients, tokens := newOAuth(t, time.Hour)
	ctx := context.Background()
	seedClient(t, clients, ScopeGrader)

	tok, err := tokens.Issue(ctx, "mobile", "hunter2", ScopeGrader)
	if err != nil {
		t.Fatal(err)
	}
	if tok.Token.AccessToken == "" || tok.Token.ClientID != "mobile" || tok.Token.UserID != "u1" {
		t.Fatalf("payload = %+v", tok.Token)
	}
	if len(tok.ID) != tokenIDLength {
		t.Errorf("id length = %d", len(tok.ID))
	}

	got, err := tokens.GetAccessToken(ctx, tok.Token.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != tok.ID {
		t.Errorf("resolved %q, want %q", got.ID, tok.ID)
	}
	if !VerifyScope(got, ScopeGrader) {
		t.Error("granted scope not verified")
	}
	if VerifyScope(got, ScopeAdmin) {
		t.Error("ungranted scope verified")
	}
	if !VerifyScope(got, "") {
		t.Error("empty requirement rejected")
	}

	if _, err := tokens.GetAccessToken(ctx, "not-a-jwt"); !models.HasCode(err, models.ErrorCodeUnauthorized) {
		t.Errorf("garbage token = %v", err)
	}
}

func TestIssueRejectsUngrantedScope(t *testing.T) {
	clients, tokens := newOAuth(t, 0)
	ctx := context.Background()
	seedClient(t, clients, ScopeGrader)

	if _, err := tokens.Issue(ctx, "mobile", "hunter2", ScopeAdmin); !models.HasCode(err, models.ErrorCodeForbidden) {
		t.Errorf("ungranted scope = %v", err)
	}
	if _, err := tokens.Issue(ctx, "mobile", "wrong", ""); !models.HasCode(err, models.ErrorCodeUnauthorized) {
		t.Errorf("bad secret = %v", err)
	}
}

func TestRevoke(t *testing.T) {
	clients, tokens := newOAuth(t, time.Hour)
	ctx := context.Background()
	seedClient(t, clients)

	tok, err := tokens.Issue(ctx, "mobile", "hunter2", "")
	if err != nil {
		t.Fatal(err)
	}
	removed, err := tokens.Revoke(ctx, tok.Token.AccessToken)
	if err != nil || !removed {
		t.Fatalf("revoke = %v, %v", removed, err)
	}
	// The JWT is still within its lifetime but its document is gone.
	if _, err := tokens.GetAccessToken(ctx, tok.Token.AccessToken); !models.HasCode(err, models.ErrorCodeUnauthorized) {
		t.Errorf("revoked token = %v", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	_, tokens := newOAuth(t, time.Hour)
	ctx := context.Background()

	// Three tokens straddling now: only the one in the past goes.
	now := time.Now()
	mk := func(id string, expiresAt time.Time) {
		tok := &models.Token{Name: id, Token: models.TokenPayload{
			AccessToken:          "tok-" + id,
			AccessTokenExpiresAt: expiresAt,
			ClientID:             "mobile",
		}}
		tok.SetID(id)
		if _, err := tokens.Collection().Create(ctx, tok); err != nil {
			t.Fatal(err)
		}
	}
	mk("past", now.Add(-10*time.Second))
	mk("near", now.Add(10*time.Second))
	mk("far", now.Add(20*time.Second))

	deleted, err := tokens.PurgeExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 1 || deleted[0] != "past" {
		t.Fatalf("deleted = %v", deleted)
	}
	remaining, err := tokens.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 2 {
		t.Errorf("%d tokens remain", len(remaining))
	}
}
