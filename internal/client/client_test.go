package client_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/indecisive-app/indecisive/internal/client"
	"github.com/indecisive-app/indecisive/internal/filedb"
	"github.com/indecisive-app/indecisive/internal/identity"
	"github.com/indecisive-app/indecisive/internal/models"
	"github.com/indecisive-app/indecisive/internal/mutex"
	"github.com/indecisive-app/indecisive/internal/oauth"
	"github.com/indecisive-app/indecisive/internal/rubrics"
	"github.com/indecisive-app/indecisive/internal/server"
	"github.com/indecisive-app/indecisive/internal/server/handlers"
	"github.com/indecisive-app/indecisive/internal/sessions"
)

// startServer spins up the full API over a temp directory and returns its
// URL plus the services needed to register test users and clients.
func startServer(t *testing.T) (string, *identity.Service, *oauth.ClientService) {
	t.Helper()
	db, err := filedb.New(t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}
	locks := mutex.NewTable()
	users := identity.NewService(db, locks, 0)
	clients := oauth.NewClientService(db, locks, 0)
	svc := &handlers.Services{
		Users:    users,
		Sessions: sessions.NewService(db, locks, users, 0),
		Clients:  clients,
		Tokens:   oauth.NewTokenService(db, locks, clients, "client-test-secret", time.Hour, 0),
		Rubrics:  rubrics.NewService(db, locks, 0),
	}
	srv := httptest.NewServer(server.NewRouter(svc, "test", nil))
	t.Cleanup(srv.Close)
	return srv.URL, users, clients
}

// registerActor creates a user and a client bound to it, and returns a
// ready API client.
func registerActor(t *testing.T, baseURL, name string, users *identity.Service, clients *oauth.ClientService) (*client.Client, *models.User) {
	t.Helper()
	ctx := context.Background()
	u, err := users.Create(ctx, &models.User{Name: name})
	if err != nil {
		t.Fatal(err)
	}
	clientID := "client-" + u.ID
	if _, err := clients.Create(ctx, oauth.ClientSeed{
		ID:     clientID,
		Name:   name + " device",
		Secret: "s3cret",
		UserID: u.ID,
	}); err != nil {
		t.Fatal(err)
	}
	return client.New(ctx, baseURL, clientID, "s3cret"), u
}

func TestSessionWorkflow(t *testing.T) {
	baseURL, users, clients := startServer(t)
	owner, _ := registerActor(t, baseURL, "Ada", users, clients)
	invitee, inviteeUser := registerActor(t, baseURL, "Bob", users, clients)
	ctx := context.Background()

	sess, err := owner.CreateSession(ctx, "dinner")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Name != "dinner" || sess.ID == "" {
		t.Fatalf("session = %+v", sess)
	}

	if _, err := owner.Invite(ctx, sess.ID, inviteeUser.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := invitee.Respond(ctx, sess.ID, inviteeUser.ID, true, models.AttendanceYes); err != nil {
		t.Fatal(err)
	}
	after, err := invitee.Suggest(ctx, sess.ID, "pizza")
	if err != nil {
		t.Fatal(err)
	}
	if len(after.Suggestions) != 1 {
		t.Fatalf("suggestions = %+v", after.Suggestions)
	}
	voted, err := invitee.Vote(ctx, sess.ID, after.Suggestions[0].ID, models.VoteUp)
	if err != nil {
		t.Fatal(err)
	}
	sugg := voted.Suggestion(after.Suggestions[0].ID)
	if sugg == nil || len(sugg.UpVoteUserIDs) != 1 || sugg.UpVoteUserIDs[0] != inviteeUser.ID {
		t.Errorf("suggestion = %+v", sugg)
	}

	list, err := invitee.ListSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != sess.ID {
		t.Errorf("list = %+v", list)
	}
}

func TestErrorsRoundTrip(t *testing.T) {
	baseURL, users, clients := startServer(t)
	c, _ := registerActor(t, baseURL, "Ada", users, clients)
	ctx := context.Background()

	_, err := c.GetSession(ctx, "no-such-session")
	if !models.IsNotFound(err) {
		t.Errorf("err = %v", err)
	}

	sess, err := c.CreateSession(ctx, "lunch")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Vote(ctx, sess.ID, "ghost", models.VoteUp); !models.IsNotFound(err) {
		t.Errorf("err = %v", err)
	}
}

func TestBadCredentialsFailFast(t *testing.T) {
	baseURL, _, _ := startServer(t)
	ctx := context.Background()
	c := client.New(ctx, baseURL, "nobody", "wrong")
	if _, err := c.CreateSession(ctx, "x"); err == nil {
		t.Error("expected token fetch to fail")
	}
}
