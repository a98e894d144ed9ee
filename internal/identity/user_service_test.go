package identity

import (
	"context"
	"testing"

	"github.com/indecisive-app/indecisive/internal/filedb"
	"github.com/indecisive-app/indecisive/internal/models"
	"github.com/indecisive-app/indecisive/internal/mutex"
)

func newService(t *testing.T) *Service {
	t.Helper()
	db, err := filedb.New(t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}
	return NewService(db, mutex.NewTable(), 0)
}

func TestCreateValidates(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, &models.User{}); !models.HasCode(err, models.ErrorCodeMissingField) {
		t.Fatalf("nameless create = %v", err)
	}

	u, err := svc.Create(ctx, &models.User{Name: "Ada"})
	if err != nil {
		t.Fatal(err)
	}
	if u.OwnsSessions == nil || u.InvitedSessions == nil {
		t.Error("session lists are nil")
	}
}

func TestRename(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	u, err := svc.Create(ctx, &models.User{Name: "Ada"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Rename(ctx, u.ID, ""); !models.HasCode(err, models.ErrorCodeMissingField) {
		t.Errorf("empty rename = %v", err)
	}
	got, err := svc.Rename(ctx, u.ID, "Ada Lovelace")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Ada Lovelace" {
		t.Errorf("Name = %q", got.Name)
	}
}

func TestSessionRefs(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	u, err := svc.Create(ctx, &models.User{Name: "Ada"})
	if err != nil {
		t.Fatal(err)
	}

	for range 2 {
		// Second add of the same id is a no-op.
		if err := svc.AddOwnedSession(ctx, u.ID, "s1"); err != nil {
			t.Fatal(err)
		}
		if err := svc.AddInvitedSession(ctx, u.ID, "s2"); err != nil {
			t.Fatal(err)
		}
	}
	got, err := svc.Get(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.OwnsSessions) != 1 || len(got.InvitedSessions) != 1 {
		t.Fatalf("refs = %v / %v", got.OwnsSessions, got.InvitedSessions)
	}

	if err := svc.RemoveSessionRefs(ctx, u.ID, "s1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.RemoveSessionRefs(ctx, u.ID, "s2"); err != nil {
		t.Fatal(err)
	}
	got, err = svc.Get(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.OwnsSessions) != 0 || len(got.InvitedSessions) != 0 {
		t.Errorf("refs left behind: %v / %v", got.OwnsSessions, got.InvitedSessions)
	}
}

func TestListSorted(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	for _, name := range []string{"Charlie", "Ada", "Bob"} {
		if _, err := svc.Create(ctx, &models.User{Name: name}); err != nil {
			t.Fatal(err)
		}
	}
	all, err := svc.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Name != "Ada" || all[2].Name != "Charlie" {
		t.Errorf("unexpected order: %v, %v, %v", all[0].Name, all[1].Name, all[2].Name)
	}
}
