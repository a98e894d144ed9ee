package sessions

import (
	"context"
	"testing"

	"github.com/indecisive-app/indecisive/internal/filedb"
	"github.com/indecisive-app/indecisive/internal/identity"
	"github.com/indecisive-app/indecisive/internal/models"
	"github.com/indecisive-app/indecisive/internal/mutex"
)

func newServices(t *testing.T) (*Service, *identity.Service) {
	t.Helper()
	db, err := filedb.New(t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}
	locks := mutex.NewTable()
	users := identity.NewService(db, locks, 0)
	return NewService(db, locks, users, 0), users
}

func TestCreateRequiresOwner(t *testing.T) {
	svc, _ := newServices(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, &models.Session{OwnerID: "u1"}); !models.HasCode(err, models.ErrorCodeMissingField) {
		t.Errorf("missing name = %v", err)
	}
	if _, err := svc.Create(ctx, &models.Session{Name: "dinner"}); !models.HasCode(err, models.ErrorCodeMissingField) {
		t.Errorf("missing owner = %v", err)
	}
	if _, err := svc.Create(ctx, &models.Session{Name: "dinner", OwnerID: "ghost"}); !models.IsNotFound(err) {
		t.Errorf("unknown owner = %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	// Full flow: u1 creates a session, invites u2, u2 accepts and attends,
	// suggests pizza, and votes it up. Reading the session back shows each
	// step persisted, and both users carry the back-references.
	svc, users := newServices(t)
	ctx := context.Background()

	u1, err := users.Create(ctx, &models.User{Name: "Ada"})
	if err != nil {
		t.Fatal(err)
	}
	u2, err := users.Create(ctx, &models.User{Name: "Bob"})
	if err != nil {
		t.Fatal(err)
	}

	res, err := svc.Create(ctx, &models.Session{Name: "dinner", OwnerID: u1.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("warnings = %v", res.Warnings)
	}
	sess := res.Session

	owner, err := users.Get(ctx, u1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(owner.OwnsSessions) != 1 || owner.OwnsSessions[0] != sess.ID {
		t.Errorf("ownsSessions = %v", owner.OwnsSessions)
	}

	if _, err := svc.Invite(ctx, sess.ID, u2.ID); err != nil {
		t.Fatal(err)
	}
	invitee, err := users.Get(ctx, u2.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(invitee.InvitedSessions) != 1 || invitee.InvitedSessions[0] != sess.ID {
		t.Errorf("invitedSessions = %v", invitee.InvitedSessions)
	}

	if _, err := svc.Respond(ctx, sess.ID, u2.ID, true, models.AttendanceYes); err != nil {
		t.Fatal(err)
	}
	got, err := svc.Suggest(ctx, sess.ID, u2.ID, "pizza")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Suggestions) != 1 {
		t.Fatalf("suggestions = %d", len(got.Suggestions))
	}
	suggID := got.Suggestions[0].ID

	if _, err := svc.Vote(ctx, sess.ID, suggID, u2.ID, models.VoteUp); err != nil {
		t.Fatal(err)
	}

	final, err := svc.Get(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	inv := final.Invitation(u2.ID)
	if inv == nil || !inv.Accepted || inv.Attending != models.AttendanceYes {
		t.Errorf("invitation = %+v", inv)
	}
	sugg := final.Suggestion(suggID)
	if sugg == nil || sugg.Name != "pizza" {
		t.Fatalf("suggestion = %+v", sugg)
	}
	if len(sugg.UpVoteUserIDs) != 1 || sugg.UpVoteUserIDs[0] != u2.ID {
		t.Errorf("upVoteUserIds = %v", sugg.UpVoteUserIDs)
	}
	if !final.Updated.After(final.Created) && !final.Updated.Equal(final.Created) {
		t.Errorf("timestamps: created %v updated %v", final.Created, final.Updated)
	}
}

func TestSuggestRequiresAccess(t *testing.T) {
	svc, users := newServices(t)
	ctx := context.Background()

	u1, err := users.Create(ctx, &models.User{Name: "Ada"})
	if err != nil {
		t.Fatal(err)
	}
	outsider, err := users.Create(ctx, &models.User{Name: "Eve"})
	if err != nil {
		t.Fatal(err)
	}
	res, err := svc.Create(ctx, &models.Session{Name: "dinner", OwnerID: u1.ID})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Suggest(ctx, res.Session.ID, outsider.ID, "tacos"); !models.HasCode(err, models.ErrorCodeForbidden) {
		t.Errorf("outsider suggest = %v", err)
	}
	if _, err := svc.Vote(ctx, res.Session.ID, "sg1", outsider.ID, models.VoteUp); !models.HasCode(err, models.ErrorCodeForbidden) {
		t.Errorf("outsider vote = %v", err)
	}
	// The owner needs no invitation.
	if _, err := svc.Suggest(ctx, res.Session.ID, u1.ID, "tacos"); err != nil {
		t.Errorf("owner suggest = %v", err)
	}
}

func TestListVisibleTo(t *testing.T) {
	svc, users := newServices(t)
	ctx := context.Background()

	u1, _ := users.Create(ctx, &models.User{Name: "Ada"})
	u2, _ := users.Create(ctx, &models.User{Name: "Bob"})
	u3, _ := users.Create(ctx, &models.User{Name: "Eve"})

	owned, err := svc.Create(ctx, &models.Session{Name: "alpha", OwnerID: u1.ID})
	if err != nil {
		t.Fatal(err)
	}
	other, err := svc.Create(ctx, &models.Session{Name: "beta", OwnerID: u2.ID})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Invite(ctx, other.Session.ID, u1.ID); err != nil {
		t.Fatal(err)
	}

	visible, err := svc.ListVisibleTo(ctx, u1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(visible) != 2 {
		t.Fatalf("u1 sees %d sessions", len(visible))
	}
	if visible[0].ID != owned.Session.ID || visible[1].ID != other.Session.ID {
		t.Errorf("order = %s, %s", visible[0].Name, visible[1].Name)
	}

	none, err := svc.ListVisibleTo(ctx, u3.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("u3 sees %d sessions", len(none))
	}
}

func TestDeleteCascadesBackRefs(t *testing.T) {
	svc, users := newServices(t)
	ctx := context.Background()

	u1, _ := users.Create(ctx, &models.User{Name: "Ada"})
	u2, _ := users.Create(ctx, &models.User{Name: "Bob"})
	res, err := svc.Create(ctx, &models.Session{Name: "dinner", OwnerID: u1.ID})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Invite(ctx, res.Session.ID, u2.ID); err != nil {
		t.Fatal(err)
	}

	removed, warnings, err := svc.Delete(ctx, res.Session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Fatal("not removed")
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}

	owner, _ := users.Get(ctx, u1.ID)
	if len(owner.OwnsSessions) != 0 {
		t.Errorf("owner back-ref left behind: %v", owner.OwnsSessions)
	}
	invitee, _ := users.Get(ctx, u2.ID)
	if len(invitee.InvitedSessions) != 0 {
		t.Errorf("invitee back-ref left behind: %v", invitee.InvitedSessions)
	}

	removed, _, err = svc.Delete(ctx, res.Session.ID)
	if err != nil || removed {
		t.Errorf("second delete = %v, %v", removed, err)
	}
}

func TestInviteDeletedUser(t *testing.T) {
	// Re-inviting a user whose document is gone fails, but the invitation
	// recorded while the user existed stays on the session.
	svc, users := newServices(t)
	ctx := context.Background()

	u1, _ := users.Create(ctx, &models.User{Name: "Ada"})
	u2, _ := users.Create(ctx, &models.User{Name: "Bob"})
	res, err := svc.Create(ctx, &models.Session{Name: "dinner", OwnerID: u1.ID})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Invite(ctx, res.Session.ID, u2.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := users.Delete(ctx, u2.ID); err != nil {
		t.Fatal(err)
	}
	out, err := svc.Invite(ctx, res.Session.ID, u2.ID)
	if !models.IsNotFound(err) {
		t.Fatalf("invite of deleted user = %v, %v", out, err)
	}

	// The earlier invitation is still on the session.
	sess, err := svc.Get(ctx, res.Session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Invitation(u2.ID) == nil {
		t.Error("invitation lost")
	}
}
