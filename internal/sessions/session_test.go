package sessions

import (
	"slices"
	"testing"

	"github.com/indecisive-app/indecisive/internal/models"
)

func newSession(id, ownerID string) *models.Session {
	s := &models.Session{OwnerID: ownerID, Name: "test"}
	s.ID = id
	return s
}

func TestAddInvitationUnique(t *testing.T) {
	s := newSession("s1", "u1")
	if !AddInvitation(s, "u2") {
		t.Fatal("first invite rejected")
	}
	// Respond, then invite again: the second invite must be a no-op that
	// does not reset the response to defaults.
	if err := UpdateResponse(s, "u2", true, models.AttendanceYes); err != nil {
		t.Fatal(err)
	}
	if AddInvitation(s, "u2") {
		t.Fatal("duplicate invite not a no-op")
	}
	if len(s.Invitations) != 1 {
		t.Fatalf("invitations = %d", len(s.Invitations))
	}
	inv := s.Invitations[0]
	if !inv.Accepted || inv.Attending != models.AttendanceYes {
		t.Errorf("re-invite reset response: %+v", inv)
	}
}

func TestUpdateResponseNotInvited(t *testing.T) {
	s := newSession("s1", "u1")
	err := UpdateResponse(s, "stranger", true, models.AttendanceYes)
	if !models.HasCode(err, models.ErrorCodeForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}
}

func TestUpdateResponseRejectsBadAttendance(t *testing.T) {
	s := newSession("s1", "u1")
	AddInvitation(s, "u2")
	if err := UpdateResponse(s, "u2", true, "maybe"); err == nil {
		t.Fatal("invalid attendance accepted")
	}
}

func TestAddSuggestionIdempotent(t *testing.T) {
	s := newSession("s1", "u1")
	first, added := AddSuggestion(s, "pizza", "sg1")
	if !added || first.ID != "sg1" {
		t.Fatalf("first add = %+v, %v", first, added)
	}
	second, added := AddSuggestion(s, "pizza", "sg2")
	if added {
		t.Fatal("duplicate name added")
	}
	if second.ID != "sg1" {
		t.Errorf("duplicate returned %q, want existing suggestion", second.ID)
	}
	if len(s.Suggestions) != 1 {
		t.Fatalf("suggestions = %d", len(s.Suggestions))
	}
	// Matching is case-sensitive: a different casing is a new suggestion.
	if _, added := AddSuggestion(s, "Pizza", "sg3"); !added {
		t.Error("case-different name treated as duplicate")
	}
}

func TestCastVoteExclusive(t *testing.T) {
	s := newSession("s1", "u1")
	AddSuggestion(s, "pizza", "sg1")

	if err := CastVote(s, "sg1", "u2", models.VoteUp); err != nil {
		t.Fatal(err)
	}
	sugg := s.Suggestion("sg1")
	if !slices.Contains(sugg.UpVoteUserIDs, "u2") {
		t.Fatal("up vote not recorded")
	}

	if err := CastVote(s, "sg1", "u2", models.VoteDown); err != nil {
		t.Fatal(err)
	}
	if slices.Contains(sugg.UpVoteUserIDs, "u2") {
		t.Error("voter still in upVoteUserIds after down vote")
	}
	if !slices.Contains(sugg.DownVoteUserIDs, "u2") {
		t.Error("down vote not recorded")
	}

	// "none" retracts: the voter appears in neither list.
	if err := CastVote(s, "sg1", "u2", models.VoteNone); err != nil {
		t.Fatal(err)
	}
	if slices.Contains(sugg.UpVoteUserIDs, "u2") || slices.Contains(sugg.DownVoteUserIDs, "u2") {
		t.Error("retracted voter still present")
	}
}

func TestCastVoteUnknownSuggestion(t *testing.T) {
	s := newSession("s1", "u1")
	err := CastVote(s, "nope", "u2", models.VoteUp)
	if !models.IsNotFound(err) {
		t.Fatalf("err = %v, want not-found", err)
	}
}

func TestCastVoteRejectsBadVote(t *testing.T) {
	s := newSession("s1", "u1")
	AddSuggestion(s, "pizza", "sg1")
	if err := CastVote(s, "sg1", "u2", "sideways"); err == nil {
		t.Fatal("invalid vote accepted")
	}
}
