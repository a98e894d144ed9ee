// Pure transformations of the session aggregate. Each runs between a
// locked re-read and a persist in Service; none touches storage.

// Package sessions implements the scheduling/voting aggregate: invite,
// respond, suggest, and vote operations on session documents.
package sessions

import (
	"fmt"
	"slices"

	"github.com/indecisive-app/indecisive/internal/models"
)

// AddInvitation appends an invitation for userID with the default
// undecided state. Inviting an already-invited user is a no-op that
// reports false and leaves any prior response untouched.
func AddInvitation(s *models.Session, userID string) bool {
	if s.Invitation(userID) != nil {
		return false
	}
	s.Invitations = append(s.Invitations, models.Invitation{
		UserID:    userID,
		Accepted:  false,
		Attending: models.AttendanceUndecided,
	})
	return true
}

// UpdateResponse records userID's answer to their invitation. A user
// without an invitation cannot respond.
func UpdateResponse(s *models.Session, userID string, accepted bool, attending models.Attendance) error {
	inv := s.Invitation(userID)
	if inv == nil {
		return models.Forbidden(fmt.Sprintf("user %q is not invited to session %q", userID, s.ID))
	}
	switch attending {
	case models.AttendanceYes, models.AttendanceNo, models.AttendanceUndecided:
	default:
		return models.BadRequest(fmt.Sprintf("invalid attendance %q", attending))
	}
	inv.Accepted = accepted
	inv.Attending = attending
	return nil
}

// AddSuggestion appends a suggestion with empty vote lists. A suggestion
// whose name already exists (case-sensitive exact match) is a no-op; the
// existing suggestion is returned with false.
func AddSuggestion(s *models.Session, name, id string) (*models.Suggestion, bool) {
	for i := range s.Suggestions {
		if s.Suggestions[i].Name == name {
			return &s.Suggestions[i], false
		}
	}
	s.Suggestions = append(s.Suggestions, models.Suggestion{
		ID:              id,
		Name:            name,
		UpVoteUserIDs:   []string{},
		DownVoteUserIDs: []string{},
	})
	return &s.Suggestions[len(s.Suggestions)-1], true
}

// CastVote applies userID's vote on a suggestion. Any prior up or down
// vote by the user is cleared first, so a voter appears in at most one
// list; VoteNone retracts without adding.
func CastVote(s *models.Session, suggestionID, userID string, vote models.Vote) error {
	sugg := s.Suggestion(suggestionID)
	if sugg == nil {
		return models.NotFound("suggestion").WithDetail("id", suggestionID)
	}
	drop := func(ids []string) []string {
		return slices.DeleteFunc(ids, func(id string) bool { return id == userID })
	}
	sugg.UpVoteUserIDs = drop(sugg.UpVoteUserIDs)
	sugg.DownVoteUserIDs = drop(sugg.DownVoteUserIDs)
	switch vote {
	case models.VoteUp:
		sugg.UpVoteUserIDs = append(sugg.UpVoteUserIDs, userID)
	case models.VoteDown:
		sugg.DownVoteUserIDs = append(sugg.DownVoteUserIDs, userID)
	case models.VoteNone:
		// Retraction: the voter now appears in neither list.
	default:
		return models.BadRequest(fmt.Sprintf("invalid vote %q", vote))
	}
	return nil
}
