package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/indecisive-app/indecisive/internal/filedb"
	"github.com/indecisive-app/indecisive/internal/genid"
	"github.com/indecisive-app/indecisive/internal/identity"
	"github.com/indecisive-app/indecisive/internal/models"
	"github.com/indecisive-app/indecisive/internal/mutex"
	"github.com/indecisive-app/indecisive/internal/resource"
)

// SessionDef describes the sessions collection.
var SessionDef = &filedb.Def{
	Namespace: "indecisive",
	Name:      "sessions",
	Singular:  "session",
	Param:     "sessionId",
	SortField: "name",
}

// Result is the outcome of a session mutation. Warnings carry the
// best-effort failures of secondary entity updates (user back-references):
// the session change is committed even when those fail.
type Result struct {
	Session  *models.Session `json:"session"`
	Warnings []string        `json:"warnings,omitempty"`
}

// Service performs the locked read-modify-write cycles on session
// aggregates and maintains user back-references.
type Service struct {
	col   *resource.Collection[*models.Session]
	users *identity.Service
}

// NewService creates a session service over the shared store and locks.
func NewService(db *filedb.DB, locks *mutex.Table, users *identity.Service, lockTimeout time.Duration) *Service {
	col := resource.NewCollection(db, locks, SessionDef, resource.Options[*models.Session]{
		New:         func() *models.Session { return &models.Session{} },
		Less:        func(a, b *models.Session) bool { return a.Name < b.Name },
		LockTimeout: lockTimeout,
	})
	return &Service{col: col, users: users}
}

// Collection exposes the underlying CRUD collection for HTTP handlers.
func (s *Service) Collection() *resource.Collection[*models.Session] { return s.col }

// Create persists a new session owned by ownerID and records the owner's
// back-reference. The owner must exist.
func (s *Service) Create(ctx context.Context, sess *models.Session) (*Result, error) {
	if sess.Name == "" {
		return nil, models.MissingField("name")
	}
	if sess.OwnerID == "" {
		return nil, models.MissingField("ownerId")
	}
	if _, err := s.users.Get(ctx, sess.OwnerID); err != nil {
		return nil, err
	}
	if sess.Invitations == nil {
		sess.Invitations = []models.Invitation{}
	}
	if sess.Suggestions == nil {
		sess.Suggestions = []models.Suggestion{}
	}
	created, err := s.col.Create(ctx, sess)
	if err != nil {
		return nil, err
	}
	res := &Result{Session: created}
	if err := s.users.AddOwnedSession(ctx, created.OwnerID, created.ID); err != nil {
		res.Warnings = append(res.Warnings, s.warn(ctx, "record owned session", created.OwnerID, created.ID, err))
	}
	return res, nil
}

// Get resolves one session.
func (s *Service) Get(ctx context.Context, id string) (*models.Session, error) {
	return s.col.Get(ctx, id)
}

// ListVisibleTo returns the sessions viewerID owns or is invited to,
// hiding the rest.
func (s *Service) ListVisibleTo(ctx context.Context, viewerID string) ([]*models.Session, error) {
	return s.col.List(ctx, func(sess *models.Session) (*models.Session, bool) {
		return sess, sess.CanView(viewerID)
	})
}

// Delete removes a session and cascades removal of its back-references
// from the owner and every invitee. Each cascade step is reported
// individually; failures do not abort the delete.
func (s *Service) Delete(ctx context.Context, id string) (bool, []string, error) {
	removed, cascadeErrs, err := s.col.Delete(ctx, id, func(ctx context.Context, deleted *models.Session) []error {
		var errs []error
		touched := map[string]bool{deleted.OwnerID: true}
		for _, inv := range deleted.Invitations {
			touched[inv.UserID] = true
		}
		for userID := range touched {
			if err := s.users.RemoveSessionRefs(ctx, userID, deleted.ID); err != nil && !models.IsNotFound(err) {
				errs = append(errs, fmt.Errorf("user %s: %w", userID, err))
			}
		}
		return errs
	})
	if err != nil {
		return false, nil, err
	}
	var warnings []string
	for _, cerr := range cascadeErrs {
		slog.WarnContext(ctx, "Session delete cascade failure", "session", id, "err", cerr)
		warnings = append(warnings, cerr.Error())
	}
	return removed, warnings, nil
}

// Invite adds userID to the session's invitations and records the
// back-reference on the invited user. The session update commits first;
// a back-reference failure is surfaced as a warning, not a rollback.
func (s *Service) Invite(ctx context.Context, sessionID, userID string) (*Result, error) {
	if userID == "" {
		return nil, models.MissingField("userId")
	}
	if _, err := s.users.Get(ctx, userID); err != nil {
		return nil, err
	}
	sess, err := s.col.Update(ctx, sessionID, func(cur *models.Session) error {
		AddInvitation(cur, userID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	res := &Result{Session: sess}
	if err := s.users.AddInvitedSession(ctx, userID, sessionID); err != nil {
		res.Warnings = append(res.Warnings, s.warn(ctx, "record invited session", userID, sessionID, err))
	}
	return res, nil
}

// Respond records userID's answer to their invitation.
func (s *Service) Respond(ctx context.Context, sessionID, userID string, accepted bool, attending models.Attendance) (*models.Session, error) {
	if userID == "" {
		return nil, models.MissingField("userId")
	}
	return s.col.Update(ctx, sessionID, func(cur *models.Session) error {
		return UpdateResponse(cur, userID, accepted, attending)
	})
}

// Suggest adds a named suggestion on behalf of userID. Only invited users
// and the owner may suggest. Re-suggesting an existing name is a no-op.
func (s *Service) Suggest(ctx context.Context, sessionID, userID, name string) (*models.Session, error) {
	if name == "" {
		return nil, models.MissingField("name")
	}
	if userID == "" {
		return nil, models.MissingField("userId")
	}
	id := genid.Random(0)
	return s.col.Update(ctx, sessionID, func(cur *models.Session) error {
		if !cur.CanView(userID) {
			return models.Forbidden(fmt.Sprintf("user %q may not suggest in session %q", userID, sessionID))
		}
		AddSuggestion(cur, name, id)
		return nil
	})
}

// Vote applies userID's vote to a suggestion. Only invited users and the
// owner may vote.
func (s *Service) Vote(ctx context.Context, sessionID, suggestionID, userID string, vote models.Vote) (*models.Session, error) {
	if userID == "" {
		return nil, models.MissingField("userId")
	}
	return s.col.Update(ctx, sessionID, func(cur *models.Session) error {
		if !cur.CanView(userID) {
			return models.Forbidden(fmt.Sprintf("user %q may not vote in session %q", userID, sessionID))
		}
		return CastVote(cur, suggestionID, userID, vote)
	})
}

// warn logs a best-effort back-reference failure and renders it for the
// mutation result.
func (s *Service) warn(ctx context.Context, op, userID, sessionID string, err error) string {
	slog.WarnContext(ctx, "Back-reference update failed",
		"op", op, "user", userID, "session", sessionID, "err", err)
	return fmt.Sprintf("%s for user %s: %v", op, userID, err)
}
