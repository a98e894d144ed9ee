// Package identity manages user documents and their session
// back-references.
//
// Users carry denormalized ownsSessions / invitedSessions lists so the
// session views the mobile client renders need no collection scans. Each
// back-reference change is its own locked read-modify-write on the user
// document; cross-entity consistency with the session aggregate is
// best-effort (see sessions.Service).
package identity

import (
	"context"
	"slices"
	"time"

	"github.com/indecisive-app/indecisive/internal/filedb"
	"github.com/indecisive-app/indecisive/internal/models"
	"github.com/indecisive-app/indecisive/internal/mutex"
	"github.com/indecisive-app/indecisive/internal/resource"
)

// UserDef describes the users collection.
var UserDef = &filedb.Def{
	Namespace: "indecisive",
	Name:      "users",
	Singular:  "user",
	Param:     "userId",
	SortField: "name",
}

// Service handles user management.
type Service struct {
	col *resource.Collection[*models.User]
}

// NewService creates a user service over the shared store and lock table.
func NewService(db *filedb.DB, locks *mutex.Table, lockTimeout time.Duration) *Service {
	col := resource.NewCollection(db, locks, UserDef, resource.Options[*models.User]{
		New:         func() *models.User { return &models.User{} },
		Less:        func(a, b *models.User) bool { return a.Name < b.Name },
		LockTimeout: lockTimeout,
	})
	return &Service{col: col}
}

// Collection exposes the underlying CRUD collection for HTTP handlers.
func (s *Service) Collection() *resource.Collection[*models.User] { return s.col }

// Create registers a new user. Name is required; the session lists start
// empty rather than null so clients can append without nil checks.
func (s *Service) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if u.Name == "" {
		return nil, models.MissingField("name")
	}
	if u.OwnsSessions == nil {
		u.OwnsSessions = []string{}
	}
	if u.InvitedSessions == nil {
		u.InvitedSessions = []string{}
	}
	return s.col.Create(ctx, u)
}

// Get resolves one user.
func (s *Service) Get(ctx context.Context, id string) (*models.User, error) {
	return s.col.Get(ctx, id)
}

// List returns all users ordered by name.
func (s *Service) List(ctx context.Context) ([]*models.User, error) {
	return s.col.List(ctx, nil)
}

// Rename updates the user's display name.
func (s *Service) Rename(ctx context.Context, id, name string) (*models.User, error) {
	if name == "" {
		return nil, models.MissingField("name")
	}
	return s.col.Update(ctx, id, func(u *models.User) error {
		u.Name = name
		return nil
	})
}

// AddOwnedSession records sessionID in the user's ownsSessions list.
// Already-present ids are a no-op.
func (s *Service) AddOwnedSession(ctx context.Context, userID, sessionID string) error {
	_, err := s.col.Update(ctx, userID, func(u *models.User) error {
		if !slices.Contains(u.OwnsSessions, sessionID) {
			u.OwnsSessions = append(u.OwnsSessions, sessionID)
		}
		return nil
	})
	return err
}

// AddInvitedSession records sessionID in the user's invitedSessions list.
func (s *Service) AddInvitedSession(ctx context.Context, userID, sessionID string) error {
	_, err := s.col.Update(ctx, userID, func(u *models.User) error {
		if !slices.Contains(u.InvitedSessions, sessionID) {
			u.InvitedSessions = append(u.InvitedSessions, sessionID)
		}
		return nil
	})
	return err
}

// RemoveSessionRefs drops sessionID from both of the user's session lists,
// used when a session is deleted.
func (s *Service) RemoveSessionRefs(ctx context.Context, userID, sessionID string) error {
	_, err := s.col.Update(ctx, userID, func(u *models.User) error {
		u.OwnsSessions = slices.DeleteFunc(u.OwnsSessions, func(id string) bool { return id == sessionID })
		u.InvitedSessions = slices.DeleteFunc(u.InvitedSessions, func(id string) bool { return id == sessionID })
		return nil
	})
	return err
}

// Delete removes the user document.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	removed, _, err := s.col.Delete(ctx, id, nil)
	return removed, err
}
