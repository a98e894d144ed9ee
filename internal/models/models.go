// Package models defines the stored document types and the API error taxonomy.
//
// Every stored document embeds Meta, which carries the id and the
// creation/update timestamps stamped by the resource layer. Documents are
// serialized one-per-file as pretty-printed JSON; timestamps round-trip
// through RFC 3339 strings.
package models

import (
	"slices"
	"time"
)

// Document is the contract every stored record satisfies.
type Document interface {
	GetID() string
	SetID(id string)
	// Stamp refreshes the update timestamp, and the creation timestamp too
	// when created is true.
	Stamp(now time.Time, created bool)
}

// Meta holds the fields common to all stored documents.
type Meta struct {
	ID      string    `json:"id"`
	Created time.Time `json:"createdAt,omitzero"`
	Updated time.Time `json:"updatedAt,omitzero"`
}

// GetID returns the document id.
func (m *Meta) GetID() string { return m.ID }

// SetID sets the document id.
func (m *Meta) SetID(id string) { m.ID = id }

// Stamp refreshes the timestamps.
func (m *Meta) Stamp(now time.Time, created bool) {
	if created {
		m.Created = now
	}
	m.Updated = now
}

// CreatedAt returns the creation timestamp.
func (m *Meta) CreatedAt() time.Time { return m.Created }

// SetCreated overrides the creation timestamp (used by full replaces to
// carry the stored value over).
func (m *Meta) SetCreated(t time.Time) { m.Created = t }

// Attendance is an invitee's stated attendance.
type Attendance string

const (
	AttendanceUndecided Attendance = "undecided"
	AttendanceYes       Attendance = "yes"
	AttendanceNo        Attendance = "no"
)

// Vote is a voter's stance on a suggestion. VoteNone retracts a prior vote.
type Vote string

const (
	VoteUp   Vote = "up"
	VoteDown Vote = "down"
	VoteNone Vote = "none"
)

// User is an account that can own sessions and respond to invitations.
type User struct {
	Meta
	Name            string   `json:"name"`
	OwnsSessions    []string `json:"ownsSessions"`
	InvitedSessions []string `json:"invitedSessions"`
}

// Invitation records one user's invite state within a session.
type Invitation struct {
	UserID    string     `json:"userId"`
	Accepted  bool       `json:"accepted"`
	Attending Attendance `json:"attending"`
}

// Suggestion is a proposed option within a session, with its votes.
type Suggestion struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	UpVoteUserIDs   []string `json:"upVoteUserIds"`
	DownVoteUserIDs []string `json:"downVoteUserIds"`
}

// Session is the scheduling/voting aggregate. It is the unit of locking:
// every mutation re-reads and rewrites the whole document under its
// resource reference's named mutex.
type Session struct {
	Meta
	OwnerID     string       `json:"ownerId"`
	Name        string       `json:"name"`
	Invitations []Invitation `json:"invitations"`
	Suggestions []Suggestion `json:"suggestions"`
}

// Invitation returns the invitation for userID, or nil.
func (s *Session) Invitation(userID string) *Invitation {
	for i := range s.Invitations {
		if s.Invitations[i].UserID == userID {
			return &s.Invitations[i]
		}
	}
	return nil
}

// Suggestion returns the suggestion with the given id, or nil.
func (s *Session) Suggestion(id string) *Suggestion {
	for i := range s.Suggestions {
		if s.Suggestions[i].ID == id {
			return &s.Suggestions[i]
		}
	}
	return nil
}

// CanView reports whether userID may see this session: the owner and the
// invited may, nobody else.
func (s *Session) CanView(userID string) bool {
	if userID == "" {
		return false
	}
	if s.OwnerID == userID {
		return true
	}
	return s.Invitation(userID) != nil
}

// ClientInfo is the grant configuration of an OAuth2 client.
type ClientInfo struct {
	ID     string   `json:"id"`
	Grants []string `json:"grants"`
}

// ClientUser binds a client to the user it acts as.
type ClientUser struct {
	UserID           string   `json:"userId"`
	CurrentSessionID string   `json:"currentSessionId,omitempty"`
	Scopes           []string `json:"scopes"`
}

// Client is a registered OAuth2 client-credentials client. Secret holds
// the bcrypt hash, never the plaintext.
type Client struct {
	Meta
	Name   string     `json:"name"`
	Secret string     `json:"secret"`
	Client ClientInfo `json:"client"`
	User   ClientUser `json:"user"`
}

// HasScope reports whether the client is allowed the given scope.
func (c *Client) HasScope(scope string) bool {
	return scope == "" || slices.Contains(c.User.Scopes, scope)
}

// TokenPayload is the issued access token and its metadata.
type TokenPayload struct {
	AccessToken          string    `json:"accessToken"`
	AccessTokenExpiresAt time.Time `json:"accessTokenExpiresAt"`
	Scope                string    `json:"scope,omitempty"`
	ClientID             string    `json:"clientId"`
	UserID               string    `json:"userId,omitempty"`
}

// Token is a persisted access token. Its id is derived from the token
// string so lookups never scan the collection.
type Token struct {
	Meta
	Name  string       `json:"name"`
	Token TokenPayload `json:"token"`
}

// Expired reports whether the token's expiry is in the past at time now.
func (t *Token) Expired(now time.Time) bool {
	return t.Token.AccessTokenExpiresAt.Before(now)
}

// RubricLevel is one achievement level of a criterion.
type RubricLevel struct {
	Name        string  `json:"name"`
	Points      float64 `json:"points"`
	Description string  `json:"description,omitempty"`
}

// RubricCriterion is one graded dimension of a rubric.
type RubricCriterion struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Levels []RubricLevel `json:"levels"`
}

// Rubric is a grading scheme. Seeded rubrics carry content-hash ids so
// reseeding is idempotent.
type Rubric struct {
	Meta
	Name     string            `json:"name"`
	Criteria []RubricCriterion `json:"criteria"`
}

// MaxPoints returns the best achievable total across all criteria.
func (r *Rubric) MaxPoints() float64 {
	total := 0.0
	for _, c := range r.Criteria {
		best := 0.0
		for _, l := range c.Levels {
			if l.Points > best {
				best = l.Points
			}
		}
		total += best
	}
	return total
}

// GradeScore is the awarded points for one criterion.
type GradeScore struct {
	CriterionID string  `json:"criterionId"`
	Points      float64 `json:"points"`
	Comment     string  `json:"comment,omitempty"`
}

// Grade is one grading of a user against a rubric. Grades are stored
// nested under their rubric.
type Grade struct {
	Meta
	RubricID string       `json:"rubricId"`
	UserID   string       `json:"userId"`
	GraderID string       `json:"graderId"`
	Scores   []GradeScore `json:"scores"`
	Total    float64      `json:"total"`
}

// ComputeTotal recalculates Total from Scores.
func (g *Grade) ComputeTotal() {
	g.Total = 0
	for _, s := range g.Scores {
		g.Total += s.Points
	}
}
