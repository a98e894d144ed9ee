// Package server implements the HTTP API: routing, request adaptation,
// bearer authentication, and rate limiting.
package server

import (
	"net/http"

	"github.com/indecisive-app/indecisive/internal/oauth"
	"github.com/indecisive-app/indecisive/internal/server/handlers"
	"github.com/indecisive-app/indecisive/internal/server/ratelimit"
	"github.com/indecisive-app/indecisive/internal/server/reqctx"
)

// NewRouter creates and configures the HTTP router. All endpoints except
// health and the token endpoint require a bearer token; administration and
// grading routes additionally require their scope.
func NewRouter(svc *handlers.Services, version string, limiter *ratelimit.Limiter) http.Handler {
	mux := &http.ServeMux{}

	hh := handlers.NewHealthHandler(version)
	th := handlers.NewTokenHandler(svc.Tokens, svc.Purger)
	uh := handlers.NewUserHandler(svc.Users)
	sh := handlers.NewSessionHandler(svc.Sessions)
	ah := handlers.NewAdminHandler(svc.Clients, svc.Tokens)
	rh := handlers.NewRubricHandler(svc.Rubrics)

	mux.Handle("GET /api/health", Wrap(hh.Health, limiter))
	mux.Handle("POST /oauth/token", rateLimited(limiter, th.Token))

	// Users
	mux.Handle("GET /api/users", WrapAuth(uh.ListUsers, svc.Tokens, "", limiter))
	mux.Handle("POST /api/users", WrapAuth(uh.CreateUser, svc.Tokens, "", limiter))
	mux.Handle("GET /api/users/{userId}", WrapAuth(uh.GetUser, svc.Tokens, "", limiter))
	mux.Handle("PATCH /api/users/{userId}", WrapAuth(uh.RenameUser, svc.Tokens, "", limiter))
	mux.Handle("DELETE /api/users/{userId}", WrapAuth(uh.DeleteUser, svc.Tokens, oauth.ScopeAdmin, limiter))

	// Sessions and their nested verbs
	mux.Handle("GET /api/sessions", WrapAuth(sh.ListSessions, svc.Tokens, "", limiter))
	mux.Handle("POST /api/sessions", WrapAuth(sh.CreateSession, svc.Tokens, "", limiter))
	mux.Handle("GET /api/sessions/{sessionId}", WrapAuth(sh.GetSession, svc.Tokens, "", limiter))
	mux.Handle("DELETE /api/sessions/{sessionId}", WrapAuth(sh.DeleteSession, svc.Tokens, "", limiter))
	mux.Handle("POST /api/sessions/{sessionId}/invitations", WrapAuth(sh.Invite, svc.Tokens, "", limiter))
	mux.Handle("PUT /api/sessions/{sessionId}/invitations/{userId}", WrapAuth(sh.Respond, svc.Tokens, "", limiter))
	mux.Handle("POST /api/sessions/{sessionId}/suggestions", WrapAuth(sh.Suggest, svc.Tokens, "", limiter))
	mux.Handle("PUT /api/sessions/{sessionId}/suggestions/{suggestionId}/vote", WrapAuth(sh.Vote, svc.Tokens, "", limiter))

	// Administration
	mux.Handle("GET /api/admin/clients", WrapAuth(ah.ListClients, svc.Tokens, oauth.ScopeAdmin, limiter))
	mux.Handle("POST /api/admin/clients", WrapAuth(ah.CreateClient, svc.Tokens, oauth.ScopeAdmin, limiter))
	mux.Handle("DELETE /api/admin/clients/{clientId}", WrapAuth(ah.DeleteClient, svc.Tokens, oauth.ScopeAdmin, limiter))
	mux.Handle("GET /api/admin/tokens", WrapAuth(ah.ListTokens, svc.Tokens, oauth.ScopeAdmin, limiter))
	mux.Handle("POST /api/admin/tokens/purge", WrapAuth(ah.PurgeTokens, svc.Tokens, oauth.ScopeAdmin, limiter))

	// Rubrics and grades; writes need the grader scope
	mux.Handle("GET /api/rubrics", WrapAuth(rh.ListRubrics, svc.Tokens, "", limiter))
	mux.Handle("POST /api/rubrics", WrapAuth(rh.CreateRubric, svc.Tokens, oauth.ScopeGrader, limiter))
	mux.Handle("GET /api/rubrics/{rubricId}", WrapAuth(rh.GetRubric, svc.Tokens, "", limiter))
	mux.Handle("DELETE /api/rubrics/{rubricId}", WrapAuth(rh.DeleteRubric, svc.Tokens, oauth.ScopeGrader, limiter))
	mux.Handle("GET /api/rubrics/{rubricId}/grades", WrapAuth(rh.ListGrades, svc.Tokens, "", limiter))
	mux.Handle("POST /api/rubrics/{rubricId}/grades", WrapAuth(rh.CreateGrade, svc.Tokens, oauth.ScopeGrader, limiter))
	mux.Handle("GET /api/rubrics/{rubricId}/grades/{gradeId}", WrapAuth(rh.GetGrade, svc.Tokens, "", limiter))
	mux.Handle("PUT /api/rubrics/{rubricId}/grades/{gradeId}", WrapAuth(rh.UpdateGrade, svc.Tokens, oauth.ScopeGrader, limiter))
	mux.Handle("DELETE /api/rubrics/{rubricId}/grades/{gradeId}", WrapAuth(rh.DeleteGrade, svc.Tokens, oauth.ScopeGrader, limiter))

	return mux
}

// rateLimited applies per-IP rate limiting to a raw handler.
func rateLimited(limiter *ratelimit.Limiter, fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !checkRateLimit(w, limiter, reqctx.GetClientIP(r)) {
			return
		}
		fn(w, r)
	})
}
