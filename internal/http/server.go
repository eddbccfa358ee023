package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"mutabaahly/web/internal/model"
	"mutabaahly/web/internal/oauth"
	"mutabaahly/web/internal/sessions"
)

// ProfileStore is the narrow profile contract the gateway consumes.
// *repository.Store satisfies it in production.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (model.Profile, error)
	GetProfileRole(ctx context.Context, id string) (model.Role, error)
	UpsertProfile(ctx context.Context, profile model.Profile) error
	UpdateProfileRole(ctx context.Context, id string, role model.Role) error
	DeleteProfile(ctx context.Context, id string) (bool, error)
}

type Server struct {
	profiles  ProfileStore
	sessions  *sessions.Store
	exchanger oauth.Exchanger // nil when no provider is configured
	logger    zerolog.Logger
}

func NewServer(profiles ProfileStore, sessionStore *sessions.Store, exchanger oauth.Exchanger, logger zerolog.Logger) *Server {
	return &Server{
		profiles:  profiles,
		sessions:  sessionStore,
		exchanger: exchanger,
		logger:    logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.intercept)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// The interception middleware always redirects the root: to /auth
	// without a session, to /dashboard with one. The handler only
	// exists so the route is registered.
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	})

	r.Get("/auth", s.handleAuthPage)
	r.Get("/auth/callback", s.handleOAuthCallback)
	// Mounted outside the /auth prefix: signed-in requests to auth
	// pages are redirected to /dashboard before any handler runs, and
	// sign-out is only meaningful for signed-in users.
	r.Post("/signout", s.handleSignOut)

	r.Get("/select-role", s.handleSelectRolePage)
	r.Post("/select-role", s.handleSelectRole)

	r.Get("/dashboard", s.page("dashboard", ""))
	r.Get("/profile", s.handleProfilePage)
	r.Get("/students", s.page("students", model.RoleTeacher))
	// /student/* sits on both the teacher-only and parent-only lists,
	// so the interception middleware redirects every role off it and
	// server-rendered requests never reach this handler. It stays
	// registered with no page-guard role so that if the route lists
	// ever stop overlapping, whichever role regains the path is not
	// then blocked a second time here.
	r.Get("/student/{studentID}", s.page("student", ""))
	r.Get("/class/{className}", s.page("class", model.RoleTeacher))
	r.Get("/tests/manage", s.page("tests-manage", model.RoleTeacher))
	r.Get("/tests/view", s.page("tests-view", model.RoleTeacher))

	r.Post("/api/delete-user", s.handleDeleteUser)

	return r
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
