package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"mutabaahly/web/internal/access"
	"mutabaahly/web/internal/repository"
)

// viewer is the per-request snapshot the interception point resolved.
// pending means the decision was allow-pending: the profile could not
// be observed yet and the page guard owns the remaining role check.
type viewer struct {
	session *access.SessionSnapshot
	profile *access.ProfileSnapshot
	pending bool
}

type viewerKey struct{}

func withViewer(ctx context.Context, v viewer) context.Context {
	return context.WithValue(ctx, viewerKey{}, v)
}

func viewerFromContext(ctx context.Context) viewer {
	v, _ := ctx.Value(viewerKey{}).(viewer)
	return v
}

// intercept is the server-side enforcement point. It runs before any
// handler: resolve the session from cookies (which may refresh the
// outgoing cookie), make one best-effort profile lookup, and apply the
// decision engine. Profile store failures never surface here; the
// decision degrades to "profile absent" instead.
func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		sess, err := s.sessions.FromRequest(r.Context(), w, r)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("session lookup failed")
			sess = nil
		}

		var prof *access.ProfileSnapshot
		if sess != nil {
			role, err := s.profiles.GetProfileRole(r.Context(), sess.SubjectID)
			switch {
			case err == nil:
				prof = &access.ProfileSnapshot{ID: sess.SubjectID, Role: role}
			case errors.Is(err, repository.ErrNotFound):
				// Row not created yet; treated as absent.
			default:
				s.logger.Warn().Err(err).Str("subject", sess.SubjectID).Msg("profile lookup failed, proceeding without profile")
			}
		}

		decision := access.Decide(sess, prof, access.Classify(path), path)
		decisionsTotal.WithLabelValues(string(decision.Outcome)).Inc()

		if decision.Outcome == access.OutcomeRedirect {
			s.logger.Debug().Str("path", path).Str("target", decision.Target).Msg("intercepted")
			http.Redirect(w, r, decision.Target, http.StatusSeeOther)
			return
		}

		ctx := withViewer(r.Context(), viewer{
			session: sess,
			profile: prof,
			pending: decision.Outcome == access.OutcomeAllowPending,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
