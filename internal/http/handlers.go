package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"mutabaahly/web/internal/access"
	"mutabaahly/web/internal/model"
	"mutabaahly/web/internal/repository"
)

type pagePayload struct {
	Page        string     `json:"page"`
	SubjectID   string     `json:"subjectId,omitempty"`
	Role        model.Role `json:"role,omitempty"`
	NeedsRole   bool       `json:"needsRole,omitempty"`
	RolePending bool       `json:"rolePending,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// hydrate is the page-level session+profile resolution. The middleware
// may have left the profile unresolved (allow-pending); this is the
// full fetch that settles it.
func (s *Server) hydrate(ctx context.Context, v viewer) (*access.SessionSnapshot, *access.ProfileSnapshot, error) {
	if v.session == nil {
		return nil, nil, nil
	}
	if v.profile != nil {
		return v.session, v.profile, nil
	}
	role, err := s.profiles.GetProfileRole(ctx, v.session.SubjectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return v.session, nil, nil
		}
		return v.session, nil, err
	}
	return v.session, &access.ProfileSnapshot{ID: v.session.SubjectID, Role: role}, nil
}

// guardPage runs the page guard and writes the redirect when the guard
// denies. It returns the hydrated viewer and whether to render.
func (s *Server) guardPage(w http.ResponseWriter, r *http.Request, requiredRole model.Role) (viewer, bool) {
	v := viewerFromContext(r.Context())

	resolved := v
	guard := access.NewGuard(requiredRole)
	state, target := guard.Resolve(r.Context(), func(ctx context.Context) (*access.SessionSnapshot, *access.ProfileSnapshot, error) {
		sess, prof, err := s.hydrate(ctx, v)
		if err != nil {
			s.logger.Warn().Err(err).Msg("page hydration failed, proceeding without profile")
		}
		resolved = viewer{session: sess, profile: prof, pending: prof == nil && sess != nil}
		return sess, prof, err
	})

	switch state {
	case access.StateUnauthenticated, access.StateUnauthorized:
		http.Redirect(w, r, target, http.StatusSeeOther)
		return resolved, false
	case access.StateLoading:
		// The request context was cancelled mid-hydration; the caller
		// is gone and nothing may be rendered.
		return resolved, false
	}
	return resolved, true
}

func (s *Server) pagePayloadFor(name string, v viewer) pagePayload {
	payload := pagePayload{Page: name}
	if v.session != nil {
		payload.SubjectID = v.session.SubjectID
	}
	switch {
	case v.profile != nil:
		payload.Role = v.profile.Role
		payload.NeedsRole = v.profile.Role == ""
	case v.session != nil:
		payload.RolePending = true
	}
	return payload
}

// page renders one protected page shell behind the page guard. The
// actual screen content is owned by the UI layer; the gateway only
// asserts who may see it.
func (s *Server) page(name string, requiredRole model.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := s.guardPage(w, r, requiredRole)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, s.pagePayloadFor(name, v))
	}
}

func (s *Server) handleAuthPage(w http.ResponseWriter, r *http.Request) {
	payload := map[string]string{"page": "auth"}
	if errCode := r.URL.Query().Get("error"); errCode != "" {
		payload["error"] = errCode
	}

	if s.exchanger != nil {
		state, err := s.sessions.BeginOAuthState(r.Context())
		if err != nil {
			s.logger.Error().Err(err).Msg("oauth state mint failed")
		} else {
			payload["signInUrl"] = s.exchanger.AuthCodeURL(state)
		}
	}

	writeJSON(w, http.StatusOK, payload)
}

// handleOAuthCallback terminates the external sign-in. It never
// renders: the only exits are /dashboard, /select-role and /auth.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		oauthCompletionsTotal.WithLabelValues("missing_code").Inc()
		http.Redirect(w, r, access.PathAuth, http.StatusSeeOther)
		return
	}

	if state := r.URL.Query().Get("state"); state != "" && !s.sessions.ConsumeOAuthState(r.Context(), state) {
		oauthCompletionsTotal.WithLabelValues("invalid_state").Inc()
		http.Redirect(w, r, access.PathAuth+"?error=invalid_state", http.StatusSeeOther)
		return
	}

	if s.exchanger == nil {
		oauthCompletionsTotal.WithLabelValues("exchange_failed").Inc()
		http.Redirect(w, r, access.PathAuth+"?error=exchange_failed", http.StatusSeeOther)
		return
	}

	identity, err := s.exchanger.Exchange(r.Context(), code)
	if err != nil {
		s.logger.Warn().Err(err).Msg("code exchange failed")
		oauthCompletionsTotal.WithLabelValues("exchange_failed").Inc()
		http.Redirect(w, r, access.PathAuth+"?error=exchange_failed", http.StatusSeeOther)
		return
	}

	if _, err := s.sessions.Issue(r.Context(), w, r, identity.SubjectID); err != nil {
		s.logger.Error().Err(err).Msg("session issue failed")
		oauthCompletionsTotal.WithLabelValues("exchange_failed").Inc()
		http.Redirect(w, r, access.PathAuth+"?error=exchange_failed", http.StatusSeeOther)
		return
	}

	// Lazy profile creation: keep provider-sourced fields current, role
	// untouched. Best effort; a missing row just routes to /select-role.
	if err := s.profiles.UpsertProfile(r.Context(), model.Profile{
		ID:        identity.SubjectID,
		FullName:  identity.FullName,
		Email:     identity.Email,
		AvatarURL: identity.AvatarURL,
	}); err != nil {
		s.logger.Warn().Err(err).Str("subject", identity.SubjectID).Msg("profile upsert failed")
	}

	role, err := s.profiles.GetProfileRole(r.Context(), identity.SubjectID)
	if err == nil && role != "" {
		oauthCompletionsTotal.WithLabelValues("dashboard").Inc()
		http.Redirect(w, r, access.PathDashboard, http.StatusSeeOther)
		return
	}
	oauthCompletionsTotal.WithLabelValues("select_role").Inc()
	http.Redirect(w, r, access.PathSelectRole, http.StatusSeeOther)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Destroy(r.Context(), w, r); err != nil {
		s.logger.Warn().Err(err).Msg("session destroy failed")
	}
	http.Redirect(w, r, access.PathAuth, http.StatusSeeOther)
}

func (s *Server) handleSelectRolePage(w http.ResponseWriter, r *http.Request) {
	v, ok := s.guardPage(w, r, "")
	if !ok {
		return
	}
	payload := s.pagePayloadFor("select-role", v)
	writeJSON(w, http.StatusOK, struct {
		pagePayload
		Roles []model.Role `json:"roles"`
	}{payload, []model.Role{model.RoleTeacher, model.RoleParent}})
}

type selectRoleRequest struct {
	Role string `json:"role"`
}

// handleSelectRole is the single writer of profile.role. A store
// failure keeps the subject on the page with a retryable inline error
// instead of redirecting.
func (s *Server) handleSelectRole(w http.ResponseWriter, r *http.Request) {
	v := viewerFromContext(r.Context())
	if v.session == nil {
		http.Redirect(w, r, access.PathAuth, http.StatusSeeOther)
		return
	}

	var req selectRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	role := model.Role(strings.TrimSpace(strings.ToLower(req.Role)))
	if !role.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_role")
		return
	}

	err := s.profiles.UpdateProfileRole(r.Context(), v.session.SubjectID, role)
	if errors.Is(err, repository.ErrNotFound) {
		// First selection can race the lazy profile creation.
		if uerr := s.profiles.UpsertProfile(r.Context(), model.Profile{ID: v.session.SubjectID}); uerr == nil {
			err = s.profiles.UpdateProfileRole(r.Context(), v.session.SubjectID, role)
		}
	}
	if err != nil {
		s.logger.Error().Err(err).Str("subject", v.session.SubjectID).Msg("role update failed")
		writeJSON(w, http.StatusOK, pagePayload{Page: "select-role", Error: "role_update_failed"})
		return
	}

	http.Redirect(w, r, access.PathDashboard, http.StatusSeeOther)
}

func (s *Server) handleProfilePage(w http.ResponseWriter, r *http.Request) {
	v, ok := s.guardPage(w, r, "")
	if !ok {
		return
	}
	payload := s.pagePayloadFor("profile", v)

	profile, err := s.profiles.GetProfile(r.Context(), v.session.SubjectID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("profile load failed")
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		pagePayload
		FullName  string `json:"fullName"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatarUrl,omitempty"`
	}{payload, profile.FullName, profile.Email, profile.AvatarURL})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	v, ok := s.guardPage(w, r, model.RoleTeacher)
	if !ok {
		return
	}

	deleted, err := s.profiles.DeleteProfile(r.Context(), v.session.SubjectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if err := s.sessions.Destroy(r.Context(), w, r); err != nil {
		s.logger.Warn().Err(err).Msg("session destroy failed")
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "user_not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
