package access

import (
	"context"
	"sync"

	"mutabaahly/web/internal/model"
)

// GuardState is the page guard's observable state.
type GuardState int

const (
	// StateLoading renders nothing observable; neither redirect nor
	// content may be emitted while hydration is in flight.
	StateLoading GuardState = iota
	// StateUnauthenticated navigates to /auth.
	StateUnauthenticated
	// StateUnauthorized navigates to /dashboard.
	StateUnauthorized
	// StateAuthorized renders the wrapped content.
	StateAuthorized
)

func (s GuardState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateUnauthorized:
		return "unauthorized"
	case StateAuthorized:
		return "authorized"
	}
	return "unknown"
}

// HydrateFunc resolves the session and profile for the current viewer.
// A profile fetch failure must be reported as a nil profile, not an
// error; the returned error is reserved for the same degradation and
// is logged by callers, never surfaced.
type HydrateFunc func(ctx context.Context) (*SessionSnapshot, *ProfileSnapshot, error)

// Guard protects one rendered subtree. It is the second enforcement
// point behind the interception middleware: by the time it runs, the
// profile fetch is expected to complete, so it has no pending outcome
// and no /select-role special case. It also covers navigations that
// never hit the server.
//
// The session and profile parts may resolve in either order; the guard
// stays in StateLoading until the session is known, and, when a session
// exists, until the profile lookup has reported too. Results arriving
// after Cancel are discarded so an abandoned navigation cannot mutate
// the guard.
type Guard struct {
	mu           sync.Mutex
	requiredRole model.Role

	sessionDone bool
	profileDone bool
	cancelled   bool
	session     *SessionSnapshot
	profile     *ProfileSnapshot
}

// NewGuard returns a guard in StateLoading. requiredRole may be empty,
// in which case any authenticated subject is authorized.
func NewGuard(requiredRole model.Role) *Guard {
	return &Guard{requiredRole: requiredRole}
}

// SetSession reports the resolved session (nil = unauthenticated).
func (g *Guard) SetSession(sess *SessionSnapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelled || g.sessionDone {
		return
	}
	g.session = sess
	g.sessionDone = true
}

// SetProfile reports the resolved profile (nil = absent or fetch failed).
func (g *Guard) SetProfile(prof *ProfileSnapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelled || g.profileDone {
		return
	}
	g.profile = prof
	g.profileDone = true
}

// Cancel marks the subtree as navigated away; any in-flight hydration
// result is discarded and the guard stays wherever it was.
func (g *Guard) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = true
}

// State computes the current guard state and, for redirecting states,
// the navigation target.
func (g *Guard) State() (GuardState, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state()
}

func (g *Guard) state() (GuardState, string) {
	if !g.sessionDone {
		return StateLoading, ""
	}
	if g.session == nil {
		return StateUnauthenticated, PathAuth
	}
	if !g.profileDone {
		return StateLoading, ""
	}
	if g.requiredRole != "" {
		if g.profile == nil || g.profile.Role != g.requiredRole {
			return StateUnauthorized, PathDashboard
		}
	}
	return StateAuthorized, ""
}

// Resolve runs hydrate and feeds its result into the guard, unless ctx
// was cancelled while the fetch was in flight, in which case the result
// is dropped. Returns the resulting state and target.
func (g *Guard) Resolve(ctx context.Context, hydrate HydrateFunc) (GuardState, string) {
	sess, prof, err := hydrate(ctx)
	if err != nil {
		prof = nil
	}

	select {
	case <-ctx.Done():
		return g.State()
	default:
	}

	g.SetSession(sess)
	g.SetProfile(prof)
	return g.State()
}
