package access

import (
	"time"

	"mutabaahly/web/internal/model"
)

// SessionSnapshot is the read-only view of an authenticated session
// handed to the decision engine. Sessions are owned by the session
// store; the engine only observes them.
type SessionSnapshot struct {
	SubjectID string
	ExpiresAt time.Time
}

// ProfileSnapshot is the read-only view of the subject's profile row.
// A nil snapshot means the row does not exist yet, has not been
// fetched, or the fetch failed; all three are treated identically.
type ProfileSnapshot struct {
	ID   string
	Role model.Role
}

// Outcome is the kind of decision the engine produces.
type Outcome string

const (
	// OutcomeAllow lets the request through with nothing left to check.
	OutcomeAllow Outcome = "allow"
	// OutcomeRedirect sends the caller to Decision.Target.
	OutcomeRedirect Outcome = "redirect"
	// OutcomeAllowPending lets a protected page render while the
	// profile is still unresolved; the page-level guard finishes the
	// role check. Rendering briefly without role enforcement is
	// preferred over redirect thrashing while the profile row loads.
	OutcomeAllowPending Outcome = "allow_pending"
)

// Decision is consumed exactly once by the caller: continue or redirect.
type Decision struct {
	Outcome Outcome
	Target  string
}

func allow() Decision { return Decision{Outcome: OutcomeAllow} }

func redirect(to string) Decision { return Decision{Outcome: OutcomeRedirect, Target: to} }

// Decide combines session presence, profile presence, profile role and
// route classification into a single decision. Rules are evaluated in
// fixed order, first match wins:
//
//  1. protected route without a session redirects to /auth
//  2. /select-role is always reachable once authenticated, so the
//     role-selection destination can never redirect to itself
//  3. a signed-in visit to the root goes to /dashboard, role or not
//  4. a signed-in visit to an auth page goes to /dashboard
//  5. with a known profile, teacher-only is checked before parent-only;
//     anything else (an unset role included) is allowed
//  6. with a session but no profile, protected pages render pending
//  7. everything else is allowed
//
// Decide runs both in the server interception middleware and, in
// reduced form, in the page guard; keeping it pure is what lets the
// two enforcement points agree without shared state.
func Decide(sess *SessionSnapshot, prof *ProfileSnapshot, c Classification, path string) Decision {
	if c.Protected && sess == nil {
		return redirect(PathAuth)
	}
	if path == PathSelectRole {
		return allow()
	}
	if sess != nil && path == PathRoot {
		return redirect(PathDashboard)
	}
	if c.AuthPage && sess != nil {
		return redirect(PathDashboard)
	}
	if sess != nil && prof != nil {
		if c.TeacherOnly && prof.Role != model.RoleTeacher {
			return redirect(PathDashboard)
		}
		if c.ParentOnly && prof.Role != model.RoleParent {
			return redirect(PathDashboard)
		}
		return allow()
	}
	if sess != nil && prof == nil {
		if c.Protected && path != PathSelectRole {
			return Decision{Outcome: OutcomeAllowPending}
		}
		return allow()
	}
	return allow()
}
