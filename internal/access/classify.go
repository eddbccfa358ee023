package access

import "strings"

// Route paths with special handling in the decision rules.
const (
	PathRoot       = "/"
	PathAuth       = "/auth"
	PathDashboard  = "/dashboard"
	PathSelectRole = "/select-role"
)

// Classification is the set of policy tags a request path carries.
// Tags are not mutually exclusive: /student/42 is protected,
// teacher-only and parent-only at the same time. Overlaps are
// resolved by Decide's rule ordering, not here.
type Classification struct {
	Protected         bool
	TeacherOnly       bool
	ParentOnly        bool
	AuthPage          bool
	RoleSelectionPage bool
}

var (
	protectedPrefixes = []string{
		"/dashboard",
		"/students",
		"/student",
		"/profile",
		"/class",
		"/tests",
		"/api/delete-user",
	}
	teacherOnlyPrefixes = []string{
		"/students",
		"/student",
		"/class",
		"/tests",
		"/api/delete-user",
	}
	parentOnlyPrefixes = []string{"/student"}
	authPrefixes       = []string{PathAuth}
)

// Classify maps a request path to its policy tags by literal prefix
// comparison. No normalization is applied; trailing slashes count as
// characters. The root path is protected but matched exactly, since a
// bare "/" prefix would tag every path (the auth page included) as
// protected and send unauthenticated visitors of /auth back to /auth
// forever.
func Classify(path string) Classification {
	return Classification{
		Protected:         path == PathRoot || hasAnyPrefix(path, protectedPrefixes),
		TeacherOnly:       hasAnyPrefix(path, teacherOnlyPrefixes),
		ParentOnly:        hasAnyPrefix(path, parentOnlyPrefixes),
		AuthPage:          hasAnyPrefix(path, authPrefixes),
		RoleSelectionPage: strings.HasPrefix(path, PathSelectRole),
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
