package model

import "time"

// Role is the profile role assigned during role selection.
// The empty string means no role has been chosen yet.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleParent  Role = "parent"
)

func (r Role) Valid() bool {
	return r == RoleTeacher || r == RoleParent
}

// Profile is the role-bearing record associated 1:1 with an
// authenticated subject. The row is created lazily on first sign-in,
// so a signed-in subject may have no profile yet.
type Profile struct {
	ID        string
	FullName  string
	Email     string
	AvatarURL string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}
