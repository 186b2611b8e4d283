package auth

import (
	"strings"
	"time"

	"sociosflow/apperr"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleOrganizer Role = "organizer"
	RoleEditor    Role = "editor"
	RoleMember    Role = "member"
)

// directorRoles may approve, reject, assign reviewers and review.
var directorRoles = map[Role]bool{
	RoleAdmin:     true,
	RoleOrganizer: true,
	RoleEditor:    true,
}

// IsDirector reports whether role carries the director capability.
func IsDirector(role Role) bool {
	return directorRoles[NormalizeRole(role)]
}

func NormalizeRole(role Role) Role {
	return Role(strings.ToLower(strings.TrimSpace(string(role))))
}

// Actor is the verified caller of a core operation. It is always passed
// explicitly; nothing in the core reads it from shared request state.
type Actor struct {
	ID   int64
	Role Role
}

var ErrNotDirector = apperr.New(apperr.KindAuthorization, "auth: actor lacks a director role")

// RequireDirector rejects actors without the director capability.
func (a Actor) RequireDirector() error {
	if a.ID <= 0 || !IsDirector(a.Role) {
		return ErrNotDirector
	}
	return nil
}

// User is a staff identity as seen by the core. It mirrors the users table
// and carries no presentation annotations.
type User struct {
	ID        int64
	Email     string
	FullName  string
	Role      Role
	CreatedAt time.Time
}
