package auth

import "strings"

// Role separates the two kinds of credential holders.
type Role string

const (
	RolePlayer Role = "player"
	RoleStaff  Role = "staff"
)

// ParseRole normalises a role string; ok is false for unknown roles.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case RolePlayer:
		return RolePlayer, true
	case RoleStaff:
		return RoleStaff, true
	default:
		return "", false
	}
}

// Principal is the authenticated caller of a request. Key is the credential
// (character key or staff key); Name is what audit lines show.
type Principal struct {
	Key     string
	Name    string
	Role    Role
	IsAdmin bool
}

func (p Principal) IsStaff() bool { return p.Role == RoleStaff }

// Actor renders the principal for audit logs without exposing its key.
func (p Principal) Actor() string {
	if p.Name == "" {
		return string(p.Role)
	}
	return string(p.Role) + ":" + p.Name
}
