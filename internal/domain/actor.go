package domain

// Role identifies what an actor may do across tickets.
type Role string

const (
	RoleEndUser    Role = "END_USER"
	RoleOrgAdmin   Role = "ORG_ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// Valid reports whether r is a recognized role.
func (r Role) Valid() bool {
	switch r {
	case RoleEndUser, RoleOrgAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Responder reports whether r may act on tickets it does not own.
func (r Role) Responder() bool {
	return r == RoleOrgAdmin || r == RoleSuperAdmin
}

// Actor is an authenticated caller. Identity is issued elsewhere.
type Actor struct {
	ID             string
	Role           Role
	OrganizationID *string
	DisplayName    string
	Email          string
}

// IsResponder reports whether the actor holds a responder role.
func (a Actor) IsResponder() bool {
	return a.Role.Responder()
}
