package domain

import "time"

// Role enumerates actor roles in the approval chain.
type Role string

const (
	RoleUser             Role = "user"
	RoleSupervisor       Role = "supervisor"
	RoleTechnicalManager Role = "technical-manager"
	RoleEngineer         Role = "engineer"
	RoleCustomerOfficer  Role = "customer-officer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleSupervisor, RoleTechnicalManager, RoleEngineer, RoleCustomerOfficer:
		return true
	}
	return false
}

// Actor is an authenticated identity acting on requests.
type Actor struct {
	ID    string
	Role  Role
	Name  string
	Email string
}

// ActorRecord is the persisted form of an actor, including credentials
// for the built-in login path.
type ActorRecord struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity returns the public identity of the record.
func (r *ActorRecord) Identity() Actor {
	return Actor{ID: r.ID, Role: r.Role, Name: r.Name, Email: r.Email}
}
