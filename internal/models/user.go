package models

import "time"

// Role is the authority level of a user
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User represents a user in the system
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	FullName     string    `json:"fullName"`
	PasswordHash string    `json:"-"` // Not serialized
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Actor is the authenticated identity performing an operation
type Actor struct {
	ID   int64
	Role Role
}

// IsAdmin reports whether the actor holds the ADMIN role
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// ActorOf returns the actor identity of u
func ActorOf(u *User) Actor {
	return Actor{ID: u.ID, Role: u.Role}
}

// UserRequest carries the fields for creating or updating a user
type UserRequest struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

// UserView is the user representation returned to API clients
type UserView struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	FullName string   `json:"fullName"`
	Role     Role     `json:"role"`
	Cards    []string `json:"cards"`
}
