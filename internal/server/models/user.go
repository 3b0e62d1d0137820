// Package models defines server-side data models persisted in the database.
package models

import "time"

// Role is the authorization tier of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Right is a named permission checked by the HTTP layer.
type Right string

const (
	RightGetUsers    Right = "getUsers"
	RightManageUsers Right = "manageUsers"
)

var roleRights = map[Role][]Right{
	RoleUser:  {},
	RoleAdmin: {RightGetUsers, RightManageUsers},
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRights[r]
	return ok
}

// HasRights reports whether the role grants every right in required.
func (r Role) HasRights(required ...Right) bool {
	granted := roleRights[r]
	for _, need := range required {
		found := false
		for _, g := range granted {
			if g == need {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

type User struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	Role            Role      `json:"role"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Public returns a copy of u without the password hash.
func (u *User) Public() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.PasswordHash = ""
	return &c
}
