package provision

import "time"

// Role is the application role granted to a provisioned user
type Role string

const (
	// RoleAdmin grants full administrative access
	RoleAdmin Role = "admin"
	// RoleUser is the lowest-privilege role and the default for users whose
	// groups match no mapping entry
	RoleUser Role = "user"
)

// roleRank orders roles by privilege for deterministic resolution
var roleRank = map[Role]int{
	RoleUser:  0,
	RoleAdmin: 1,
}

// Valid reports whether the role is a known role
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// UserRecord is the local user created or updated on login. Records are
// keyed primarily by external subject; email is a denormalized secondary
// lookup field. This layer never deletes records.
type UserRecord struct {
	LocalID         string    `json:"local_id"`
	Email           string    `json:"email"`
	DisplayName     string    `json:"display_name"`
	Role            Role      `json:"role"`
	ExternalSubject string    `json:"external_subject"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	LastLoginAt     time.Time `json:"last_login_at"`
}
