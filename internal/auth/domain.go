package auth

import "time"

// Role is the closed set of application roles carried in the JWT role claim.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleSales       Role = "sales"
	RoleProcurement Role = "procurement"
	RoleFinance     Role = "finance"
	RoleAuditor     Role = "auditor"
)

// IsValid reports whether the role is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleSales, RoleProcurement, RoleFinance, RoleAuditor:
		return true
	default:
		return false
	}
}

// User models an application account.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
