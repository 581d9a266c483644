// Package model defines domain entities used by services and repositories.
package model

import (
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens collects issued access/refresh tokens.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // access token expiry
}

// Role is one of the fixed registry roles.
type Role string

// Registry roles, as stored in users.role.
const (
	RoleSuperAdmin Role = "SuperAdmin"
	RoleAdmin      Role = "Admin"
	RolePermSec    Role = "Permanent Secretary"
	RoleRegistry   Role = "Registry Officer"
	RoleOfficer    Role = "Officer"
	RoleUser       Role = "User"
)

var knownRoles = []Role{RoleSuperAdmin, RoleAdmin, RolePermSec, RoleRegistry, RoleOfficer, RoleUser}

// ParseRole matches s against the known roles, ignoring case and surrounding blanks.
// An empty string yields RoleUser.
func ParseRole(s string) (Role, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RoleUser, true
	}
	for _, r := range knownRoles {
		if strings.EqualFold(string(r), s) {
			return r, true
		}
	}
	return "", false
}

// User represents a registry account. Passwords are never stored in plaintext.
type User struct {
	ID          uuid.UUID // PK
	Email       string    // unique, lower-cased
	PwdHash     []byte    // Argon2id(password, SaltAuth)
	SaltAuth    []byte
	Surname     string
	Firstname   string
	Post        string
	MDA         string
	Department  string
	Role        Role
	Deactivated bool // soft-delete flag
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DisplayName is the name shown in conflict messages ("surname firstname").
func (u User) DisplayName() string {
	return strings.TrimSpace(u.Surname + " " + u.Firstname)
}

// ChargeLabel is the label recorded in charge logs ("surname - post, department").
func (u User) ChargeLabel() string {
	return u.Surname + " - " + u.Post + ", " + u.Department
}

// UserPatch carries profile fields an administrator may change.
// Nil fields are left untouched.
type UserPatch struct {
	Surname    *string
	Firstname  *string
	Post       *string
	MDA        *string
	Department *string
}

// UserCounts is the user report: Total counts every account.
type UserCounts struct {
	Total       int
	Active      int
	Deactivated int
}

// Actor is the authenticated principal of a request.
type Actor struct {
	UserID uuid.UUID
	Role   Role
	Name   string
	// TokenID is the jti of the access token, used for logout.
	TokenID   string
	ExpiresAt time.Time
}

// ListQuery is the common shape of list requests.
type ListQuery struct {
	Search  string // case-insensitive substring over text columns
	Limit   int
	Offset  int
	Sort    string // whitelisted column key, "-" prefix for descending
	Trashed bool   // list the trash bin instead of live records
}

// Page is a slice of results plus the total match count.
type Page[T any] struct {
	Items []T
	Total int
}
