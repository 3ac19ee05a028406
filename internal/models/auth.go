package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the roles accepted by the RBAC middleware.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleCounselor  UserRole = "COUNSELOR"
	RoleTeacher    UserRole = "TEACHER"
	RoleService    UserRole = "SERVICE"
)

// CrossSchool reports whether the role may read any school.
func (r UserRole) CrossSchool() bool {
	return r == RoleSuperAdmin || r == RoleService
}

// SchoolBound reports whether the role is meaningless without a school.
func (r UserRole) SchoolBound() bool {
	return r == RoleCounselor || r == RoleTeacher
}

// JWTClaims represents the JWT payload for access tokens. SchoolID scopes
// non cross-school roles to a single school.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	SchoolID string   `json:"school_id,omitempty"`
	FullName string   `json:"full_name,omitempty"`
	jwt.RegisteredClaims
}

// ReadsSchool reports whether the claims may read schoolID. Roles that are not
// cross-school read nothing without a school of their own.
func (c *JWTClaims) ReadsSchool(schoolID string) bool {
	if c.Role.CrossSchool() {
		return true
	}
	return c.SchoolID != "" && c.SchoolID == schoolID
}

// ScopeSchool is the school record reads are confined to, empty for
// cross-school roles.
func (c *JWTClaims) ScopeSchool() string {
	if c.Role.CrossSchool() {
		return ""
	}
	return c.SchoolID
}

// TokenRequest describes a token to mint.
type TokenRequest struct {
	Subject  string        `json:"subject" validate:"required"`
	Role     UserRole      `json:"role" validate:"required,oneof=SUPERADMIN ADMIN COUNSELOR TEACHER SERVICE"`
	SchoolID string        `json:"school_id"`
	FullName string        `json:"full_name"`
	TTL      time.Duration `json:"ttl"`
}

// IssuedToken is a signed token with its expiry.
type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
