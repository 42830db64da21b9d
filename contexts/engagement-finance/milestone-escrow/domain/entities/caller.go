package entities

import "strings"

type Role string

const (
	RoleFreelancer Role = "freelancer"
	RoleEmployer   Role = "employer"
	RoleAdmin      Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleFreelancer, RoleEmployer, RoleAdmin:
		return true
	default:
		return false
	}
}

// Caller is the authenticated identity on whose behalf an operation runs.
type Caller struct {
	UserID string
	Role   Role
	Email  string
	Name   string
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

func (c Caller) Valid() bool {
	return strings.TrimSpace(c.UserID) != "" && c.Role.Valid()
}

// SystemCaller is used by workers that act without a human principal.
func SystemCaller() Caller {
	return Caller{UserID: "system", Role: RoleAdmin, Name: "system"}
}

// Account is the directory record for a platform user as seen by the escrow engine.
type Account struct {
	UserID            string
	Role              Role
	Email             string
	Name              string
	PayerProfileID    string
	PayoutDestination string
	Active            bool
}

// WalletBalance is the freelancer-side internal balance for one currency, in minor units.
type WalletBalance struct {
	UserID   string
	Currency string
	Balance  int64
}
