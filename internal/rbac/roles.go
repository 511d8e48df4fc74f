package rbac

import "call-automation/internal/auth"

// Role names are part of the token contract.
const (
	RoleAdmin    = auth.RoleAdmin
	RoleOperator = "operator"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func Known(role string) bool { return role == RoleAdmin || role == RoleOperator }
