// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

// Role is an account's access level. Each role includes the ones below it.
type Role int

const (
	RoleUser Role = iota
	RoleStaff
	RoleSuperuser
)

// RoleFor derives the role from the stored flags.
func RoleFor(isStaff, isSuperuser bool) Role {
	switch {
	case isSuperuser:
		return RoleSuperuser
	case isStaff:
		return RoleStaff
	}
	return RoleUser
}

// AtLeast reports whether r grants the access of min.
func (r Role) AtLeast(min Role) bool {
	return r >= min
}

func (r Role) String() string {
	switch r {
	case RoleSuperuser:
		return "superuser"
	case RoleStaff:
		return "staff"
	}
	return "user"
}
