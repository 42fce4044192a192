package services

import (
	"encoding/json"
	"strings"
)

// Role is the closed set of workflow roles. It is resolved once per request from the
// user directory and never compared as a string afterwards.
type Role int

const (
	RoleNone Role = iota
	RoleMaker
	RoleChecker
	RoleHead
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleNone:    "None",
	RoleMaker:   "Department Maker",
	RoleChecker: "Department Checker",
	RoleHead:    "DESA Head",
	RoleAdmin:   "System Admin",
}

var (
	roleSynonyms = map[Role][]string{
		RoleMaker: {
			"department maker",
			"department_maker",
			"dept_maker",
			"maker",
		},
		RoleChecker: {
			"department checker",
			"department_checker",
			"dept_checker",
			"checker",
		},
		RoleHead: {
			"desa head",
			"desa_head",
			"head",
			"approver",
		},
		RoleAdmin: {
			"system admin",
			"system_admin",
			"admin",
			"administrator",
		},
	}
	roleAliasToRole = buildRoleAliasMap()
)

func buildRoleAliasMap() map[string]Role {
	aliasMap := make(map[string]Role)
	for role, synonyms := range roleSynonyms {
		aliasMap[normalizeRoleName(roleNames[role])] = role
		for _, alias := range synonyms {
			if normalized := normalizeRoleName(alias); normalized != "" {
				aliasMap[normalized] = role
			}
		}
	}
	return aliasMap
}

func normalizeRoleName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// RoleByName resolves a directory role name or one of its aliases.
func RoleByName(name string) (Role, bool) {
	role, ok := roleAliasToRole[normalizeRoleName(name)]
	return role, ok
}

// AllRoles returns the assignable roles in workflow order.
func AllRoles() []Role {
	return []Role{RoleMaker, RoleChecker, RoleHead, RoleAdmin}
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return roleNames[RoleNone]
}

func (r Role) MarshalJSON() ([]byte, error) {
	if r == RoleNone {
		return []byte("null"), nil
	}
	return json.Marshal(r.String())
}
