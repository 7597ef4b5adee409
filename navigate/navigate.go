// Package navigate decides which routes a role may land on. It is pure
// input/output: no session state, no side effects.
package navigate

import (
	"strings"

	"github.com/tekriderz/sessionkit/account"
)

// DefaultDashboard is the landing path for roles without a dedicated area.
const DefaultDashboard = "/dashboard"

// prefixRules maps a path prefix to the roles allowed under it. Paths
// outside every prefix are open to any authenticated role.
var prefixRules = []struct {
	prefix  string
	allowed []account.Role
}{
	{"/admin", []account.Role{account.RoleAdmin}},
	{"/tutor", []account.Role{account.RoleTutor, account.RoleAdmin}},
	{"/learner", []account.Role{account.RoleLearner, account.RoleAdmin}},
}

// Resolve returns intendedPath when the role may land there, and the
// role's default landing path otherwise (including when intendedPath is
// empty).
func Resolve(role account.Role, intendedPath string) string {
	if intendedPath != "" && IsAllowed(intendedPath, role) {
		return intendedPath
	}
	return DefaultPath(role)
}

// IsAllowed reports whether an authenticated user with the given role may
// visit path.
func IsAllowed(path string, role account.Role) bool {
	for _, rule := range prefixRules {
		if !matchesPrefix(path, rule.prefix) {
			continue
		}
		for _, allowed := range rule.allowed {
			if role == allowed {
				return true
			}
		}
		return false
	}
	return true
}

// DefaultPath returns the role's landing path.
func DefaultPath(role account.Role) string {
	switch role {
	case account.RoleAdmin:
		return "/admin"
	case account.RoleTutor:
		return "/tutor"
	case account.RoleLearner:
		return "/learner"
	}
	return DefaultDashboard
}

// matchesPrefix treats "/tutor" as matching "/tutor" and "/tutor/...",
// but not "/tutorials".
func matchesPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
