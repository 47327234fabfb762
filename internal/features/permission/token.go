package permission

import (
	"regexp"
	"slices"
	"strings"

	"kod-admin/internal/broadcast"
)

// SuperAdminRole is published as the union of every other role's tokens.
const SuperAdminRole = "super admin"

// Fixed roles seeded at install time; they can never be deleted.
var FixedRoles = []string{SuperAdminRole, "admin", "hr", "employee"}

var tokenPattern = regexp.MustCompile(`^[a-z0-9_]+\.[a-z0-9_]+$`)

// Token is a capability identifier of the form <module>.<action>, e.g.
// "employee.create". Construct it with ParseToken.
type Token string

// ParseToken validates raw as a permission token.
func ParseToken(raw string) (Token, error) {
	if !tokenPattern.MatchString(raw) {
		return "", &ValidationError{Field: "permissions", Value: raw, Reason: "must match <module>.<action> using [a-z0-9_]"}
	}
	return Token(raw), nil
}

// Module returns the part before the dot.
func (t Token) Module() string {
	module, _, _ := strings.Cut(string(t), ".")
	return module
}

// Action returns the part after the dot.
func (t Token) Action() string {
	_, action, _ := strings.Cut(string(t), ".")
	return action
}

func (t Token) String() string {
	return string(t)
}

// Set is an unordered collection of unique tokens.
type Set map[Token]struct{}

// ParseSet validates every entry of raw and collapses duplicates. The first
// malformed token aborts the whole parse.
func ParseSet(raw []string) (Set, error) {
	set := make(Set, len(raw))
	for _, r := range raw {
		t, err := ParseToken(r)
		if err != nil {
			return nil, err
		}
		set[t] = struct{}{}
	}
	return set, nil
}

func (s Set) Has(t Token) bool {
	_, ok := s[t]
	return ok
}

// Union adds every token of other to s.
func (s Set) Union(other Set) {
	for t := range other {
		s[t] = struct{}{}
	}
}

// Strings returns the tokens sorted, never nil.
func (s Set) Strings() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, string(t))
	}
	slices.Sort(out)
	return out
}

// NormalizeRole trims and lower-cases a role name.
func NormalizeRole(role string) string {
	return broadcast.NormalizeKey(role)
}

// IsSuperAdmin reports whether role names the aggregate role.
func IsSuperAdmin(role string) bool {
	return NormalizeRole(role) == SuperAdminRole
}

// IsFixedRole reports whether role is one of the seeded, non-removable roles.
func IsFixedRole(role string) bool {
	return slices.Contains(FixedRoles, NormalizeRole(role))
}
