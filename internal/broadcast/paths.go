package broadcast

import "strings"

// Roots of the broadcast tree. Non-production environments never touch the
// production tree.
const (
	RootProduction = "permissions"
	RootLocal      = "permissions_local"
)

// Paths maps role names onto broadcast store paths.
type Paths struct {
	root string
}

// NewPaths selects the root for the given environment name.
func NewPaths(environment string) Paths {
	if strings.EqualFold(strings.TrimSpace(environment), "production") {
		return Paths{root: RootProduction}
	}
	return Paths{root: RootLocal}
}

func (p Paths) Root() string {
	if p.root == "" {
		return RootLocal
	}
	return p.root
}

// For returns the path of a role's snapshot. Role names are case-insensitive.
func (p Paths) For(role string) string {
	return p.Root() + "/" + NormalizeKey(role)
}

// NormalizeKey trims and lower-cases a role name.
func NormalizeKey(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
