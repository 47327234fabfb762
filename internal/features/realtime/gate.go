package realtime

// Decision is the outcome of a gate check.
type Decision int

const (
	// Pending means the permission set is not known yet. It must be rendered
	// as a loading state and never treated as allowed.
	Pending Decision = iota
	Allow
	Deny
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return "pending"
	}
}

func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ViewSource is anything that can report the current permission view.
type ViewSource interface {
	Current() View
}

// Gate answers permission checks against a live view.
type Gate struct {
	source ViewSource
}

func NewGate(source ViewSource) *Gate {
	return &Gate{source: source}
}

func (g *Gate) Check(token string) Decision {
	return Decide(g.source.Current(), token)
}

// IsAllowed is true only when the token is present in a live set.
func (g *Gate) IsAllowed(token string) bool {
	return g.Check(token) == Allow
}

// Decide evaluates token against v.
func Decide(v View, token string) Decision {
	switch v.State {
	case StateIdle, StateSubscribing:
		return Pending
	case StateLive:
		if v.Has(token) {
			return Allow
		}
		return Deny
	default:
		return Deny
	}
}
