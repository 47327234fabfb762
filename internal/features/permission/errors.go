package permission

import "fmt"

// ValidationError rejects input before anything is written.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// InfrastructureError wraps a broadcast store failure.
type InfrastructureError struct {
	Op   string
	Path string
	Err  error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("permission %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}
