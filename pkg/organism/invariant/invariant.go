// Package invariant reports broken configuration-time contracts detected while
// an organism is running. Violations are fatal: they panic with *Error and are
// never defaulted or swallowed by the pipeline.
package invariant

import "fmt"

// Error describes a violated invariant.
type Error struct {
	Component string
	Detail    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("organism invariant violated in %s: %s", e.Component, e.Detail)
}

// Fail panics with an *Error for the given component.
func Fail(component, format string, args ...any) {
	panic(&Error{Component: component, Detail: fmt.Sprintf(format, args...)})
}

// Recover converts a recovered *Error back into an error. Any other panic
// value is re-raised untouched.
func Recover(recovered any) error {
	if recovered == nil {
		return nil
	}
	if err, ok := recovered.(*Error); ok {
		return err
	}
	panic(recovered)
}
