package engine

import "fmt"

// ValidationError marks malformed or unacceptable input.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError rejects a state-machine move whose precondition
// does not hold. Nothing is mutated when it is returned.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition %s -> %s", e.Entity, e.From, e.To)
}

// UnsupportedFormatError rejects an export format not registered for a
// deliverable.
type UnsupportedFormatError struct {
	Format string
}

func (e UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported export format %q", e.Format)
}

// NotReadyError rejects an export of a deliverable that has not been
// published while export gating is enabled.
type NotReadyError struct {
	State string
}

func (e NotReadyError) Error() string {
	return fmt.Sprintf("deliverable not published (review_state=%s)", e.State)
}
