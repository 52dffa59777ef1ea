// Package errx wraps a sentinel kind error (see internal/domain) with
// caller-supplied context while keeping errors.Is against the sentinel
// working. This is the error-handling idiom used throughout the runtime:
// every bridge and engine failure is one of the kinds enumerated in
// internal/domain, optionally decorated with a message or a wrapped cause.
package errx

import "fmt"

// With decorates sentinel with a formatted message. The returned error's
// Error() reads "<sentinel><formatted message>" with nothing inserted in
// between, so callers begin format with ": "; errors.Is(result, sentinel)
// is true.
func With(sentinel error, format string, args ...any) error {
	return &kindError{sentinel: sentinel, msg: fmt.Sprintf(format, args...)}
}

// Wrap decorates sentinel with an underlying cause. errors.Is(result,
// sentinel) and errors.Is(result, cause) are both true.
func Wrap(sentinel error, cause error) error {
	return &kindError{sentinel: sentinel, cause: cause}
}

type kindError struct {
	sentinel error
	msg      string
	cause    error
}

func (e *kindError) Error() string {
	switch {
	case e.cause != nil && e.msg != "":
		return fmt.Sprintf("%s%s: %v", e.sentinel.Error(), e.msg, e.cause)
	case e.cause != nil:
		return fmt.Sprintf("%s: %v", e.sentinel.Error(), e.cause)
	case e.msg != "":
		return e.sentinel.Error() + e.msg
	default:
		return e.sentinel.Error()
	}
}

func (e *kindError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.sentinel, e.cause}
	}
	return []error{e.sentinel}
}
