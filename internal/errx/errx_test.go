package errx

import (
	"errors"
	"testing"
)

var errSentinel = errors.New("sentinel")

func TestWithMatchesSentinel(t *testing.T) {
	err := With(errSentinel, ": path %q", "/etc/passwd")
	if !errors.Is(err, errSentinel) {
		t.Fatalf("errors.Is(%v, sentinel) = false, want true", err)
	}
	if got, want := err.Error(), `sentinel: path "/etc/passwd"`; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestWrapMatchesBothSentinelAndCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(errSentinel, cause)
	if !errors.Is(err, errSentinel) {
		t.Fatalf("errors.Is against sentinel = false")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is against cause = false")
	}
}
