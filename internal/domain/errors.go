package domain

import "errors"

// Sentinel errors for every error kind in the design (§7). Bridge and
// engine code wraps these with errx.With/errx.Wrap so callers can still
// errors.Is against the kind while getting a human-readable message.
var (
	// ErrNotFound covers a missing function, file, or DNS name.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied covers a path escape, a denied module, a denied
	// network target, or a forbidden filesystem operation.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidArgument covers a bad encoding, algorithm name, or malformed URL.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrResourceExhausted covers pool exhaustion, memory limits, and KV quota.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrCanceled is the sentinel for the Canceled kind. The engine's timeout
	// path reports context.DeadlineExceeded and does not return this sentinel.
	ErrCanceled = errors.New("canceled")
	// ErrModuleDenied is returned for a bare specifier outside the allowed set.
	ErrModuleDenied = errors.New("module denied")
	// ErrInternal is an unexpected host-side failure; it always corrupts the guest.
	ErrInternal = errors.New("internal error")
)
