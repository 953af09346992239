package domain

import "errors"

var (
	// ErrUnauthorized means no credential exists for the user; the external
	// authorization flow has never completed.
	ErrUnauthorized = errors.New("calendar not authorized")

	// ErrReauthorizationRequired means a credential exists but its refresh
	// token is permanently invalid; the user must re-run authorization.
	ErrReauthorizationRequired = errors.New("calendar reauthorization required")

	// ErrProviderUnavailable covers transient provider failures: network
	// errors, timeouts and 5xx responses. Callers may retry later.
	ErrProviderUnavailable = errors.New("calendar provider unavailable")

	// ErrConflict means the requested slot is no longer free.
	ErrConflict = errors.New("slot conflict")
)
