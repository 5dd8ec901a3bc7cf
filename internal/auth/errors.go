package auth

import "errors"

var (
	// ErrAccountLocked blocks logins while the lockout window holds. It is
	// surfaced distinctly from bad credentials (a rate-limiting signal,
	// not an account-existence leak).
	ErrAccountLocked = errors.New("account temporarily locked")

	// ErrInvalidCredentials covers unknown identifiers and wrong secrets
	// with one message, so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid username or password")
)
