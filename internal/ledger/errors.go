package ledger

import "errors"

// Domain errors returned by the Engine. The API layer maps these to HTTP
// status codes; any other error is a storage fault and maps to 500.
var (
	// ErrUnauthenticated means no acting user could be resolved for the request.
	ErrUnauthenticated = errors.New("no authenticated user")

	// ErrUnauthorized means the acting user tried to debit an account they do not own.
	ErrUnauthorized = errors.New("account not owned by user")

	// ErrNotFound means a referenced account does not exist.
	ErrNotFound = errors.New("account not found")

	// ErrInvalidAmount means the amount was zero, negative, or malformed.
	ErrInvalidAmount = errors.New("amount must be positive")
)
