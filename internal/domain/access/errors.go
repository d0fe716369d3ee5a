package access

import "errors"

// Domain errors for the access model.
var (
	// ErrAlreadyAllowed means the user is already on the allow list.
	ErrAlreadyAllowed = errors.New("user already allowed")

	// ErrNotAllowed means the user is not on the allow list.
	ErrNotAllowed = errors.New("user not allowed")
)
