package registry

import "errors"

var (
	ErrInvalidRoundID          = errors.New("registry: roundId does not match the current round")
	ErrIntakeWindowClosed      = errors.New("registry: intake window is closed for this round")
	ErrInvalidTrader           = errors.New("registry: trader address is zero")
	ErrInvalidProtectedData    = errors.New("registry: protected data handle is zero")
	ErrInvalidCommitment       = errors.New("registry: commitment is zero")
	ErrIntentAlreadyRegistered = errors.New("registry: protected data handle already registered for this round")
	ErrArrayLengthMismatch     = errors.New("registry: batch argument slices have mismatched lengths")
	ErrUnauthorized            = errors.New("registry: caller is not the registry owner")
)
