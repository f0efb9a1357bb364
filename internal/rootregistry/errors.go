package rootregistry

import "errors"

var (
	ErrRoundClosed            = errors.New("rootregistry: round is closed, no further intents accepted")
	ErrRootAlreadySet         = errors.New("rootregistry: a root is already posted for this round")
	ErrInvalidProtectedData   = errors.New("rootregistry: protected data handle is zero")
	ErrIntentAlreadySubmitted = errors.New("rootregistry: protected data handle already submitted")
	ErrRoundNotClosed         = errors.New("rootregistry: round must be closed before posting a root")
	ErrInvalidRoot            = errors.New("rootregistry: root must be non-zero")
	ErrInvalidValidUntil      = errors.New("rootregistry: validUntil must be in the future")
	ErrRootLocked             = errors.New("rootregistry: root is locked and can no longer be rewritten")
	ErrNotMatcher             = errors.New("rootregistry: caller is not the bound matcher")
	ErrRootNotSet             = errors.New("rootregistry: no root has been posted for this round")
	ErrUnauthorized           = errors.New("rootregistry: caller is not the registry owner")
)
