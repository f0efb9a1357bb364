package hook

import "errors"

// Before-swap error kinds. Each check maps to exactly one of these; the
// hook returns the first one that fails.
var (
	ErrInvalidHookData    = errors.New("hook: payload absent or malformed")
	ErrUnauthorizedCaller = errors.New("hook: caller is neither trader nor an allowed caller")
	ErrInvalidSwapParams  = errors.New("hook: swap params do not match payload amount or currency direction")
	ErrRootNotSet         = errors.New("hook: round has no posted root")
	ErrRootExpired        = errors.New("hook: root validity window has elapsed")
	ErrMatchExpired       = errors.New("hook: match has expired")
	ErrMatchAlreadyUsed   = errors.New("hook: matchIdHash already redeemed")
	ErrLeafAlreadyUsed    = errors.New("hook: leaf already redeemed")
	ErrInvalidProof       = errors.New("hook: merkle proof does not verify against the posted root")
	ErrInvalidSignature   = errors.New("hook: signature does not recover to the registered tee signer")

	// After-swap.
	ErrMinAmountOutNotMet = errors.New("hook: realized output below the policy-adjusted minimum")

	// Owner operations.
	ErrInvalidTeeSigner = errors.New("hook: zero address is not a valid tee signer")
	ErrNotOwner         = errors.New("hook: caller is not the owner")
)
