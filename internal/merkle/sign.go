package merkle

import (
	"errors"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shadowpool/shadowpool/internal/domain"
)

// ErrInvalidSignature is returned when a signature fails to recover to
// the expected signer, or is malformed.
var ErrInvalidSignature = errors.New("merkle: signature does not recover to the expected signer")

// ethPrefix is the Ethereum personal-message prefix for a 32-byte digest.
const ethPrefix = "\x19Ethereum Signed Message:\n32"

// EthSignedMessageHash computes keccak256("\x19Ethereum Signed Message:\n32" ‖ leaf),
// the digest that is actually ECDSA-signed.
func EthSignedMessageHash(leaf domain.Hash) domain.Hash {
	return crypto.Keccak256Hash([]byte(ethPrefix), leaf.Bytes())
}

// Signer produces a 65-byte (r ‖ s ‖ v) signature over a 32-byte digest.
// Satisfied by internal/teesigner.Session.
type Signer interface {
	SignDigest(digest domain.Hash) ([65]byte, error)
}

// SignLeaf signs the Ethereum prefixed hash of a match leaf with signer and
// returns the signer's 65-byte signature unchanged (teesigner.Session
// emits v as 27/28, the Ethereum wallet convention).
func SignLeaf(signer Signer, leaf domain.Hash) ([65]byte, error) {
	return signer.SignDigest(EthSignedMessageHash(leaf))
}

// RecoverSigner recovers the signer address from a leaf signature. The
// signature's v byte may be 0/1 or 27/28; both are normalized before
// recovery.
func RecoverSigner(leaf domain.Hash, sig [65]byte) (domain.Address, error) {
	digest := EthSignedMessageHash(leaf)

	normalized := sig
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	if normalized[64] > 1 {
		return domain.Address{}, ErrInvalidSignature
	}

	pub, err := crypto.SigToPub(digest.Bytes(), normalized[:])
	if err != nil {
		return domain.Address{}, ErrInvalidSignature
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySignature reports whether sig recovers to expected for leaf.
func VerifySignature(leaf domain.Hash, sig [65]byte, expected domain.Address) bool {
	addr, err := RecoverSigner(leaf, sig)
	if err != nil {
		return false
	}
	return addr == expected
}
