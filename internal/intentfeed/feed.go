// Package intentfeed stands in for the encryption/attestation transport,
// an opaque channel delivering encrypted intent blobs to the matcher when
// authorized. The transport itself is an external collaborator, but
// something has to hand the matcher its ciphertexts: Feed is the thinnest
// possible implementation of that channel, an in-memory inbox keyed by
// protectedDataHandle, fed by whatever process terminates the real
// transport and drained once per round by the matcher.
package intentfeed

import (
	"sync"

	"github.com/shadowpool/shadowpool/internal/domain"
)

// Feed holds KMS-encrypted intent ciphertexts keyed by the handle they were
// registered under, until the matcher collects them for a round.
type Feed struct {
	mu   sync.Mutex
	data map[domain.Address][]byte
}

// NewFeed returns an empty Feed.
func NewFeed() *Feed {
	return &Feed{data: make(map[domain.Address][]byte)}
}

// Put stores ciphertext for handle, overwriting any previous value.
func (f *Feed) Put(handle domain.Address, ciphertext []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[handle] = ciphertext
}

// Get returns the ciphertext registered for handle, if any.
func (f *Feed) Get(handle domain.Address) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ct, ok := f.data[handle]
	return ct, ok
}

// Delete removes handle's ciphertext once it has been consumed.
func (f *Feed) Delete(handle domain.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, handle)
}
