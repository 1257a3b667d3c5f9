package jwtx

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/factstofaith/gigglefits-sub006/pkg/cryptox"
)

const (
	defaultNumKeys = 3
	maxNumKeys     = 10
)

// KeyManager owns the in-memory signing keys of one process. Keys are
// generated at startup and never persisted, so a restart invalidates every
// issued token.
type KeyManager struct {
	Verifier Verifier
	KeySet   *KeySet

	mu      sync.RWMutex
	signers []Signer
}

// KeyManagerOptions configures NewEphemeralKeyManager.
type KeyManagerOptions struct {
	Issuer   string
	Audience []string

	// NumKeys defaults to 3 and is capped at 10.
	NumKeys int

	// Now is the verification clock; nil means wall clock.
	Now func() time.Time

	// KeyPrefix prefixes generated key IDs.
	KeyPrefix string
}

// NewEphemeralKeyManager generates NumKeys Ed25519 signers and a verifier
// over their public keys.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}
	n := opts.NumKeys
	if n <= 0 {
		n = defaultNumKeys
	}
	n = min(n, maxNumKeys)
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "platform"
	}

	km := &KeyManager{KeySet: NewKeySet()}
	for i := range n {
		signer, err := newRandomSigner(prefix)
		if err != nil {
			return nil, fmt.Errorf("jwtx: signer %d: %w", i+1, err)
		}
		if err := km.AddSigner(signer); err != nil {
			return nil, err
		}
	}
	km.Verifier = NewVerifierEdDSA(km.KeySet, opts.Issuer, opts.Audience, opts.Now)
	return km, nil
}

func newRandomSigner(prefix string) (Signer, error) {
	suffix, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return nil, err
	}
	pemKey, err := cryptox.GenerateEd25519Key()
	if err != nil {
		return nil, err
	}
	return NewSignerEdDSA(prefix+"-"+suffix, pemKey)
}

// IsReady reports whether keys are loaded.
func (km *KeyManager) IsReady() bool {
	return km.KeySet.IsReady()
}

// GetSigner picks a signer at random to spread signing across keys.
func (km *KeyManager) GetSigner() Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()

	switch len(km.signers) {
	case 0:
		return nil
	case 1:
		return km.signers[0]
	default:
		return km.signers[rand.IntN(len(km.signers))]
	}
}

// NumSigners returns the number of signing keys.
func (km *KeyManager) NumSigners() int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return len(km.signers)
}

// AddSigner registers signer for signing and publishes its public key.
func (km *KeyManager) AddSigner(signer Signer) error {
	if signer == nil {
		return fmt.Errorf("jwtx: signer cannot be nil")
	}
	km.mu.Lock()
	defer km.mu.Unlock()
	if err := km.KeySet.AddSigner(signer); err != nil {
		return fmt.Errorf("jwtx: add signer to keyset: %w", err)
	}
	km.signers = append(km.signers, signer)
	return nil
}
