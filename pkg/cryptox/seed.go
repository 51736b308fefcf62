// Package cryptox holds the device key material helpers: master seed
// generation, HKDF seed derivation and the post-quantum signature and KEM
// wrappers built on cloudflare/circl.
package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// MasterSeedSize is the size of the random master seed a device identity is
// derived from. The signing and KEM seeds are both expanded from it, so the
// master seed is the only secret that has to be generated once.
const MasterSeedSize = 32

// HKDF info strings. Centralised so the derivation domain separation is
// auditable in one place.
const (
	infoSigningSeed = "keyfob/signing-seed"
	infoKEMSeed     = "keyfob/kem-seed"
)

// RandomSeed returns a fresh cryptographically random master seed.
func RandomSeed() ([]byte, error) {
	seed := make([]byte, MasterSeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("cryptox: failed to generate master seed: %w", err)
	}
	return seed, nil
}

// DeriveSigningSeed expands the master seed into the signature scheme's seed.
func DeriveSigningSeed(master []byte) ([]byte, error) {
	return expand(master, infoSigningSeed, SigningSeedSize())
}

// DeriveKEMSeed expands the master seed into the KEM scheme's seed.
func DeriveKEMSeed(master []byte) ([]byte, error) {
	return expand(master, infoKEMSeed, KEMSeedSize())
}

func expand(master []byte, info string, size int) ([]byte, error) {
	if len(master) != MasterSeedSize {
		return nil, fmt.Errorf("cryptox: master seed must be %d bytes, got %d", MasterSeedSize, len(master))
	}

	out := make([]byte, size)
	kdf := hkdf.New(sha256.New, master, nil, []byte(info))
	if _, err := io.ReadFull(kdf, out); err != nil {
		return nil, fmt.Errorf("cryptox: seed expansion failed: %w", err)
	}
	return out, nil
}
