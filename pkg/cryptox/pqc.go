package cryptox

import (
	"fmt"

	"github.com/cloudflare/circl/kem/kyber/kyber768"
	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
)

// SigningAlgorithm names the signature scheme in wire and storage tags.
// ML-DSA-44 is the standardised Dilithium2 parameter set.
const SigningAlgorithm = "ML-DSA-44"

// KEMAlgorithm names the key-encapsulation scheme registered alongside the
// signing key.
const KEMAlgorithm = "Kyber768"

// SigningSeedSize returns the seed length the signature scheme derives
// keypairs from.
func SigningSeedSize() int { return mldsa44.Scheme().SeedSize() }

// KEMSeedSize returns the seed length the KEM scheme derives keypairs from.
func KEMSeedSize() int { return kyber768.Scheme().SeedSize() }

// SigningKeypairFromSeed deterministically derives the device signing
// keypair. The same seed always yields the same keypair, which is what makes
// the one-time identity migration idempotent.
func SigningKeypairFromSeed(seed []byte) (pub, priv []byte, err error) {
	if len(seed) != SigningSeedSize() {
		return nil, nil, fmt.Errorf("cryptox: signing seed must be %d bytes, got %d", SigningSeedSize(), len(seed))
	}

	publicKey, privateKey := mldsa44.Scheme().DeriveKey(seed)

	pub, err = publicKey.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("cryptox: failed to marshal public key: %w", err)
	}
	priv, err = privateKey.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("cryptox: failed to marshal private key: %w", err)
	}
	return pub, priv, nil
}

// Sign signs message with a packed private key produced by
// SigningKeypairFromSeed.
func Sign(priv, message []byte) ([]byte, error) {
	privateKey, err := mldsa44.Scheme().UnmarshalBinaryPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("cryptox: invalid private key: %w", err)
	}
	return mldsa44.Scheme().Sign(privateKey, message, nil), nil
}

// Verify reports whether signature is valid for message under a packed
// public key. Any unmarshal failure counts as an invalid signature.
func Verify(pub, message, signature []byte) bool {
	publicKey, err := mldsa44.Scheme().UnmarshalBinaryPublicKey(pub)
	if err != nil {
		return false
	}
	return mldsa44.Scheme().Verify(publicKey, message, signature, nil)
}

// KEMPublicKeyFromSeed deterministically derives the device's KEM public
// key. Only the public key is ever exported; the private half is
// re-derivable from the master seed if encapsulation is ever needed.
func KEMPublicKeyFromSeed(seed []byte) ([]byte, error) {
	if len(seed) != KEMSeedSize() {
		return nil, fmt.Errorf("cryptox: KEM seed must be %d bytes, got %d", KEMSeedSize(), len(seed))
	}

	publicKey, _ := kyber768.Scheme().DeriveKeyPair(seed)
	pub, err := publicKey.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to marshal KEM public key: %w", err)
	}
	return pub, nil
}
