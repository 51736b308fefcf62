package cryptox_test

import (
	"testing"

	"github.com/aussiebroadwan/keyfob/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestRandomSeed(t *testing.T) {
	t.Parallel()

	a, err := cryptox.RandomSeed()
	require.NoError(t, err)
	require.Len(t, a, cryptox.MasterSeedSize)

	b, err := cryptox.RandomSeed()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestSeedDerivationIsDeterministicAndSeparated(t *testing.T) {
	t.Parallel()

	master, err := cryptox.RandomSeed()
	require.NoError(t, err)

	signA, err := cryptox.DeriveSigningSeed(master)
	require.NoError(t, err)
	signB, err := cryptox.DeriveSigningSeed(master)
	require.NoError(t, err)
	require.Equal(t, signA, signB)
	require.Len(t, signA, cryptox.SigningSeedSize())

	kem, err := cryptox.DeriveKEMSeed(master)
	require.NoError(t, err)
	require.Len(t, kem, cryptox.KEMSeedSize())

	// Distinct info strings must yield unrelated output.
	require.NotEqual(t, signA, kem[:len(signA)])
}

func TestDeriveRejectsWrongSeedLength(t *testing.T) {
	t.Parallel()

	_, err := cryptox.DeriveSigningSeed([]byte("short"))
	require.Error(t, err)
}

func TestSigningRoundTrip(t *testing.T) {
	t.Parallel()

	master, err := cryptox.RandomSeed()
	require.NoError(t, err)
	seed, err := cryptox.DeriveSigningSeed(master)
	require.NoError(t, err)

	pub, priv, err := cryptox.SigningKeypairFromSeed(seed)
	require.NoError(t, err)

	message := []byte("01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV:approve")
	sig, err := cryptox.Sign(priv, message)
	require.NoError(t, err)

	require.True(t, cryptox.Verify(pub, message, sig))
	require.False(t, cryptox.Verify(pub, []byte("01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV:deny"), sig))
}

func TestKeypairFromSeedIsDeterministic(t *testing.T) {
	t.Parallel()

	master, err := cryptox.RandomSeed()
	require.NoError(t, err)
	seed, err := cryptox.DeriveSigningSeed(master)
	require.NoError(t, err)

	pubA, privA, err := cryptox.SigningKeypairFromSeed(seed)
	require.NoError(t, err)
	pubB, privB, err := cryptox.SigningKeypairFromSeed(seed)
	require.NoError(t, err)

	require.Equal(t, pubA, pubB)
	require.Equal(t, privA, privB)
}

func TestKEMPublicKeyFromSeed(t *testing.T) {
	t.Parallel()

	master, err := cryptox.RandomSeed()
	require.NoError(t, err)
	seed, err := cryptox.DeriveKEMSeed(master)
	require.NoError(t, err)

	pubA, err := cryptox.KEMPublicKeyFromSeed(seed)
	require.NoError(t, err)
	require.NotEmpty(t, pubA)

	pubB, err := cryptox.KEMPublicKeyFromSeed(seed)
	require.NoError(t, err)
	require.Equal(t, pubA, pubB)
}

func TestVerifyRejectsGarbageKey(t *testing.T) {
	t.Parallel()

	require.False(t, cryptox.Verify([]byte("not a key"), []byte("msg"), []byte("sig")))
}
