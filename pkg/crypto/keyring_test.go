package crypto

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonate-labs/sonate/core/pkg/contracts"
)

func TestKeyRingRotation(t *testing.T) {
	ring := NewKeyRing()

	v1Signer, err := NewEd25519SignerFromSeed(testSeed, "v1")
	require.NoError(t, err)
	require.NoError(t, ring.SetSigner(v1Signer.WithClock(testClock())))

	// Receipt signed under v1.
	oldReceipt, err := ring.SignReceipt(buildUnsigned(t))
	require.NoError(t, err)
	assert.Equal(t, "v1", oldReceipt.Signature.KeyVersion)

	// Rotate to v2; v1 stays on the ring for old receipts.
	v2Signer, err := NewEd25519Signer("v2")
	require.NoError(t, err)
	require.NoError(t, ring.SetSigner(v2Signer.WithClock(testClock())))
	assert.Equal(t, []string{"v1", "v2"}, ring.KeyVersions())

	newReceipt, err := ring.SignReceipt(buildUnsigned(t))
	require.NoError(t, err)
	assert.Equal(t, "v2", newReceipt.Signature.KeyVersion)

	// Both generations stay verifiable after rotation.
	for _, r := range []*contracts.TrustReceipt{oldReceipt, newReceipt} {
		res := ring.VerifyReceipt(r)
		assert.True(t, res.Signature.Passed, "key version %s", r.Signature.KeyVersion)
		assert.True(t, res.Structure.Passed)
		assert.True(t, res.Chain.Passed)
	}
}

func TestKeyRingUnknownKeyVersion(t *testing.T) {
	ring := NewKeyRing()
	signer, err := NewEd25519SignerFromSeed(testSeed, "v1")
	require.NoError(t, err)
	require.NoError(t, ring.SetSigner(signer.WithClock(testClock())))

	signed, err := ring.SignReceipt(buildUnsigned(t))
	require.NoError(t, err)
	signed.Signature.KeyVersion = "v9"

	res := ring.VerifyReceipt(signed)
	assert.False(t, res.Valid)
	assert.False(t, res.Structure.Passed)
	assert.Contains(t, res.Structure.Message, "v9")
}

func TestKeyRingRevocation(t *testing.T) {
	ring := NewKeyRing()
	signer, err := NewEd25519SignerFromSeed(testSeed, "v1")
	require.NoError(t, err)
	require.NoError(t, ring.SetSigner(signer.WithClock(testClock())))

	signed, err := ring.SignReceipt(buildUnsigned(t))
	require.NoError(t, err)

	ring.RevokeKey("v1")
	assert.Empty(t, ring.KeyVersions())

	res := ring.VerifyReceipt(signed)
	assert.False(t, res.Valid)

	_, err = ring.SignReceipt(buildUnsigned(t))
	var serr *SigningError
	require.True(t, errors.As(err, &serr), "revoking the active key disables signing")
}

func TestKeyRingNoActiveSigner(t *testing.T) {
	ring := NewKeyRing()
	_, err := ring.SignReceipt(buildUnsigned(t))
	require.Error(t, err)
	require.Error(t, ring.SetSigner(nil))
}

func TestKeyRingNilReceipt(t *testing.T) {
	ring := NewKeyRing()
	res := ring.VerifyReceipt(nil)
	assert.False(t, res.Valid)
}
