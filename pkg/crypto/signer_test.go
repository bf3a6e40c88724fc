package crypto

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonate-labs/sonate/core/pkg/contracts"
	"github.com/sonate-labs/sonate/core/pkg/receipt"
)

const testSeed = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"

func testClock() func() time.Time {
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func buildUnsigned(t *testing.T) *contracts.TrustReceipt {
	t.Helper()
	b := receipt.NewBuilder(receipt.WithClock(testClock()))
	r, err := b.Build(receipt.Input{
		SessionID: "session-1",
		Prompt:    "question",
		Response:  "answer",
		Model:     "gpt-test",
	})
	require.NoError(t, err)
	return r
}

func TestSignReceipt(t *testing.T) {
	signer, err := NewEd25519SignerFromSeed(testSeed, "v1")
	require.NoError(t, err)

	unsigned := buildUnsigned(t)
	signed, err := signer.WithClock(testClock()).SignReceipt(unsigned)
	require.NoError(t, err)

	require.NotNil(t, signed.Signature)
	assert.Equal(t, contracts.SignatureAlgorithm, signed.Signature.Algorithm)
	assert.Equal(t, "v1", signed.Signature.KeyVersion)
	assert.Len(t, signed.Signature.Value, 128) // 64-byte signature, hex
	assert.NotEmpty(t, signed.Signature.TimestampSigned)

	assert.Nil(t, unsigned.Signature, "input receipt must not be mutated")
}

func TestSignReceiptDeterministic(t *testing.T) {
	// RFC 8032 signatures are deterministic: two signers from the same seed
	// must produce byte-identical signatures over the same receipt.
	s1, err := NewEd25519SignerFromSeed(testSeed, "v1")
	require.NoError(t, err)
	s2, err := NewEd25519SignerFromSeed(testSeed, "v1")
	require.NoError(t, err)
	assert.Equal(t, s1.PublicKeyHex(), s2.PublicKeyHex())

	r := buildUnsigned(t)
	a, err := s1.WithClock(testClock()).SignReceipt(r)
	require.NoError(t, err)
	b, err := s2.WithClock(testClock()).SignReceipt(r)
	require.NoError(t, err)

	assert.Equal(t, a.Signature.Value, b.Signature.Value)
}

func TestSignReceiptRequiresChainHash(t *testing.T) {
	signer, err := NewEd25519SignerFromSeed(testSeed, "v1")
	require.NoError(t, err)

	r := buildUnsigned(t)
	r.Chain.ChainHash = ""
	_, err = signer.SignReceipt(r)
	require.Error(t, err)

	var serr *SigningError
	require.True(t, errors.As(err, &serr))
	assert.Contains(t, serr.Reason, "chain_hash")
}

func TestSignReceiptNilReceipt(t *testing.T) {
	signer, err := NewEd25519SignerFromSeed(testSeed, "v1")
	require.NoError(t, err)
	_, err = signer.SignReceipt(nil)

	var serr *SigningError
	require.True(t, errors.As(err, &serr))
}

func TestNewEd25519SignerFromSeedErrors(t *testing.T) {
	cases := []struct {
		name string
		seed string
	}{
		{"not hex", "zz" + testSeed[2:]},
		{"too short", testSeed[:32]},
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEd25519SignerFromSeed(tc.seed, "v1")
			require.Error(t, err)

			var serr *SigningError
			assert.True(t, errors.As(err, &serr))
		})
	}
}

func TestNewEd25519SignerGeneratesDistinctKeys(t *testing.T) {
	a, err := NewEd25519Signer("v1")
	require.NoError(t, err)
	b, err := NewEd25519Signer("v1")
	require.NoError(t, err)
	assert.NotEqual(t, a.PublicKeyHex(), b.PublicKeyHex())
}

func TestVerifyHex(t *testing.T) {
	signer, err := NewEd25519SignerFromSeed(testSeed, "v1")
	require.NoError(t, err)

	payload := []byte("payload bytes")
	sig, err := signer.Sign(payload)
	require.NoError(t, err)
	assert.Equal(t, sig, strings.ToLower(sig))

	ok, err := VerifyHex(signer.PublicKeyHex(), sig, payload)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyHex(signer.PublicKeyHex(), sig, []byte("tampered"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifyHex("nothex", sig, payload)
	assert.Error(t, err)
	_, err = VerifyHex(signer.PublicKeyHex(), "abcd", payload)
	assert.Error(t, err)
}
