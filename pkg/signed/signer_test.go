package signed_test

import (
	"encoding/asn1"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authzkit/pkg/signed"
)

func TestECDSASigner(t *testing.T) {
	t.Parallel()
	data := []byte("canonical snapshot bytes")

	t.Run("p1363 is fixed length", func(t *testing.T) {
		t.Parallel()
		signer := signed.NewECDSASigner(testKey(t), "k1", signed.EncodingP1363)

		sig, err := signer.Sign(data)
		require.NoError(t, err)
		assert.Len(t, sig, 64, "P-256 P1363 signatures are exactly 2x32 bytes")
		assert.NoError(t, signer.Verify(data, sig))
	})

	t.Run("asn1 is variable length", func(t *testing.T) {
		t.Parallel()
		signer := signed.NewECDSASigner(testKey(t), "k1", signed.EncodingASN1)

		sig, err := signer.Sign(data)
		require.NoError(t, err)
		var parsed struct{ R, S *big.Int }
		_, err = asn1.Unmarshal(sig, &parsed)
		require.NoError(t, err, "signature must be a DER SEQUENCE")
		assert.NoError(t, signer.Verify(data, sig))
	})

	t.Run("rejects tampered data", func(t *testing.T) {
		t.Parallel()
		signer := signed.NewECDSASigner(testKey(t), "k1", signed.EncodingP1363)

		sig, err := signer.Sign(data)
		require.NoError(t, err)
		assert.ErrorIs(t, signer.Verify([]byte("other bytes"), sig), signed.ErrSignatureInvalid)
	})

	t.Run("rejects truncated p1363", func(t *testing.T) {
		t.Parallel()
		signer := signed.NewECDSASigner(testKey(t), "k1", signed.EncodingP1363)
		assert.ErrorIs(t, signer.Verify(data, []byte{1, 2, 3}), signed.ErrMalformedSig)
	})

	t.Run("p1363 converts to asn1", func(t *testing.T) {
		t.Parallel()
		signer := signed.NewECDSASigner(testKey(t), "k1", signed.EncodingP1363)

		sig, err := signer.Sign(data)
		require.NoError(t, err)
		der, err := signed.P1363ToASN1(sig)
		require.NoError(t, err)

		asn1Signer := signed.NewECDSASigner(signer.Key(), "k1", signed.EncodingASN1)
		assert.NoError(t, asn1Signer.Verify(data, der))
	})
}
