package signed

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/asn1"
	"fmt"
	"math/big"
)

// Signer produces and verifies detached signatures over canonical snapshot
// bytes. Implementations must be safe for concurrent use.
type Signer interface {
	Sign(data []byte) ([]byte, error)
	Verify(data, sig []byte) error
	KeyID() string
}

// Encoding selects the wire form of an ECDSA signature.
type Encoding int

const (
	// EncodingP1363 is the fixed-length r||s concatenation, each integer
	// left-padded to the curve size. This is the form JWS uses.
	EncodingP1363 Encoding = iota

	// EncodingASN1 is the variable-length DER SEQUENCE of r and s.
	EncodingASN1
)

// ECDSASigner signs snapshot bytes with an ECDSA key over SHA-256.
type ECDSASigner struct {
	key   *ecdsa.PrivateKey
	keyID string
	enc   Encoding
}

// NewECDSASigner wraps the private key. keyID travels with every snapshot
// so consumers can pick the matching public key during rotation.
func NewECDSASigner(key *ecdsa.PrivateKey, keyID string, enc Encoding) *ECDSASigner {
	if key == nil {
		panic("signed: ecdsa key cannot be nil")
	}
	return &ECDSASigner{key: key, keyID: keyID, enc: enc}
}

func (s *ECDSASigner) KeyID() string { return s.keyID }

// Key returns the underlying private key, for JWS publishing which signs
// through the JOSE stack rather than this interface.
func (s *ECDSASigner) Key() *ecdsa.PrivateKey { return s.key }

func (s *ECDSASigner) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	if s.enc == EncodingASN1 {
		return ecdsa.SignASN1(rand.Reader, s.key, digest[:])
	}

	r, ss, err := ecdsa.Sign(rand.Reader, s.key, digest[:])
	if err != nil {
		return nil, err
	}
	size := (s.key.Curve.Params().BitSize + 7) / 8
	out := make([]byte, 2*size)
	r.FillBytes(out[:size])
	ss.FillBytes(out[size:])
	return out, nil
}

func (s *ECDSASigner) Verify(data, sig []byte) error {
	digest := sha256.Sum256(data)
	pub := &s.key.PublicKey

	if s.enc == EncodingASN1 {
		if !ecdsa.VerifyASN1(pub, digest[:], sig) {
			return ErrSignatureInvalid
		}
		return nil
	}

	size := (pub.Curve.Params().BitSize + 7) / 8
	if len(sig) != 2*size {
		return fmt.Errorf("%w: want %d bytes, got %d", ErrMalformedSig, 2*size, len(sig))
	}
	r := new(big.Int).SetBytes(sig[:size])
	ss := new(big.Int).SetBytes(sig[size:])
	if !ecdsa.Verify(pub, digest[:], r, ss) {
		return ErrSignatureInvalid
	}
	return nil
}

// ecdsaSignature mirrors the DER structure of an ASN.1 encoded signature.
type ecdsaSignature struct {
	R, S *big.Int
}

// P1363ToASN1 re-encodes a fixed-length signature as DER, for consumers
// that expect the variable-length form.
func P1363ToASN1(sig []byte) ([]byte, error) {
	if len(sig) == 0 || len(sig)%2 != 0 {
		return nil, fmt.Errorf("%w: odd length %d", ErrMalformedSig, len(sig))
	}
	half := len(sig) / 2
	return asn1.Marshal(ecdsaSignature{
		R: new(big.Int).SetBytes(sig[:half]),
		S: new(big.Int).SetBytes(sig[half:]),
	})
}
