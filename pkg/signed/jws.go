package signed

import (
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrJWSUnavailable is returned when the publisher's signer does not expose
// an ECDSA key for the JOSE stack.
var ErrJWSUnavailable = errors.New("signed: jws publishing needs an ecdsa signer")

// keyed is satisfied by ECDSASigner; JWS signing goes through the JOSE
// library and needs the raw key rather than the Sign method.
type keyed interface {
	Key() *ecdsa.PrivateKey
}

// JWSDomain publishes one domain as a compact JSON Web Signature signed
// with ES256. The committed modification tag rides in the claims and the
// same conditional semantics apply as in GetSignedDomain. ES256 signatures
// are fixed-length P1363; set p1363 to false to re-encode the signature
// segment as ASN.1 DER for consumers that expect it.
func (p *Publisher) JWSDomain(ctx context.Context, name string, matchTag uint64, p1363 bool) (string, bool, error) {
	ks, ok := p.signer.(keyed)
	if !ok {
		return "", false, ErrJWSUnavailable
	}

	d, err := p.store.LoadDomain(ctx, name)
	if err != nil {
		return "", false, err
	}
	if matchTag != 0 && matchTag == d.Tag {
		return "", false, nil
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"domain": d,
		"tag":    d.Tag,
		"iat":    p.now().Unix(),
	})
	token.Header["kid"] = p.signer.KeyID()

	compact, err := token.SignedString(ks.Key())
	if err != nil {
		return "", false, err
	}
	if !p1363 {
		compact, err = asn1Signature(compact)
		if err != nil {
			return "", false, err
		}
	}
	return compact, true, nil
}

// asn1Signature re-encodes the signature segment of a compact JWS from
// P1363 to DER.
func asn1Signature(compact string) (string, error) {
	head, sigPart, ok := strings.Cut(compact, ".")
	if !ok {
		return "", ErrMalformedSig
	}
	payload, sigPart, ok := strings.Cut(sigPart, ".")
	if !ok {
		return "", ErrMalformedSig
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return "", err
	}
	der, err := P1363ToASN1(sig)
	if err != nil {
		return "", err
	}
	return head + "." + payload + "." + base64.RawURLEncoding.EncodeToString(der), nil
}
