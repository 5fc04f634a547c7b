package usertoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Claims is the signed content of a user token. Services, when present,
// restricts the token to acting through the named services only; an empty
// list means the token is unscoped.
type Claims struct {
	Principal  string    `json:"p"`
	KeyVersion string    `json:"v"`
	IssuedAt   time.Time `json:"iat"`
	ExpiresAt  time.Time `json:"exp"`
	Services   []string  `json:"svc,omitempty"`
}

// Issuer mints and verifies tokens. Safe for concurrent use.
type Issuer struct {
	secrets map[string]string // key version -> secret
	active  string            // version used for minting
	ttl     time.Duration
	now     func() time.Time
}

// Option configures the Issuer.
type Option func(*Issuer)

// WithTTL overrides the default one hour token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) { i.ttl = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an issuer over the given secrets. active names the key
// version new tokens are minted under; it must be present in secrets.
func NewIssuer(secrets map[string]string, active string, opts ...Option) (*Issuer, error) {
	if _, ok := secrets[active]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, active)
	}
	i := &Issuer{
		secrets: secrets,
		active:  active,
		ttl:     time.Hour,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Mint issues an unscoped token for the principal under the active key
// version.
func (i *Issuer) Mint(principal string) (string, error) {
	return i.MintScoped(principal, nil)
}

// MintScoped issues a token restricted to the given services. Callers are
// expected to have checked the principal's right to each service first;
// the issuer signs whatever scope it is handed.
func (i *Issuer) MintScoped(principal string, services []string) (string, error) {
	now := i.now().UTC()
	claims := Claims{
		Principal:  principal,
		KeyVersion: i.active,
		IssuedAt:   now,
		ExpiresAt:  now.Add(i.ttl),
		Services:   services,
	}

	data, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data) + "." +
		base64.RawURLEncoding.EncodeToString(sign(data, i.secrets[i.active])), nil
}

// Parse verifies the signature and expiry and returns the claims. The key
// version embedded in the claims selects the verification secret, so tokens
// minted before a rotation keep verifying until they expire.
func (i *Issuer) Parse(token string) (Claims, error) {
	var claims Claims

	payload, sigPart, ok := strings.Cut(token, ".")
	if !ok {
		return claims, ErrMalformedToken
	}
	data, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return claims, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return claims, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	if err := json.Unmarshal(data, &claims); err != nil {
		return claims, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}

	secret, ok := i.secrets[claims.KeyVersion]
	if !ok {
		return Claims{}, fmt.Errorf("%w: %q", ErrUnknownKey, claims.KeyVersion)
	}
	if subtle.ConstantTimeCompare(sig, sign(data, secret)) != 1 {
		return Claims{}, ErrSignatureInvalid
	}
	if !i.now().Before(claims.ExpiresAt) {
		return Claims{}, ErrTokenExpired
	}
	return claims, nil
}

func sign(data []byte, secret string) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return h.Sum(nil)[:16]
}
