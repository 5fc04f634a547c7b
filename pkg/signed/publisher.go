package signed

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/authzkit/pkg/authz"
	"github.com/dmitrymomot/authzkit/pkg/store"
)

// encMode is the deterministic CBOR encoder: map keys sorted, shortest
// integer forms, no floating point surprises. Two equal snapshots always
// produce identical bytes, which is what makes the digest meaningful.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("signed: cbor mode: %v", err))
	}
}

// SignedDomain is one published snapshot with its detached signature.
type SignedDomain struct {
	Domain    *authz.Domain `json:"domain"`
	Tag       uint64        `json:"tag"`
	Digest    string        `json:"digest"` // hex BLAKE3 of the canonical encoding
	KeyID     string        `json:"key_id"`
	Signature string        `json:"signature"` // base64url, encoding per the signer
	Generated time.Time     `json:"generated"`
}

// Publisher builds, caches and serves signed snapshots.
type Publisher struct {
	store  store.Store
	signer Signer
	now    func() time.Time

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]*SignedDomain
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithPublisherClock overrides the generation timestamp source.
func WithPublisherClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) { p.now = now }
}

// NewPublisher creates a publisher over the committed store.
func NewPublisher(st store.Store, signer Signer, opts ...PublisherOption) *Publisher {
	if st == nil {
		panic("signed: store cannot be nil")
	}
	if signer == nil {
		panic("signed: signer cannot be nil")
	}
	p := &Publisher{
		store:  st,
		signer: signer,
		now:    time.Now,
		cache:  make(map[string]*SignedDomain),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetSignedDomain returns the signed snapshot of a domain. When matchTag
// equals the committed modification tag the snapshot is unchanged and the
// call returns (nil, false, nil): the caller's copy is still current.
func (p *Publisher) GetSignedDomain(ctx context.Context, name string, matchTag uint64) (*SignedDomain, bool, error) {
	d, err := p.store.LoadDomain(ctx, name)
	if err != nil {
		return nil, false, err
	}
	if matchTag != 0 && matchTag == d.Tag {
		return nil, false, nil
	}
	sd, err := p.signedFor(d)
	if err != nil {
		return nil, false, err
	}
	return sd, true, nil
}

// SignedDomains returns snapshots of every domain modified at or after
// since. A zero since returns everything.
func (p *Publisher) SignedDomains(ctx context.Context, since time.Time) ([]*SignedDomain, error) {
	names, err := p.store.ListDomains(ctx, store.Filter{ModifiedSince: since})
	if err != nil {
		return nil, err
	}
	out := make([]*SignedDomain, 0, len(names))
	for _, name := range names {
		d, err := p.store.LoadDomain(ctx, name)
		if err != nil {
			continue
		}
		sd, err := p.signedFor(d)
		if err != nil {
			return nil, err
		}
		out = append(out, sd)
	}
	return out, nil
}

// DomainTags reports the committed modification tag per domain, the cheap
// meta-only poll consumers use to decide what to re-fetch.
func (p *Publisher) DomainTags(ctx context.Context, since time.Time) (map[string]uint64, error) {
	names, err := p.store.ListDomains(ctx, store.Filter{ModifiedSince: since})
	if err != nil {
		return nil, err
	}
	tags := make(map[string]uint64, len(names))
	for _, name := range names {
		d, err := p.store.LoadDomain(ctx, name)
		if err != nil {
			continue
		}
		tags[name] = d.Tag
	}
	return tags, nil
}

// Refresh rebuilds and caches the snapshot of one domain. The Refresher
// calls this after its debounce window; a deleted domain just drops out of
// the cache.
func (p *Publisher) Refresh(ctx context.Context, name string) error {
	d, err := p.store.LoadDomain(ctx, name)
	if err != nil {
		p.mu.Lock()
		delete(p.cache, name)
		p.mu.Unlock()
		return err
	}
	_, err = p.signedFor(d)
	return err
}

// signedFor returns the cached snapshot when its tag still matches, and
// otherwise builds one. Concurrent builds of the same domain+tag collapse
// into a single signing pass.
func (p *Publisher) signedFor(d *authz.Domain) (*SignedDomain, error) {
	p.mu.RLock()
	sd, ok := p.cache[d.Name]
	p.mu.RUnlock()
	if ok && sd.Tag == d.Tag {
		return sd, nil
	}

	key := fmt.Sprintf("%s@%d", d.Name, d.Tag)
	v, err, _ := p.group.Do(key, func() (any, error) {
		built, err := p.build(d)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.cache[d.Name] = built
		p.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SignedDomain), nil
}

func (p *Publisher) build(d *authz.Domain) (*SignedDomain, error) {
	data, err := Canonical(d)
	if err != nil {
		return nil, err
	}
	digest := blake3.Sum256(data)
	sig, err := p.signer.Sign(data)
	if err != nil {
		return nil, err
	}
	return &SignedDomain{
		Domain:    d,
		Tag:       d.Tag,
		Digest:    hex.EncodeToString(digest[:]),
		KeyID:     p.signer.KeyID(),
		Signature: base64.RawURLEncoding.EncodeToString(sig),
		Generated: p.now().UTC(),
	}, nil
}

// Canonical returns the deterministic CBOR encoding of a domain snapshot,
// the exact bytes the digest and signature cover.
func Canonical(d *authz.Domain) ([]byte, error) {
	return encMode.Marshal(d)
}

// Verify checks a received snapshot against the signer's key: the digest
// must match the canonical re-encoding and the signature must verify over
// those bytes.
func Verify(sd *SignedDomain, signer Signer) error {
	data, err := Canonical(sd.Domain)
	if err != nil {
		return err
	}
	digest := blake3.Sum256(data)
	if hex.EncodeToString(digest[:]) != sd.Digest {
		return ErrDigestMismatch
	}
	sig, err := base64.RawURLEncoding.DecodeString(sd.Signature)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedSig, err)
	}
	return signer.Verify(data, sig)
}
