package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authzkit/pkg/authz"
	"github.com/dmitrymomot/authzkit/pkg/store"
)

func commit(t *testing.T, s store.Store, d *authz.Domain, expected uint64) {
	t.Helper()
	d.Tag = expected + 1
	require.NoError(t, s.CommitDomain(context.Background(), d, expected))
}

func TestMemoryCommitAndLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemory()

	_, err := s.LoadDomain(ctx, "media")
	require.ErrorIs(t, err, authz.ErrNotFound)

	commit(t, s, authz.NewDomain("media", authz.DomainMeta{Account: "acct-1"}), 0)

	d, err := s.LoadDomain(ctx, "media")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), d.Tag)
	assert.Equal(t, "acct-1", d.Meta.Account)

	// Creating again must conflict.
	err = s.CommitDomain(ctx, authz.NewDomain("media", authz.DomainMeta{}), 0)
	assert.ErrorIs(t, err, authz.ErrConflict)
}

func TestMemoryCompareAndSwap(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemory()
	commit(t, s, authz.NewDomain("media", authz.DomainMeta{}), 0)

	loaded, err := s.LoadDomain(ctx, "media")
	require.NoError(t, err)

	// First writer wins.
	first := loaded.Clone()
	commit(t, s, first, loaded.Tag)

	// Second writer based on the stale snapshot loses.
	stale := loaded.Clone()
	stale.Tag = loaded.Tag + 1
	err = s.CommitDomain(ctx, stale, loaded.Tag)
	assert.ErrorIs(t, err, authz.ErrConflict)
}

func TestMemoryConcurrentWriters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemory()
	commit(t, s, authz.NewDomain("media", authz.DomainMeta{}), 0)

	const writers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, writers)

	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := s.LoadDomain(ctx, "media")
			if err != nil {
				return
			}
			c := d.Clone()
			c.Tag = d.Tag + 1
			if s.CommitDomain(ctx, c, d.Tag) == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	// All goroutines loaded tag 1, so exactly one CAS can succeed.
	assert.Len(t, wins, 1)
}

func TestMemoryDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemory()
	commit(t, s, authz.NewDomain("media", authz.DomainMeta{}), 0)

	err := s.DeleteDomain(ctx, "media", 42)
	assert.ErrorIs(t, err, authz.ErrConflict)

	require.NoError(t, s.DeleteDomain(ctx, "media", 1))

	_, err = s.LoadDomain(ctx, "media")
	assert.ErrorIs(t, err, authz.ErrNotFound)

	err = s.DeleteDomain(ctx, "media", 1)
	assert.ErrorIs(t, err, authz.ErrNotFound)
}

func TestMemoryListFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemory()

	media := authz.NewDomain("media", authz.DomainMeta{Account: "acct-1"})
	commit(t, s, media, 0)

	storage := authz.NewDomain("media.storage", authz.DomainMeta{
		ProductID: 42,
		Tags:      map[string][]string{"team": {"infra", "media"}},
	})
	storage.Modified = time.Now()
	storage.Roles["readers"] = &authz.Role{
		Name:    "readers",
		Members: []authz.Member{{Principal: "user.alice", State: authz.MemberActive}},
	}
	commit(t, s, storage, 0)

	sports := authz.NewDomain("sports", authz.DomainMeta{Account: "acct-2"})
	commit(t, s, sports, 0)

	tests := []struct {
		name   string
		filter store.Filter
		want   []string
	}{
		{"all", store.Filter{}, []string{"media", "media.storage", "sports"}},
		{"prefix", store.Filter{Prefix: "media"}, []string{"media", "media.storage"}},
		{"depth", store.Filter{Depth: 1}, []string{"media", "sports"}},
		{"account", store.Filter{Account: "acct-2"}, []string{"sports"}},
		{"product id", store.Filter{ProductID: 42}, []string{"media.storage"}},
		{"tag key", store.Filter{TagKey: "team"}, []string{"media.storage"}},
		{"tag key and value", store.Filter{TagKey: "team", TagValue: "infra"}, []string{"media.storage"}},
		{"tag value absent", store.Filter{TagKey: "team", TagValue: "sports"}, nil},
		{"role member", store.Filter{RoleMember: "user.alice"}, []string{"media.storage"}},
		{"role member scoped to missing role", store.Filter{RoleMember: "user.alice", RoleName: "writers"}, nil},
		{"modified since", store.Filter{ModifiedSince: time.Now().Add(-time.Hour)}, []string{"media.storage"}},
		{"paging skip", store.Filter{Skip: "media"}, []string{"media.storage", "sports"}},
		{"paging limit", store.Filter{Limit: 2}, []string{"media", "media.storage"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListDomains(ctx, tt.filter)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
