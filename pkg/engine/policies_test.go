package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authzkit/pkg/authz"
	"github.com/dmitrymomot/authzkit/pkg/engine"
)

func readPolicy() authz.Policy {
	return authz.Policy{
		Name: "read-files",
		Assertions: []authz.Assertion{{
			Effect:   authz.EffectAllow,
			Action:   "read",
			Resource: "media:file.*",
			Role:     "media:role.readers",
		}},
	}
}

// mediaReaders defines the role readPolicy assertions reference.
func mediaReaders(t *testing.T, svc *engine.Service) {
	t.Helper()
	role := authz.Role{Name: "readers"}
	require.NoError(t, svc.PutRole(context.Background(), domainAdmin, "media", role, ""))
}

func TestPutPolicy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("allocates assertion ids", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newEngine(t)
		mediaDomain(t, svc)
		mediaReaders(t, svc)

		require.NoError(t, svc.PutPolicy(ctx, domainAdmin, "media", readPolicy(), ""))

		p, err := svc.GetPolicy(ctx, "media", "read-files")
		require.NoError(t, err)
		require.Len(t, p.Assertions, 1)
		assert.NotZero(t, p.Assertions[0].ID)

		// Ids keep growing across policies within the domain.
		second := readPolicy()
		second.Name = "read-more"
		require.NoError(t, svc.PutPolicy(ctx, domainAdmin, "media", second, ""))
		p2, err := svc.GetPolicy(ctx, "media", "read-more")
		require.NoError(t, err)
		assert.Greater(t, p2.Assertions[0].ID, p.Assertions[0].ID)
	})

	t.Run("rejects unresolved role references", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newEngine(t)
		mediaDomain(t, svc)

		p := readPolicy()
		p.Assertions[0].Role = "media:role.ghost"
		err := svc.PutPolicy(ctx, domainAdmin, "media", p, "")
		assert.ErrorIs(t, err, authz.ErrInvalidRequest)

		_, err = svc.GetPolicy(ctx, "media", "read-files")
		assert.ErrorIs(t, err, authz.ErrNotFound, "no partial policy commits")
	})

	t.Run("rejects foreign role references", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newEngine(t)
		mediaDomain(t, svc)

		p := readPolicy()
		p.Assertions[0].Role = "other:role.readers"
		err := svc.PutPolicy(ctx, domainAdmin, "media", p, "")
		assert.ErrorIs(t, err, authz.ErrInvalidRequest)
	})

	t.Run("rejects unqualified resources", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newEngine(t)
		mediaDomain(t, svc)

		p := readPolicy()
		p.Assertions[0].Resource = "file.readme"
		err := svc.PutPolicy(ctx, domainAdmin, "media", p, "")
		assert.ErrorIs(t, err, authz.ErrInvalidRequest)
	})

	t.Run("rejects unknown effects", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newEngine(t)
		mediaDomain(t, svc)

		p := readPolicy()
		p.Assertions[0].Effect = "MAYBE"
		err := svc.PutPolicy(ctx, domainAdmin, "media", p, "")
		assert.ErrorIs(t, err, authz.ErrInvalidRequest)
	})
}

func TestAssertionOps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	newPolicy := func(t *testing.T) *engine.Service {
		t.Helper()
		svc, _, _ := newEngine(t)
		mediaDomain(t, svc)
		mediaReaders(t, svc)
		require.NoError(t, svc.PutPolicy(ctx, domainAdmin, "media", readPolicy(), ""))
		return svc
	}

	t.Run("append and fetch", func(t *testing.T) {
		t.Parallel()
		svc := newPolicy(t)

		added, err := svc.PutAssertion(ctx, domainAdmin, "media", "read-files", authz.Assertion{
			Effect:   authz.EffectDeny,
			Action:   "read",
			Resource: "media:file.secret",
			Role:     "media:role.readers",
		}, "")
		require.NoError(t, err)
		require.NotZero(t, added.ID)

		got, err := svc.GetAssertion(ctx, "media", "read-files", added.ID)
		require.NoError(t, err)
		assert.Equal(t, added, got)
	})

	t.Run("rejects unresolved role references", func(t *testing.T) {
		t.Parallel()
		svc := newPolicy(t)

		_, err := svc.PutAssertion(ctx, domainAdmin, "media", "read-files", authz.Assertion{
			Effect:   authz.EffectAllow,
			Action:   "read",
			Resource: "media:file.*",
			Role:     "media:role.ghost",
		}, "")
		assert.ErrorIs(t, err, authz.ErrInvalidRequest)

		p, err := svc.GetPolicy(ctx, "media", "read-files")
		require.NoError(t, err)
		assert.Len(t, p.Assertions, 1, "rejected assertion never lands")
	})

	t.Run("delete by id", func(t *testing.T) {
		t.Parallel()
		svc := newPolicy(t)

		p, err := svc.GetPolicy(ctx, "media", "read-files")
		require.NoError(t, err)
		id := p.Assertions[0].ID

		require.NoError(t, svc.DeleteAssertion(ctx, domainAdmin, "media", "read-files", id, ""))
		_, err = svc.GetAssertion(ctx, "media", "read-files", id)
		assert.ErrorIs(t, err, authz.ErrNotFound)

		err = svc.DeleteAssertion(ctx, domainAdmin, "media", "read-files", id, "")
		assert.ErrorIs(t, err, authz.ErrNotFound)
	})

	t.Run("conditions set and clear", func(t *testing.T) {
		t.Parallel()
		svc := newPolicy(t)

		p, err := svc.GetPolicy(ctx, "media", "read-files")
		require.NoError(t, err)
		id := p.Assertions[0].ID

		conds := []authz.Condition{{Key: "env", Value: "prod"}}
		require.NoError(t, svc.SetAssertionConditions(ctx, domainAdmin, "media", "read-files", id, conds, ""))
		got, err := svc.GetAssertion(ctx, "media", "read-files", id)
		require.NoError(t, err)
		assert.Equal(t, conds, got.Conditions)

		require.NoError(t, svc.SetAssertionConditions(ctx, domainAdmin, "media", "read-files", id, nil, ""))
		got, err = svc.GetAssertion(ctx, "media", "read-files", id)
		require.NoError(t, err)
		assert.Empty(t, got.Conditions)
	})
}

func TestDeletePolicy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _, _ := newEngine(t)
	mediaDomain(t, svc)
	mediaReaders(t, svc)
	require.NoError(t, svc.PutPolicy(ctx, domainAdmin, "media", readPolicy(), ""))

	assert.ErrorIs(t, svc.DeletePolicy(ctx, domainAdmin, "media", "admin", ""), authz.ErrInvalidRequest)
	assert.ErrorIs(t, svc.DeleteRole(ctx, domainAdmin, "media", "admin", ""), authz.ErrInvalidRequest)

	require.NoError(t, svc.DeletePolicy(ctx, domainAdmin, "media", "read-files", ""))
	_, err := svc.GetPolicy(ctx, "media", "read-files")
	assert.ErrorIs(t, err, authz.ErrNotFound)

	names, err := svc.ListPolicies(ctx, "media", 0, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, names)
}
