package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authzkit/pkg/access"
	"github.com/dmitrymomot/authzkit/pkg/authz"
	"github.com/dmitrymomot/authzkit/pkg/engine"
	"github.com/dmitrymomot/authzkit/pkg/store"
)

func storageTenancy() authz.TrustRelation {
	return authz.TrustRelation{
		TenantDomain:  "tenantx",
		Service:       "backend",
		ResourceGroup: "rg1",
		TenantRole:    "ops",
		Actions:       []string{"read", "write"},
	}
}

// tenancyFixture builds a provider domain "storage" and a tenant domain
// "tenantx" whose ops role holds user.tina.
func tenancyFixture(t *testing.T) (*engine.Service, store.Store) {
	t.Helper()
	ctx := context.Background()

	svc, st, _ := newEngine(t)
	_, err := svc.CreateDomain(ctx, sysAdmin, "storage", authz.DomainMeta{}, []string{domainAdmin}, "")
	require.NoError(t, err)
	_, err = svc.CreateDomain(ctx, sysAdmin, "tenantx", authz.DomainMeta{}, []string{"user.tadmin"}, "")
	require.NoError(t, err)

	role := authz.Role{Name: "ops", Members: []authz.Member{{Principal: "user.tina", State: authz.MemberActive}}}
	require.NoError(t, svc.PutRole(ctx, "user.tadmin", "tenantx", role, ""))
	return svc, st
}

func TestPutTenancy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("stores relation and seeds policy", func(t *testing.T) {
		t.Parallel()
		svc, _ := tenancyFixture(t)

		require.NoError(t, svc.PutTenancy(ctx, domainAdmin, "storage", storageTenancy(), ""))

		rel, err := svc.GetTenancy(ctx, "storage", "tenantx", "backend", "rg1")
		require.NoError(t, err)
		assert.Equal(t, "ops", rel.TenantRole)

		p, err := svc.GetPolicy(ctx, "storage", "tenancy.tenantx.backend.rg1")
		require.NoError(t, err)
		require.Len(t, p.Assertions, 2)
		assert.Equal(t, "storage:service.backend.rg1.*", p.Assertions[0].Resource)
		assert.Equal(t, "storage:role.tenancy.tenantx.backend.rg1", p.Assertions[0].Role)
	})

	t.Run("tenant role members gain delegated access", func(t *testing.T) {
		t.Parallel()
		svc, st := tenancyFixture(t)
		require.NoError(t, svc.PutTenancy(ctx, domainAdmin, "storage", storageTenancy(), ""))

		eval := access.New(st)
		dec := eval.Check(ctx, access.Request{
			Principal: "user.tina",
			Action:    "read",
			Resource:  "storage:service.backend.rg1.bucket7",
		})
		assert.True(t, dec.Allowed)

		dec = eval.Check(ctx, access.Request{
			Principal: "user.tina",
			Action:    "delete",
			Resource:  "storage:service.backend.rg1.bucket7",
		})
		assert.False(t, dec.Allowed, "only the granted actions delegate")

		dec = eval.Check(ctx, access.Request{
			Principal: "user.stranger",
			Action:    "read",
			Resource:  "storage:service.backend.rg1.bucket7",
		})
		assert.False(t, dec.Allowed)
	})

	t.Run("tenant domain must exist", func(t *testing.T) {
		t.Parallel()
		svc, _ := tenancyFixture(t)

		rel := storageTenancy()
		rel.TenantDomain = "ghost"
		err := svc.PutTenancy(ctx, domainAdmin, "storage", rel, "")
		assert.ErrorIs(t, err, authz.ErrNotFound)
	})

	t.Run("self tenancy rejected", func(t *testing.T) {
		t.Parallel()
		svc, _ := tenancyFixture(t)

		rel := storageTenancy()
		rel.TenantDomain = "storage"
		err := svc.PutTenancy(ctx, domainAdmin, "storage", rel, "")
		assert.ErrorIs(t, err, authz.ErrInvalidRequest)
	})
}

func TestTenancyTenantIsolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, st := tenancyFixture(t)
	_, err := svc.CreateDomain(ctx, sysAdmin, "tenanty", authz.DomainMeta{}, []string{"user.yadmin"}, "")
	require.NoError(t, err)
	role := authz.Role{Name: "ops", Members: []authz.Member{{Principal: "user.yuri", State: authz.MemberActive}}}
	require.NoError(t, svc.PutRole(ctx, "user.yadmin", "tenanty", role, ""))

	require.NoError(t, svc.PutTenancy(ctx, domainAdmin, "storage", storageTenancy(), ""))

	// Same service and resource group, different tenant, narrower actions.
	second := storageTenancy()
	second.TenantDomain = "tenanty"
	second.Actions = []string{"read"}
	require.NoError(t, svc.PutTenancy(ctx, domainAdmin, "storage", second, ""))

	// The first tenant's policy survives the second grant untouched.
	p, err := svc.GetPolicy(ctx, "storage", "tenancy.tenantx.backend.rg1")
	require.NoError(t, err)
	assert.Len(t, p.Assertions, 2)

	eval := access.New(st)
	write := access.Request{
		Principal: "user.tina",
		Action:    "write",
		Resource:  "storage:service.backend.rg1.bucket7",
	}
	assert.True(t, eval.Check(ctx, write).Allowed, "first tenant keeps its own action set")

	write.Principal = "user.yuri"
	assert.False(t, eval.Check(ctx, write).Allowed, "second tenant gets only its granted actions")
	read := write
	read.Action = "read"
	assert.True(t, eval.Check(ctx, read).Allowed)

	// Revoking one tenant leaves the other's grant in place.
	require.NoError(t, svc.DeleteTenancy(ctx, domainAdmin, "storage", "tenanty", "backend", "rg1", ""))
	_, err = svc.GetPolicy(ctx, "storage", "tenancy.tenanty.backend.rg1")
	assert.ErrorIs(t, err, authz.ErrNotFound)
	read.Principal = "user.tina"
	assert.True(t, eval.Check(ctx, read).Allowed)
}

func TestDeleteTenancy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, st := tenancyFixture(t)
	require.NoError(t, svc.PutTenancy(ctx, domainAdmin, "storage", storageTenancy(), ""))

	require.NoError(t, svc.DeleteTenancy(ctx, domainAdmin, "storage", "tenantx", "backend", "rg1", ""))

	_, err := svc.GetTenancy(ctx, "storage", "tenantx", "backend", "rg1")
	assert.ErrorIs(t, err, authz.ErrNotFound)
	_, err = svc.GetPolicy(ctx, "storage", "tenancy.tenantx.backend.rg1")
	assert.ErrorIs(t, err, authz.ErrNotFound)

	dec := access.New(st).Check(ctx, access.Request{
		Principal: "user.tina",
		Action:    "read",
		Resource:  "storage:service.backend.rg1.bucket7",
	})
	assert.False(t, dec.Allowed, "revocation takes effect on the next decision")

	err = svc.DeleteTenancy(ctx, domainAdmin, "storage", "tenantx", "backend", "rg1", "")
	assert.ErrorIs(t, err, authz.ErrNotFound)
}

func TestTenancyListings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _ := tenancyFixture(t)
	require.NoError(t, svc.PutTenancy(ctx, domainAdmin, "storage", storageTenancy(), ""))

	second := storageTenancy()
	second.ResourceGroup = "rg2"
	require.NoError(t, svc.PutTenancy(ctx, domainAdmin, "storage", second, ""))

	provider, err := svc.ProviderTenancies(ctx, "storage")
	require.NoError(t, err)
	require.Len(t, provider, 2)
	assert.Equal(t, "rg1", provider[0].ResourceGroup)
	assert.Equal(t, "rg2", provider[1].ResourceGroup)

	tenant, err := svc.TenantTenancies(ctx, "tenantx")
	require.NoError(t, err)
	require.Contains(t, tenant, "storage")
	assert.Len(t, tenant["storage"], 2)

	_, err = svc.TenantTenancies(ctx, "ghost")
	assert.ErrorIs(t, err, authz.ErrNotFound)
}
