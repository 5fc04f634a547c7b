package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authzkit/pkg/authz"
)

func TestDeleteDomainRoleMember(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _, _ := newEngine(t)
	mediaDomain(t, svc)
	require.NoError(t, svc.PutRole(ctx, domainAdmin, "media", authz.Role{Name: "readers"}, ""))
	require.NoError(t, svc.PutRole(ctx, domainAdmin, "media", authz.Role{Name: "writers"}, ""))
	require.NoError(t, svc.AddRoleMember(ctx, domainAdmin, "media", "readers", authz.Member{Principal: "user.bob"}, ""))
	require.NoError(t, svc.AddRoleMember(ctx, domainAdmin, "media", "writers", authz.Member{Principal: "user.bob"}, ""))

	require.NoError(t, svc.DeleteDomainRoleMember(ctx, domainAdmin, "media", "user.bob", ""))

	for _, role := range []string{"readers", "writers"} {
		_, err := svc.GetRoleMembership(ctx, "media", role, "user.bob")
		assert.ErrorIs(t, err, authz.ErrNotFound)
	}

	err := svc.DeleteDomainRoleMember(ctx, domainAdmin, "media", "user.bob", "")
	assert.ErrorIs(t, err, authz.ErrNotFound)
}

func TestPurgePrincipal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _, _ := newEngine(t)
	mediaDomain(t, svc)
	_, err := svc.CreateDomain(ctx, sysAdmin, "books", authz.DomainMeta{}, []string{domainAdmin}, "")
	require.NoError(t, err)

	require.NoError(t, svc.PutRole(ctx, domainAdmin, "media", authz.Role{Name: "readers"}, ""))
	require.NoError(t, svc.PutGroup(ctx, domainAdmin, "books", authz.Group{Name: "staff"}, ""))
	require.NoError(t, svc.AddRoleMember(ctx, domainAdmin, "media", "readers", authz.Member{Principal: "user.leaver"}, ""))
	require.NoError(t, svc.AddGroupMember(ctx, domainAdmin, "books", "staff", authz.Member{Principal: "user.leaver"}, ""))

	t.Run("requires system rights", func(t *testing.T) {
		err := svc.PurgePrincipal(ctx, domainAdmin, "user.leaver", "")
		assert.ErrorIs(t, err, authz.ErrForbidden)
	})

	t.Run("removes role and group memberships everywhere", func(t *testing.T) {
		require.NoError(t, svc.PurgePrincipal(ctx, sysAdmin, "user.leaver", ""))

		_, err := svc.GetRoleMembership(ctx, "media", "readers", "user.leaver")
		assert.ErrorIs(t, err, authz.ErrNotFound)
		_, err = svc.GetGroupMembership(ctx, "books", "staff", "user.leaver")
		assert.ErrorIs(t, err, authz.ErrNotFound)

		// Untouched principals survive.
		_, err = svc.GetRoleMembership(ctx, "media", "admin", domainAdmin)
		assert.NoError(t, err)
	})

	t.Run("replay is a no-op", func(t *testing.T) {
		assert.NoError(t, svc.PurgePrincipal(ctx, sysAdmin, "user.leaver", ""))
	})
}
