package engine_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authzkit/pkg/authz"
)

func TestServiceIdentityOps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _, _ := newEngine(t)
	mediaDomain(t, svc)

	identity := authz.ServiceIdentity{
		Name:       "transcoder",
		PublicKeys: []authz.PublicKeyEntry{{ID: "v1", Key: "base64key"}},
	}
	require.NoError(t, svc.PutServiceIdentity(ctx, domainAdmin, "media", identity, ""))

	t.Run("get and list", func(t *testing.T) {
		got, err := svc.GetServiceIdentity(ctx, "media", "transcoder")
		require.NoError(t, err)
		assert.Equal(t, "transcoder", got.Name)

		names, err := svc.ListServiceIdentities(ctx, "media", 0, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"transcoder"}, names)
	})

	t.Run("key rotation", func(t *testing.T) {
		require.NoError(t, svc.PutPublicKeyEntry(ctx, domainAdmin, "media", "transcoder", authz.PublicKeyEntry{ID: "v2", Key: "newkey"}, ""))

		key, err := svc.GetPublicKeyEntry(ctx, "media", "transcoder", "v2")
		require.NoError(t, err)
		assert.Equal(t, "newkey", key.Key)

		// Replacing an existing id does not grow the key set.
		require.NoError(t, svc.PutPublicKeyEntry(ctx, domainAdmin, "media", "transcoder", authz.PublicKeyEntry{ID: "v2", Key: "rotated"}, ""))
		got, err := svc.GetServiceIdentity(ctx, "media", "transcoder")
		require.NoError(t, err)
		assert.Len(t, got.PublicKeys, 2)

		require.NoError(t, svc.DeletePublicKeyEntry(ctx, domainAdmin, "media", "transcoder", "v1", ""))
		_, err = svc.GetPublicKeyEntry(ctx, "media", "transcoder", "v1")
		assert.ErrorIs(t, err, authz.ErrNotFound)
	})

	t.Run("malformed names and keys", func(t *testing.T) {
		err := svc.PutServiceIdentity(ctx, domainAdmin, "media", authz.ServiceIdentity{Name: "not.simple"}, "")
		assert.ErrorIs(t, err, authz.ErrInvalidRequest)

		err = svc.PutPublicKeyEntry(ctx, domainAdmin, "media", "transcoder", authz.PublicKeyEntry{ID: "v3"}, "")
		assert.ErrorIs(t, err, authz.ErrInvalidRequest)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, svc.DeleteServiceIdentity(ctx, domainAdmin, "media", "transcoder", ""))
		_, err := svc.GetServiceIdentity(ctx, "media", "transcoder")
		assert.ErrorIs(t, err, authz.ErrNotFound)
	})
}

func TestEntityOps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _, _ := newEngine(t)
	mediaDomain(t, svc)

	entity := authz.Entity{Name: "settings", Value: json.RawMessage(`{"retention":30}`)}
	require.NoError(t, svc.PutEntity(ctx, domainAdmin, "media", entity, ""))

	got, err := svc.GetEntity(ctx, "media", "settings")
	require.NoError(t, err)
	assert.JSONEq(t, `{"retention":30}`, string(got.Value))

	err = svc.PutEntity(ctx, domainAdmin, "media", authz.Entity{Name: "broken", Value: json.RawMessage(`{oops`)}, "")
	assert.ErrorIs(t, err, authz.ErrInvalidRequest)

	names, err := svc.ListEntities(ctx, "media", 0, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"settings"}, names)

	require.NoError(t, svc.DeleteEntity(ctx, domainAdmin, "media", "settings", ""))
	_, err = svc.GetEntity(ctx, "media", "settings")
	assert.ErrorIs(t, err, authz.ErrNotFound)
}
