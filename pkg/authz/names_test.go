package authz_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authzkit/pkg/authz"
)

func TestValidCompoundName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"single segment", "media", true},
		{"dotted segments", "media.storage", true},
		{"underscore and hyphen", "media_ops.read-only", true},
		{"empty", "", false},
		{"leading dot", ".media", false},
		{"trailing dot", "media.", false},
		{"double dot", "media..storage", false},
		{"leading hyphen segment", "media.-storage", false},
		{"illegal character", "media storage", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, authz.ValidCompoundName(tt.input))
		})
	}
}

func TestParentDomain(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", authz.ParentDomain("media"))
	assert.Equal(t, "media", authz.ParentDomain("media.storage"))
	assert.Equal(t, "media.storage", authz.ParentDomain("media.storage.archive"))

	assert.Equal(t, 1, authz.DomainDepth("media"))
	assert.Equal(t, 3, authz.DomainDepth("media.storage.archive"))
	assert.Equal(t, 0, authz.DomainDepth(""))
}

func TestRoleRefRoundTrip(t *testing.T) {
	t.Parallel()

	ref := authz.RoleRef("media.storage", "readers")
	require.Equal(t, "media.storage:role.readers", ref)

	domain, role, ok := authz.SplitRoleRef(ref)
	require.True(t, ok)
	assert.Equal(t, "media.storage", domain)
	assert.Equal(t, "readers", role)

	_, _, ok = authz.SplitRoleRef("media.storage:group.readers")
	assert.False(t, ok)
	_, _, ok = authz.SplitRoleRef("readers")
	assert.False(t, ok)
	_, _, ok = authz.SplitRoleRef(":role.readers")
	assert.False(t, ok)
}

func TestSplitGroupRef(t *testing.T) {
	t.Parallel()

	domain, group, ok := authz.SplitGroupRef(authz.GroupRef("media", "editors"))
	require.True(t, ok)
	assert.Equal(t, "media", domain)
	assert.Equal(t, "editors", group)

	_, _, ok = authz.SplitGroupRef("user.alice")
	assert.False(t, ok)
}

func TestSplitResource(t *testing.T) {
	t.Parallel()

	domain, rest, ok := authz.SplitResource("media.storage:file.2024")
	require.True(t, ok)
	assert.Equal(t, "media.storage", domain)
	assert.Equal(t, "file.2024", rest)

	_, _, ok = authz.SplitResource("file.2024")
	assert.False(t, ok)
	_, _, ok = authz.SplitResource("media.storage:")
	assert.False(t, ok)
	_, _, ok = authz.SplitResource(":file")
	assert.False(t, ok)
}
