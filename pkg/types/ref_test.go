package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxsync/max/pkg/errdefs"
)

func TestRefKeyRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		ref  Ref
		key  string
	}{
		{
			name: "installation scope",
			ref:  NewRef("user", "u1"),
			key:  "installation:user:u1",
		},
		{
			name: "workspace scope",
			ref:  Ref{Type: "user", ID: "u1", Scope: WorkspaceScope("i1")},
			key:  "workspace:i1:user:u1",
		},
		{
			name: "global scope",
			ref:  Ref{Type: "user", ID: "u1", Scope: GlobalScope("w1", "i1")},
			key:  "global:w1:i1:user:u1",
		},
		{
			name: "id containing colons",
			ref:  NewRef("page", "notion:abc:def"),
			key:  "installation:page:notion:abc:def",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := tt.ref.Key()
			assert.Equal(t, RefKey(tt.key), key)

			parsed, err := ParseRefKey(key)
			require.NoError(t, err)
			assert.Equal(t, tt.ref, parsed)

			// parse then re-serialize yields the original bytes
			assert.Equal(t, key, parsed.Key())
		})
	}
}

func TestParseRefKeyRejectsInvalid(t *testing.T) {
	tests := []string{
		"",
		"user",
		"user:u1",
		"installation:user",
		"installation::u1",
		"workspace:user:u1",
		"global:w1:user:u1",
		"cluster:user:u1",
	}

	for _, key := range tests {
		t.Run(key, func(t *testing.T) {
			_, err := ParseRefKey(RefKey(key))
			require.Error(t, err)
			assert.True(t, errdefs.Has(err, errdefs.BadInput))
		})
	}
}

func TestScopeUpgradeMonotonic(t *testing.T) {
	ref := NewRef("user", "u1")

	wsRef, err := ref.Upgrade(WorkspaceScope("i1"))
	require.NoError(t, err)
	assert.Equal(t, ScopeWorkspace, wsRef.Scope.Level)
	assert.Equal(t, InstallationID("i1"), wsRef.Scope.InstallationID)

	globalRef, err := wsRef.Upgrade(GlobalScope("w1", "i1"))
	require.NoError(t, err)
	assert.Equal(t, ScopeGlobal, globalRef.Scope.Level)

	// same level is allowed
	_, err = wsRef.Upgrade(WorkspaceScope("i2"))
	assert.NoError(t, err)

	// narrowing is rejected
	_, err = globalRef.Upgrade(WorkspaceScope("i1"))
	require.Error(t, err)
	assert.True(t, errdefs.Has(err, errdefs.InvariantViolated))

	_, err = wsRef.Upgrade(InstallationScope())
	assert.Error(t, err)
}
