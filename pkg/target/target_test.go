package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/types"
)

func TestParse(t *testing.T) {
	parsed, err := Parse("max://~")
	require.NoError(t, err)
	assert.Equal(t, Global(), parsed)
	assert.True(t, parsed.IsGlobal())

	parsed, err = Parse("max://~/w1")
	require.NoError(t, err)
	assert.Equal(t, types.WorkspaceID("w1"), parsed.Workspace)
	assert.False(t, parsed.IsGlobal())

	parsed, err = Parse("max://remote.example/w1/i1/")
	require.NoError(t, err)
	assert.Equal(t, "remote.example", parsed.Host)
	assert.Equal(t, types.WorkspaceID("w1"), parsed.Workspace)
	assert.Equal(t, types.InstallationID("i1"), parsed.Installation)
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"~/w1",
		"http://~/w1",
		"max://",
		"max://~//i1",
		"max://~/w1/i1/extra",
	} {
		_, err := Parse(raw)
		assert.True(t, errdefs.ErrBadTarget.Is(err), "expected bad target for %q", raw)
	}
}

func TestResolveRelative(t *testing.T) {
	base, err := Parse("max://~/w1")
	require.NoError(t, err)

	resolved, err := Resolve(base, "i1")
	require.NoError(t, err)
	assert.Equal(t, "max://~/w1/i1", resolved.String())

	resolved, err = Resolve(Global(), "w2/i2")
	require.NoError(t, err)
	assert.Equal(t, types.WorkspaceID("w2"), resolved.Workspace)
	assert.Equal(t, types.InstallationID("i2"), resolved.Installation)

	// absolute urls ignore the base
	resolved, err = Resolve(base, "max://~/other")
	require.NoError(t, err)
	assert.Equal(t, types.WorkspaceID("other"), resolved.Workspace)
	assert.Empty(t, resolved.Installation)

	// empty input keeps the base
	resolved, err = Resolve(base, "")
	require.NoError(t, err)
	assert.Equal(t, base, resolved)

	_, err = Resolve(resolvedFull(t), "deeper")
	assert.True(t, errdefs.ErrBadTarget.Is(err))
}

func resolvedFull(t *testing.T) Target {
	t.Helper()
	full, err := Parse("max://~/w1/i1")
	require.NoError(t, err)
	return full
}

func TestDefaultHonoursEnv(t *testing.T) {
	t.Setenv("MAX_TARGET", "max://~/w9")
	fromEnv, err := Default()
	require.NoError(t, err)
	assert.Equal(t, types.WorkspaceID("w9"), fromEnv.Workspace)

	t.Setenv("MAX_TARGET", "")
	ambient, err := Default()
	require.NoError(t, err)
	assert.Equal(t, Global(), ambient)
}

func TestScope(t *testing.T) {
	full := resolvedFull(t)
	scope := full.Scope()
	assert.Equal(t, types.WorkspaceID("w1"), scope.WorkspaceID)
	assert.Equal(t, types.InstallationID("i1"), scope.InstallationID)
	assert.True(t, Global().Scope().Empty())
}
