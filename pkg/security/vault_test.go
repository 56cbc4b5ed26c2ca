package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundtrip(t *testing.T) {
	vault, err := NewVaultFromPassphrase("correct horse")
	require.NoError(t, err)

	sealed, err := vault.Seal([]byte(`{"apiKey":"s3cret"}`))
	require.NoError(t, err)
	assert.NotContains(t, sealed, "s3cret")

	plaintext, err := vault.Open(sealed)
	require.NoError(t, err)
	assert.JSONEq(t, `{"apiKey":"s3cret"}`, string(plaintext))
}

func TestSealIsNonDeterministic(t *testing.T) {
	vault, err := NewVaultFromPassphrase("correct horse")
	require.NoError(t, err)

	first, err := vault.Seal([]byte("same"))
	require.NoError(t, err)
	second, err := vault.Seal([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestOpenRejectsWrongKey(t *testing.T) {
	sealer, err := NewVaultFromPassphrase("one")
	require.NoError(t, err)
	opener, err := NewVaultFromPassphrase("two")
	require.NoError(t, err)

	sealed, err := sealer.Seal([]byte("secret"))
	require.NoError(t, err)
	_, err = opener.Open(sealed)
	assert.Error(t, err)

	_, err = opener.Open("not base64!!")
	assert.Error(t, err)
	_, err = opener.Open("")
	assert.Error(t, err)
}

func TestVaultRejectsBadKeys(t *testing.T) {
	_, err := NewVault([]byte("short"))
	assert.Error(t, err)
	_, err = NewVaultFromPassphrase("")
	assert.Error(t, err)

	vault, err := NewVaultFromPassphrase("x")
	require.NoError(t, err)
	_, err = vault.Seal(nil)
	assert.Error(t, err)
}

func TestOpenVaultPersistsKey(t *testing.T) {
	dir := t.TempDir()

	first, err := OpenVault(dir)
	require.NoError(t, err)
	sealed, err := first.Seal([]byte("payload"))
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, keyFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// a second open reuses the same key
	second, err := OpenVault(dir)
	require.NoError(t, err)
	plaintext, err := second.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(plaintext))
}
