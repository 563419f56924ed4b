package secret

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_FromEnv(t *testing.T) {
	t.Setenv(EnvVar, "env-secret")

	got, err := Resolve("secret/data/vectorplane/callback")
	require.NoError(t, err)
	assert.Equal(t, []byte("env-secret"), got)
}

func TestResolve_EnvWinsOverVault(t *testing.T) {
	t.Setenv(EnvVar, "env-secret")
	t.Setenv("VAULT_ADDR", "http://127.0.0.1:8200")

	orig := readVaultSecret
	readVaultSecret = func(path string) ([]byte, error) {
		t.Error("vault must not be consulted when the env var is set")
		return nil, nil
	}
	t.Cleanup(func() { readVaultSecret = orig })

	got, err := Resolve("secret/data/vectorplane/callback")
	require.NoError(t, err)
	assert.Equal(t, []byte("env-secret"), got)
}

func TestResolve_FromVault(t *testing.T) {
	t.Setenv(EnvVar, "")
	t.Setenv("VAULT_ADDR", "http://127.0.0.1:8200")

	orig := readVaultSecret
	readVaultSecret = func(path string) ([]byte, error) {
		assert.Equal(t, "secret/data/vectorplane/callback", path)
		return []byte("vault-secret"), nil
	}
	t.Cleanup(func() { readVaultSecret = orig })

	got, err := Resolve("secret/data/vectorplane/callback")
	require.NoError(t, err)
	assert.Equal(t, []byte("vault-secret"), got)
}

func TestResolve_VaultFailure(t *testing.T) {
	t.Setenv(EnvVar, "")
	t.Setenv("VAULT_ADDR", "http://127.0.0.1:8200")

	orig := readVaultSecret
	readVaultSecret = func(path string) ([]byte, error) {
		return nil, fmt.Errorf("permission denied")
	}
	t.Cleanup(func() { readVaultSecret = orig })

	_, err := Resolve("secret/data/vectorplane/callback")
	assert.Error(t, err)
}

func TestResolve_NothingConfigured(t *testing.T) {
	t.Setenv(EnvVar, "")
	t.Setenv("VAULT_ADDR", "")

	_, err := Resolve("secret/data/vectorplane/callback")
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvVar)
}
