package secret

import (
	"fmt"

	"github.com/hashicorp/vault/api"

	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/env"
)

const (
	// EnvVar holds the callback signing secret directly.
	EnvVar = "VP_CALLBACK_SECRET"

	// vaultAddrEnvVar enables the Vault fallback when set.
	vaultAddrEnvVar = "VAULT_ADDR"

	// vaultField is the key inside the Vault KV entry.
	vaultField = "secret"
)

// Variable for mocking in tests
var readVaultSecret = func(path string) ([]byte, error) {
	cfg := api.DefaultConfig()
	vc, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	s, err := vc.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from vault: %w", path, err)
	}
	if s == nil {
		return nil, fmt.Errorf("no secret at vault path %s", path)
	}

	data := s.Data
	// KV v2 nests the entry under "data".
	if nested, ok := data["data"].(map[string]interface{}); ok {
		data = nested
	}

	value, ok := data[vaultField].(string)
	if !ok || value == "" {
		return nil, fmt.Errorf("vault path %s has no %q field", path, vaultField)
	}
	return []byte(value), nil
}

// Resolve returns the callback signing secret: the environment variable
// when set, otherwise a Vault KV read when a Vault address is configured.
func Resolve(vaultPath string) ([]byte, error) {
	if v, ok := env.Get(EnvVar); ok {
		return []byte(v), nil
	}

	if _, ok := env.Get(vaultAddrEnvVar); ok {
		return readVaultSecret(vaultPath)
	}

	return nil, fmt.Errorf("no callback signing secret: set %s or configure %s", EnvVar, vaultAddrEnvVar)
}
