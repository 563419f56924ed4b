package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/env"
)

const (
	// SettingsPathEnvVar overrides the default settings file location.
	SettingsPathEnvVar = "ONBOARDCTL_SETTINGS"

	defaultFileName = ".onboardctl.yaml"

	DefaultBackendURL       = "https://api.vectorplane.io/onboarding/v1/"
	DefaultEngineBinary     = "terraform"
	DefaultDirectoryBinary  = "az"
	DefaultVarFileName      = "onboarding.tfvars.json"
	DefaultPropagationDelay = 30
	DefaultVaultSecretPath  = "secret/data/vectorplane/callback"
)

// Settings holds operator-tunable defaults for the onboarding workflow.
// All fields have working defaults, so the settings file is optional.
type Settings struct {
	BackendURL              string `yaml:"backend_url"`
	EngineBinary            string `yaml:"engine_binary"`
	EngineDir               string `yaml:"engine_dir"`
	DirectoryBinary         string `yaml:"directory_binary"`
	PropagationDelaySeconds int    `yaml:"propagation_delay_seconds"`
	VaultSecretPath         string `yaml:"vault_secret_path"`
}

// Default returns settings with every field set to its built-in default.
func Default() *Settings {
	return &Settings{
		BackendURL:              DefaultBackendURL,
		EngineBinary:            DefaultEngineBinary,
		EngineDir:               ".",
		DirectoryBinary:         DefaultDirectoryBinary,
		PropagationDelaySeconds: DefaultPropagationDelay,
		VaultSecretPath:         DefaultVaultSecretPath,
	}
}

// Path returns the settings file location, honoring ONBOARDCTL_SETTINGS.
func Path() string {
	if p, ok := env.Get(SettingsPathEnvVar); ok {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultFileName
	}
	return filepath.Join(home, defaultFileName)
}

// Load reads the settings file at Path(). A missing file yields defaults;
// a present but unparseable file is an error.
func Load() (*Settings, error) {
	return LoadFrom(Path())
}

func LoadFrom(path string) (*Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}

	// Re-fill anything the file left empty.
	if s.BackendURL == "" {
		s.BackendURL = DefaultBackendURL
	}
	if s.EngineBinary == "" {
		s.EngineBinary = DefaultEngineBinary
	}
	if s.EngineDir == "" {
		s.EngineDir = "."
	}
	if s.DirectoryBinary == "" {
		s.DirectoryBinary = DefaultDirectoryBinary
	}
	if s.PropagationDelaySeconds <= 0 {
		s.PropagationDelaySeconds = DefaultPropagationDelay
	}
	if s.VaultSecretPath == "" {
		s.VaultSecretPath = DefaultVaultSecretPath
	}

	return s, nil
}

// VarFilePath returns the location of the persisted onboarding variable file
// inside the engine working directory.
func (s *Settings) VarFilePath() string {
	return filepath.Join(s.EngineDir, DefaultVarFileName)
}
