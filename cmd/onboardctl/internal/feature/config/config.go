package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Scope is the granularity at which the onboarding grants permissions.
type Scope string

const (
	ScopeSubscription    Scope = "SUBSCRIPTION"
	ScopeManagementGroup Scope = "MANAGEMENT_GROUP"
)

// ErrMalformed marks an exchange response that parsed into an unusable
// configuration. It is fatal: a successful exchange should never be
// malformed, so retrying cannot help.
var ErrMalformed = errors.New("malformed onboarding configuration")

// OnboardingConfig is the single source of truth for a workflow run. It is
// created once from the pairing exchange response and persisted as the
// declarative engine's variable file. Only SubscriptionID (when the
// management-group scope omitted it) and AppDisplayName are bound late.
type OnboardingConfig struct {
	ExternalID        string `json:"external_id"`
	TenantID          string `json:"tenant_id,omitempty"`
	SubscriptionID    string `json:"subscription_id"`
	OnboardingScope   Scope  `json:"onboarding_scope"`
	ManagementGroupID string `json:"management_group_id,omitempty"`
	AppDisplayName    string `json:"app_display_name,omitempty"`
}

// Parse validates the raw exchange response body into a configuration.
func Parse(body []byte) (*OnboardingConfig, error) {
	var cfg OnboardingConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if cfg.ExternalID == "" {
		return nil, fmt.Errorf("%w: missing external_id", ErrMalformed)
	}
	switch cfg.OnboardingScope {
	case ScopeSubscription:
	case ScopeManagementGroup:
		if cfg.ManagementGroupID == "" {
			return nil, fmt.Errorf("%w: management group scope without management_group_id", ErrMalformed)
		}
	default:
		return nil, fmt.Errorf("%w: unknown onboarding_scope %q", ErrMalformed, cfg.OnboardingScope)
	}
	return &cfg, nil
}

// DeriveDisplayName computes the scope-qualified application display name.
// The qualifier is rendered at a fixed width of eight characters so that two
// onboardings in the same directory never collide on name.
func (c *OnboardingConfig) DeriveDisplayName() {
	qualifier := c.SubscriptionID
	if c.OnboardingScope == ScopeManagementGroup {
		qualifier = c.ManagementGroupID
	}
	c.AppDisplayName = fmt.Sprintf("VectorPlane Security (%-8.8s)", qualifier)
}

// Save persists the configuration to path as the engine's variable file.
func (c *OnboardingConfig) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal onboarding config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write onboarding config: %w", err)
	}
	return nil
}

// Load reads a previously persisted configuration from the engine directory.
func Load(path string) (*OnboardingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read onboarding config: %w", err)
	}
	return Parse(data)
}
