package scope

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"

	log "github.com/sirupsen/logrus"

	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/feature/config"
)

var (
	// ErrNotAuthenticated means no cloud session exists to verify against.
	ErrNotAuthenticated = errors.New("no authenticated session")

	// ErrInsufficientPermissions means the session cannot reach the target
	// scope. Permission fixes happen out of band, so this is never retried.
	ErrInsufficientPermissions = errors.New("insufficient permissions for target scope")
)

// Variable for mocking in tests
var execCommand = exec.Command

// Session is the ambient authenticated identity's current account.
type Session struct {
	SubscriptionID string `json:"id"`
	TenantID       string `json:"tenantId"`
	Name           string `json:"name"`
}

// EffectiveScope is what verification hands to reconciliation and apply:
// the tenant and the resource path the three role assignments attach to.
type EffectiveScope struct {
	TenantID  string
	RoleScope string
}

// Verifier wraps the cloud CLI's account surface.
type Verifier struct {
	Binary string
}

func NewVerifier(binary string) *Verifier {
	if binary == "" {
		binary = "az"
	}
	return &Verifier{Binary: binary}
}

// CurrentSession reads the ambient account, if any.
func (v *Verifier) CurrentSession() (*Session, error) {
	out, err := execCommand(v.Binary, "account", "show", "--output", "json").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to read current account: %w", err)
	}
	var s Session
	if err := json.Unmarshal(out, &s); err != nil {
		return nil, fmt.Errorf("failed to parse current account: %w", err)
	}
	if s.SubscriptionID == "" {
		return nil, fmt.Errorf("current account has no subscription")
	}
	return &s, nil
}

// SetSubscription switches the session to the given subscription.
func (v *Verifier) SetSubscription(id string) error {
	if err := execCommand(v.Binary, "account", "set", "--subscription", id).Run(); err != nil {
		return fmt.Errorf("failed to switch to subscription %s: %w", id, err)
	}
	return nil
}

// CanReadManagementGroup checks read access to the named management group.
func (v *Verifier) CanReadManagementGroup(id string) error {
	if err := execCommand(v.Binary, "account", "management-group", "show",
		"--name", id, "--output", "json").Run(); err != nil {
		return fmt.Errorf("cannot read management group %s: %w", id, err)
	}
	return nil
}

// Verify confirms the session can operate at the configured scope, switching
// subscription context when needed. persist is called after the late-bound
// subscription id is filled in so the variable file stays authoritative.
func Verify(v *Verifier, cfg *config.OnboardingConfig, persist func() error) (*EffectiveScope, error) {
	session, err := v.CurrentSession()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}

	switch cfg.OnboardingScope {
	case config.ScopeManagementGroup:
		if cfg.SubscriptionID == "" {
			cfg.SubscriptionID = session.SubscriptionID
			log.Infof("ℹ️  Using current subscription %s for the engine provider", cfg.SubscriptionID)
			if persist != nil {
				if err := persist(); err != nil {
					return nil, err
				}
			}
		}
		if err := v.CanReadManagementGroup(cfg.ManagementGroupID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientPermissions, err)
		}
		return &EffectiveScope{
			TenantID:  session.TenantID,
			RoleScope: "/providers/Microsoft.Management/managementGroups/" + cfg.ManagementGroupID,
		}, nil

	case config.ScopeSubscription:
		if session.SubscriptionID != cfg.SubscriptionID {
			log.Infof("🔁 Switching to subscription %s", cfg.SubscriptionID)
			if err := v.SetSubscription(cfg.SubscriptionID); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInsufficientPermissions, err)
			}
		}
		return &EffectiveScope{
			TenantID:  session.TenantID,
			RoleScope: "/subscriptions/" + cfg.SubscriptionID,
		}, nil

	default:
		return nil, fmt.Errorf("unknown onboarding scope %q", cfg.OnboardingScope)
	}
}
