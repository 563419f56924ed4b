package notify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/client"
	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/feature/config"
)

// ErrCallbackFailed means the backend never acknowledged completion. The
// cloud resources are already provisioned, so this is non-fatal; the manual
// recovery block carries everything the backend would have received.
var ErrCallbackFailed = errors.New("completion callback failed")

// Variable for mocking in tests
var now = time.Now

// Facts is the completion callback payload: the identity and scope facts
// the platform needs to start using the federated trust.
type Facts struct {
	TenantID          string       `json:"tenant_id"`
	SubscriptionID    string       `json:"subscription_id"`
	ManagementGroupID string       `json:"management_group_id,omitempty"`
	OnboardingScope   config.Scope `json:"onboarding_scope"`
	ApplicationID     string       `json:"application_client_id"`
	PrincipalID       string       `json:"service_principal_object_id"`
}

// Sign computes the callback signature: base64 of HMAC-SHA256 over
// timestamp + "." + payload.
func Sign(secret []byte, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp + "."))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Notify sends the signed completion callback. On any failure it prints the
// manual recovery block and returns ErrCallbackFailed; callers must not
// treat that as fatal.
func Notify(c *client.Client, cfg *config.OnboardingConfig, facts *Facts, secret []byte) error {
	payload, err := json.Marshal(facts)
	if err != nil {
		return fmt.Errorf("failed to marshal completion payload: %w", err)
	}

	timestamp := strconv.FormatInt(now().Unix(), 10)
	signature := Sign(secret, timestamp, payload)

	if err := c.SendCompletion(cfg.ExternalID, signature, timestamp, payload); err != nil {
		log.Warnf("⚠️  Completion callback failed: %v", err)
		printManualRecovery(cfg.ExternalID, signature, timestamp, payload)
		return fmt.Errorf("%w: %v", ErrCallbackFailed, err)
	}

	log.Info("✅ Platform backend notified of completion")
	return nil
}

// ManualRecovery prints the recovery block when the callback could not even
// be signed, e.g. no signing secret was resolvable.
func ManualRecovery(externalID string, facts *Facts) {
	payload, err := json.Marshal(facts)
	if err != nil {
		log.Warnf("⚠️  Failed to marshal completion payload: %v", err)
		return
	}
	printManualRecovery(externalID, "(unavailable)", strconv.FormatInt(now().Unix(), 10), payload)
}

// printManualRecovery emits a durable block the operator can relay through
// an out-of-band channel. It contains every fact the backend would have
// received.
func printManualRecovery(externalID, signature, timestamp string, payload []byte) {
	log.Warn("📋 The platform backend could not be reached. Your cloud resources")
	log.Warn("   are fully provisioned; relay the block below to VectorPlane")
	log.Warn("   support to finish the onboarding:")
	log.Warn("----- BEGIN VECTORPLANE COMPLETION -----")
	log.Warnf("external_id: %s", externalID)
	log.Warnf("timestamp:   %s", timestamp)
	log.Warnf("signature:   %s", signature)
	log.Warnf("payload:     %s", string(payload))
	log.Warn("----- END VECTORPLANE COMPLETION -----")
}
