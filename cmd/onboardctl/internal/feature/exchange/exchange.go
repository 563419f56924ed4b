package exchange

import (
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/client"
	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/feature/config"
)

const maxAttempts = 3

var (
	// ErrExhaustedAttempts means no valid pairing code was produced within
	// the attempt budget.
	ErrExhaustedAttempts = errors.New("pairing attempts exhausted")

	// ErrSupersededCode means the backend already issued a newer code for
	// this onboarding; the entered one can never succeed.
	ErrSupersededCode = errors.New("a newer pairing code exists")

	// ErrInvalidCode covers every other rejection of a pairing code.
	ErrInvalidCode = errors.New("pairing code rejected")
)

// PromptFunc supplies a pairing code for the given attempt (1-based). Each
// failed attempt re-prompts, so the operator can enter a fresh code.
type PromptFunc func(attempt int) (string, error)

// Normalize case-folds and trims a user-entered pairing code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Exchange trades a pairing code for the onboarding configuration, allowing
// up to three attempts. Rejected codes are retryable; a response that parses
// into an unusable configuration is fatal immediately.
func Exchange(c *client.Client, prompt PromptFunc) (*config.OnboardingConfig, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		raw, err := prompt(attempt)
		if err != nil {
			return nil, fmt.Errorf("failed to read pairing code: %w", err)
		}

		code := Normalize(raw)
		if code == "" {
			log.Warnf("⚠️  Empty pairing code (attempt %d/%d)", attempt, maxAttempts)
			continue
		}

		body, err := c.ExchangeCode(code)
		if err != nil {
			var exchErr *client.ExchangeError
			switch {
			case errors.As(err, &exchErr) && exchErr.Superseded():
				log.Warnf("⚠️  %v: request a fresh code from the platform console (attempt %d/%d)",
					ErrSupersededCode, attempt, maxAttempts)
			case errors.As(err, &exchErr):
				msg := exchErr.Detail
				if msg == "" {
					msg = "invalid or expired"
				}
				log.Warnf("⚠️  %v: %s (attempt %d/%d)", ErrInvalidCode, msg, attempt, maxAttempts)
			default:
				log.Warnf("⚠️  Exchange request failed: %v (attempt %d/%d)", err, attempt, maxAttempts)
			}
			continue
		}

		cfg, err := config.Parse(body)
		if err != nil {
			// Not retried: a successful exchange should never be malformed.
			return nil, err
		}

		log.Info("✅ Pairing code accepted")
		return cfg, nil
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrExhaustedAttempts, maxAttempts)
}
