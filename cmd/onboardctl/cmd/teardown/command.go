package teardown

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/feature/config"
	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/settings"
)

func NewCommand() *cobra.Command {
	return NewCommandFunc()
}

var NewCommandFunc = func() *cobra.Command {
	return &cobra.Command{
		Use:          "teardown",
		Short:        "Print the steps to reverse an onboarding",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings.Load()
			if err != nil {
				return err
			}
			printRunbook(loadPersisted(s))
			return nil
		},
	}
}

// loadPersisted returns the onboarding configuration a previous run left in
// the engine directory, or nil when none is readable. The runbook stays
// usable either way.
func loadPersisted(s *settings.Settings) *config.OnboardingConfig {
	cfg, err := config.Load(s.VarFilePath())
	if err != nil {
		return nil
	}
	return cfg
}

// printRunbook documents the reverse operation. Teardown is deliberately not
// automated: destroying the trust severs the platform's visibility, so each
// step is run by an operator who means it.
func printRunbook(cfg *config.OnboardingConfig) {
	log.Info("📋 Reversing a VectorPlane onboarding:")
	if cfg != nil {
		log.Infof("   (onboarding %s, application %q)", cfg.ExternalID, cfg.AppDisplayName)
	}
	log.Info("")
	log.Info("  1. Detach the tenant in the VectorPlane console so the platform")
	log.Info("     stops expecting telemetry before the trust disappears.")
	log.Info("  2. From the engine working directory, destroy the managed resources:")
	log.Info("       terraform destroy -var-file=onboarding.tfvars.json")
	log.Info("     This removes the three role assignments, the federated")
	log.Info("     credential, the service principal, and the application.")
	log.Info("  3. The directory soft-deletes the application. To make the removal")
	log.Info("     permanent before the retention window lapses:")
	log.Info("       az ad app list --show-mine  (confirm it is gone from live objects)")
	log.Info("       az rest --method DELETE --url https://graph.microsoft.com/v1.0/directory/deletedItems/<object-id>")
	log.Info("  4. Delete onboarding.tfvars.json and the engine state if the")
	log.Info("     directory will never be onboarded again.")
	log.Info("")
	log.Info("  Leaving the soft-deleted application in place is harmless: a")
	log.Info("  future onboarding restores and reuses it.")
}
