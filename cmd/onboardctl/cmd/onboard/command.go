package onboard

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/feature/exchange"
	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/settings"
	"github.com/vectorplane/onboardctl/cmd/onboardctl/internal/workflow"
)

func NewCommand() *cobra.Command {
	return NewCommandFunc()
}

var NewCommandFunc = func() *cobra.Command {
	var (
		pairingCode string
		backendURL  string
		engineDir   string
	)

	cmd := &cobra.Command{
		Use:          "onboard",
		Short:        "Run the tenant onboarding workflow",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings.Load()
			if err != nil {
				return fmt.Errorf("❌ %v", err)
			}
			if backendURL != "" {
				s.BackendURL = backendURL
			}
			if engineDir != "" {
				s.EngineDir = engineDir
			}

			prompt, err := promptFunc(pairingCode)
			if err != nil {
				return err
			}

			run := workflow.New(s, prompt)
			if err := run.Execute(); err != nil {
				return fmt.Errorf("❌ Onboarding failed: %v", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pairingCode, "pairing-code", "", "Pairing code (skips the interactive prompt)")
	cmd.Flags().StringVar(&backendURL, "backend-url", "", "Platform backend base URL override")
	cmd.Flags().StringVar(&engineDir, "engine-dir", "", "Declarative engine working directory override")
	return cmd
}

// promptFunc builds the pairing-code source. A flag-supplied code is good
// for one attempt only; interactive runs may enter a fresh code each time.
func promptFunc(flagCode string) (exchange.PromptFunc, error) {
	if flagCode != "" {
		return func(attempt int) (string, error) {
			if attempt > 1 {
				return "", fmt.Errorf("pairing code was rejected; re-run interactively to enter a new one")
			}
			return flagCode, nil
		}, nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, fmt.Errorf("❌ no terminal available: pass --pairing-code when running non-interactively")
	}

	reader := bufio.NewReader(os.Stdin)
	return func(attempt int) (string, error) {
		log.Infof("🔑 Enter pairing code (attempt %d/3): ", attempt)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}, nil
}
