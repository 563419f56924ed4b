package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vectorplane/onboardctl/cmd/onboardctl/cmd/onboard"
	"github.com/vectorplane/onboardctl/cmd/onboardctl/cmd/teardown"
)

var rootCmd = &cobra.Command{
	Use:   "onboardctl",
	Short: "VectorPlane tenant onboarding CLI",
	Long: `Onboards an Azure tenant into the VectorPlane security platform by
establishing a zero-secret federated identity trust and granting a fixed
set of read-only permissions. Safe to re-run after any partial failure.`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Configure logrus to show only the message
	log.SetFormatter(&log.TextFormatter{
		DisableTimestamp:       true,
		DisableLevelTruncation: true,
		FullTimestamp:          false,
	})
	// Further cleanup: use a custom formatter for zero prefix
	log.SetFormatter(new(PlainFormatter))

	// Register subcommands
	rootCmd.AddCommand(onboard.NewCommand())
	rootCmd.AddCommand(teardown.NewCommand())
}

type PlainFormatter struct{}

func (f *PlainFormatter) Format(entry *log.Entry) ([]byte, error) {
	return []byte(entry.Message + "\n"), nil
}
