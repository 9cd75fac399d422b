package main

import (
	"log/slog"
	"os"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/rtprovision/internal/config"
)

// rootCmd is the base command; subcommands share the loaded config.
var rootCmd = &cobra.Command{
	Use:   "rtprovision",
	Short: "Provision tracking domains and landing pages",
	Long: `rtprovision creates landers, prelanders and tracking domains on the
tracking platform. Writes go through the session API directly and fall back
to a headless browser when the platform rejects the direct request.

Configuration is read from RTPROVISION_* environment variables and an
optional .env file.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

var cfg *config.Config

func main() {
	rootCmd.AddCommand(serveCmd, listCmd, resolveCmd, statusCmd, registerCmd, authCmd)
	authCmd.AddCommand(authStatusCmd, authSaveCmd, authPurgeCmd, authHistoryCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// loadConfig fails fast on invalid configuration and installs the JSON logger.
func loadConfig(_ *cobra.Command, _ []string) error {
	loaded, err := config.Load()
	if err != nil {
		return err
	}
	cfg = loaded

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	return nil
}
