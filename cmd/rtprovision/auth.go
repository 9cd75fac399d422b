package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/rtprovision/internal/adapter/driving/http"
)

// authCmd manages the stored platform session
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the stored platform session credential",
	Long: `Inspect and replace the session credential used for landing writes.

Available subcommands:
  status  - Show whether a valid credential is stored
  save    - Store a captured token and cookie header
  purge   - Delete every stored credential
  history - List stored credentials without their secrets`,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show credential status",
	RunE:  runAuthStatus,
}

var authSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Store a captured session credential",
	RunE:  runAuthSave,
}

var authPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all stored credentials",
	RunE:  runAuthPurge,
}

var authHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored credentials",
	RunE:  runAuthHistory,
}

var (
	saveToken   string
	saveCookies string
	saveTTL     time.Duration
)

func init() {
	authSaveCmd.Flags().StringVar(&saveToken, "token", "", "bearer token captured from the app")
	authSaveCmd.Flags().StringVar(&saveCookies, "cookies", "", "raw Cookie header captured from the app")
	authSaveCmd.Flags().DurationVar(&saveTTL, "ttl", 0, "credential lifetime (default RTPROVISION_CREDENTIAL_TTL)")
	_ = authSaveCmd.MarkFlagRequired("token")
	_ = authSaveCmd.MarkFlagRequired("cookies")
}

func runAuthStatus(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), cfg, cliLogger())
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.creds.Status(cmd.Context(), cfg.WarnThreshold)
	if err != nil {
		return err
	}
	return printJSON(httphandler.NewCredentialStatusResponse(st))
}

func runAuthSave(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), cfg, cliLogger())
	if err != nil {
		return err
	}
	defer a.close()

	ttl := saveTTL
	if ttl <= 0 {
		ttl = cfg.CredentialTTL
	}
	saved, err := a.creds.Save(cmd.Context(), saveToken, saveCookies, ttl)
	if err != nil {
		return err
	}
	fmt.Printf("Credential saved, expires %s\n", saved.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func runAuthPurge(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), cfg, cliLogger())
	if err != nil {
		return err
	}
	defer a.close()

	n, err := a.creds.PurgeAll(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Cleared %d authentication records\n", n)
	return nil
}

func runAuthHistory(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), cfg, cliLogger())
	if err != nil {
		return err
	}
	defer a.close()

	history, err := a.creds.History(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(httphandler.NewCredentialHistoryResponse(history))
}

// cliLogger keeps one-shot commands quiet unless debug logging was requested.
func cliLogger() *slog.Logger {
	if cfg.LogLevel <= slog.LevelDebug {
		return slog.Default()
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
