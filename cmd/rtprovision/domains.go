package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/rtprovision/internal/adapter/driving/http"
	"github.com/ericfisherdev/rtprovision/internal/config"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <domain>",
	Short: "Resolve a domain to its platform record",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

var statusCmd = &cobra.Command{
	Use:   "status <domain>",
	Short: "Show whether a tracking domain is live",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var registerCmd = &cobra.Command{
	Use:   "register <domain>...",
	Short: "Register tracking domains on the platform",
	Long: `Register rt.<domain> for each argument. More than one domain is
processed in waves of RTPROVISION_BATCH_SIZE concurrent requests.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRegister,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List platform domains",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var (
	listPage   int
	listLimit  int
	listSearch string
)

func init() {
	listCmd.Flags().IntVar(&listPage, "page", 1, "page to show")
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "domains per page (at most 100)")
	listCmd.Flags().StringVar(&listSearch, "search", "", "case-insensitive substring of the tracking host")
}

func runList(cmd *cobra.Command, _ []string) error {
	if !cfg.HasAPIKey() {
		return config.ErrAPIKeyRequired
	}
	a, err := newApp(cmd.Context(), cfg, cliLogger())
	if err != nil {
		return err
	}
	defer a.close()

	listing, err := a.provisioning.ListDomains(cmd.Context(), listPage, listLimit, listSearch)
	if err != nil {
		return err
	}
	return printJSON(httphandler.NewDomainListResponse(listing))
}

func runResolve(cmd *cobra.Command, args []string) error {
	if !cfg.HasAPIKey() {
		return config.ErrAPIKeyRequired
	}
	a, err := newApp(cmd.Context(), cfg, cliLogger())
	if err != nil {
		return err
	}
	defer a.close()

	rec, err := a.provisioning.ResolveDomain(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(httphandler.NewDomainInfoResponse(*rec))
}

func runStatus(cmd *cobra.Command, args []string) error {
	if !cfg.HasAPIKey() {
		return config.ErrAPIKeyRequired
	}
	a, err := newApp(cmd.Context(), cfg, cliLogger())
	if err != nil {
		return err
	}
	defer a.close()

	return printJSON(httphandler.NewDomainStatusResponse(a.provisioning.DomainStatus(cmd.Context(), args[0])))
}

func runRegister(cmd *cobra.Command, args []string) error {
	if !cfg.HasAPIKey() {
		return config.ErrAPIKeyRequired
	}
	a, err := newApp(cmd.Context(), cfg, cliLogger())
	if err != nil {
		return err
	}
	defer a.close()

	if len(args) == 1 {
		reg, err := a.provisioning.RegisterDomain(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(httphandler.NewRegistrationResponse(reg))
	}

	res := a.provisioning.RegisterDomainsBatch(cmd.Context(), args)
	if err := printJSON(httphandler.NewBatchResponse("Domain registration completed", res)); err != nil {
		return err
	}
	if res.Summary.Failed > 0 {
		return fmt.Errorf("%d of %d registrations failed", res.Summary.Failed, res.Summary.Total)
	}
	return nil
}

// printJSON writes v in the same snake_case shape the HTTP API returns.
func printJSON(v any) error {
	return encodeJSON(os.Stdout, v)
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
