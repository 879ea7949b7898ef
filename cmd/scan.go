package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lockwhz/ai-scan-service/models"
)

// cliUser identifica scans feitos pelo operador; não passam pelo rate limit.
const cliUser = "cli"

var (
	jsonOutput  bool
	noCache     bool
	accessToken string
	failOn      string
)

var scanCmd = &cobra.Command{
	Use:   "scan <repository-url>",
	Short: "Run a one-off AI security scan of a remote repository",
	Long: `Run the full scan pipeline for a single GitHub, GitLab or Bitbucket repository
and print a report. Results are read from and written to the scan cache when a
database is configured, unless --no-cache is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the raw JSON response")
	scanCmd.Flags().BoolVar(&noCache, "no-cache", false, "ignore cached results for the current commit")
	scanCmd.Flags().StringVar(&accessToken, "token", "", "access token for private repositories")
	scanCmd.Flags().StringVar(&failOn, "fail-on", "", "exit with code 1 if a finding has at least this severity (low, medium, high, critical)")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if failOn != "" && severityRank(models.Severity(failOn)) == 0 {
		return fmt.Errorf("invalid --fail-on value %q", failOn)
	}

	a, err := newApp(ctx, cfg, appOptions{noCache: noCache})
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer a.Close()

	resp, err := a.orchestrator.ScanForUser(ctx, cliUser, args[0], accessToken)
	if err != nil {
		return fmt.Errorf("scan failed (%s): %w", models.ErrorKind(err), err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("failed to encode response: %w", err)
		}
	} else {
		fmt.Print(formatReport(resp, true))
	}

	if failOn != "" && hasSeverityAtLeast(resp.Results, models.Severity(failOn)) {
		os.Exit(1)
	}
	return nil
}
