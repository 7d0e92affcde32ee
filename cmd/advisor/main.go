// Command advisor runs analysis cycles from the terminal without a server.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/stockbuddy/advisor/internal/app"
	"github.com/stockbuddy/advisor/internal/common"
	"github.com/stockbuddy/advisor/internal/interfaces"
)

func main() {
	// Load .env if present; real environment wins
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, csvPath string

	root := &cobra.Command{
		Use:           "advisor",
		Short:         "Portfolio recommendation engine",
		Long:          "Analyze portfolio holdings against market data and news sentiment, producing buy/sell/hold/watch recommendations.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to advisor.toml (default: ADVISOR_CONFIG, then binary dir)")
	root.PersistentFlags().StringVar(&csvPath, "csv", "", "override the portfolio CSV path")

	root.AddCommand(newAnalyzeCmd(&configPath, &csvPath))
	root.AddCommand(newSummaryCmd(&configPath, &csvPath))
	root.AddCommand(newVersionCmd())

	return root
}

// openApp initializes the application core for one CLI invocation.
func openApp(configPath, csvPath string) (*app.App, error) {
	if csvPath != "" {
		os.Setenv("ADVISOR_PORTFOLIO_CSV", csvPath)
	}
	return app.NewApp(configPath)
}

func newAnalyzeCmd(configPath, csvPath *string) *cobra.Command {
	var narrate, asJSON bool

	cmd := &cobra.Command{
		Use:   "analyze [symbols...]",
		Short: "Run a full analysis cycle over the portfolio",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath, *csvPath)
			if err != nil {
				return err
			}
			defer a.Close()

			review, err := a.AdvisorService.AnalyzePortfolio(cmd.Context(), interfaces.ReviewOptions{
				Symbols: args,
				Narrate: narrate,
			})
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd, review)
			}
			printReview(cmd.OutOrStdout(), review)
			return nil
		},
	}
	cmd.Flags().BoolVar(&narrate, "narrate", false, "attach a prose narrative to each recommendation")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the full review as JSON")

	return cmd
}

func newSummaryCmd(configPath, csvPath *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show portfolio totals, weights, and performers",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath, *csvPath)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.AdvisorService.Summarize(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd, summary)
			}
			printSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the summary as JSON")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			common.LoadVersionFromFile()
			fmt.Fprintf(cmd.OutOrStdout(), "advisor %s (build %s, commit %s)\n",
				common.GetVersion(), common.GetBuild(), common.GetGitCommit())
		},
	}
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
