package cmd

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docsearch/internal/preflight"
)

// errCheckFailed is returned when a required doctor check fails.
var errCheckFailed = errors.New("system check failed")

// doctorReport is the JSON output of doctor.
type doctorReport struct {
	Status string                  `json:"status"`
	Checks []preflight.CheckResult `json:"checks"`
}

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the provider, docs and index",
		Long: `Run diagnostics to make sure docsearch can build and serve.

Checks:
  - Embedding provider reachable and the model installed
  - Docs directory with documents per section
  - Index artifacts loadable and built with the configured model
  - Write permission in the index directory
  - Disk space (100MB minimum)`,
		Example: `  docsearch doctor
  docsearch doctor --verbose
  docsearch doctor --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			target := preflight.Target{
				DocsDir:  cfg.Docs.Dir,
				IndexDir: cfg.Index.Dir,
				HNSW:     hnswConfig(cfg),
			}
			if embedder, err := newEmbedder(ctx, cfg); err == nil {
				defer func() { _ = embedder.Close() }()
				target.Embedder = embedder
			}

			checker := preflight.New(target,
				preflight.WithVerbose(verbose),
				preflight.WithOutput(cmd.OutOrStdout()))
			results := checker.RunAll(ctx)

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(doctorReport{Status: checker.SummaryStatus(results), Checks: results}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				return errCheckFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
