package cmd

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docsearch/internal/logging"
)

func newLogsCmd() *cobra.Command {
	var (
		file    string
		lines   int
		follow  bool
		level   string
		pattern string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View the docsearch log file",
		Long: `Show recent entries of the log file written with --debug or logging.file.

Entries are JSON lines; they are printed as time, level, message and
sorted attributes. Lines that are not JSON are printed as they are.`,
		Example: `  docsearch logs
  docsearch logs -n 100 --level warn
  docsearch logs --follow --grep search`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				if cfg, err := requireConfig(); err == nil {
					file = cfg.Logging.File
				}
			}
			path, err := logging.FindLogFile(file)
			if err != nil {
				return err
			}

			viewerCfg := logging.ViewerConfig{Level: level}
			if pattern != "" {
				re, err := regexp.Compile(pattern)
				if err != nil {
					return fmt.Errorf("invalid --grep pattern: %w", err)
				}
				viewerCfg.Pattern = re
			}
			viewer := logging.NewViewer(viewerCfg)

			entries, err := viewer.Tail(path, lines)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				_, _ = fmt.Fprintln(out, logging.Format(e))
			}
			if !follow {
				return nil
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			ch := make(chan logging.LogEntry, 64)
			errc := make(chan error, 1)
			go func() {
				errc <- viewer.Follow(ctx, path, ch)
				close(ch)
			}()
			for e := range ch {
				_, _ = fmt.Fprintln(out, logging.Format(e))
			}
			if err := <-errc; err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Log file (default: logging.file or ~/.docsearch/logs/server.log)")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new entries")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level: debug, info, warn, error")
	cmd.Flags().StringVar(&pattern, "grep", "", "Only entries matching this regular expression")

	return cmd
}
