package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docsearch/internal/config"
	"github.com/Aman-CERP/docsearch/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the docsearch configuration.

Configuration precedence (lowest to highest):
  1. Built-in defaults
  2. User config ($XDG_CONFIG_HOME/docsearch/config.yaml)
  3. Project config (.docsearch.yaml)
  4. .env in the working directory
  5. Environment variables (OLLAMA_HOST, EMBED_MODEL, SEARCH_TOP_K, DOCSEARCH_*)`,
		Example: `  # Create the user config with defaults
  docsearch config init

  # Show the effective configuration
  docsearch config show

  # Print the user config file path
  docsearch config path`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigRestoreCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the user configuration file",
		Long: `Write the user configuration file with every option at its default.

With --force an existing file is backed up, then rewritten with its own
values plus defaults for any option it does not set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Back up and upgrade an existing configuration")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Example: `  docsearch config show
  docsearch config show --json
  docsearch config show --source user`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput, source)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, user, project, defaults")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.UserConfigPath(configDir))
			return err
		},
	}
}

func newConfigRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Restore the most recent user config backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			backups, err := config.ListBackups(config.UserConfigPath(configDir))
			if err != nil {
				return err
			}
			if len(backups) == 0 {
				out.Warning("No configuration backups found")
				return nil
			}
			if err := config.RestoreBackup(backups[0]); err != nil {
				return err
			}
			out.Successf("Restored %s", backups[0])
			return nil
		},
	}
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())
	path := config.UserConfigPath(configDir)

	_, err := os.Stat(path)
	exists := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if exists && !force {
		out.Warning("User configuration already exists")
		out.Statusf("📁", "Location: %s", path)
		out.Newline()
		out.Status("💡", "Use --force to upgrade it with new defaults (your settings are kept)")
		return nil
	}

	cfg := config.NewConfig()
	if exists {
		backup, err := config.BackupFile(path)
		if err != nil {
			return fmt.Errorf("failed to backup config: %w", err)
		}
		if cfg, err = config.LoadFile(path); err != nil {
			return err
		}
		out.Statusf("💾", "Backup: %s", backup)
	}

	if err := cfg.WriteYAML(path); err != nil {
		return err
	}

	if exists {
		out.Success("Configuration upgraded")
	} else {
		out.Success("Created user configuration")
	}
	out.Statusf("📁", "Location: %s", path)
	out.Newline()
	out.Status("📋", "Next steps:")
	out.Status("", "  1. Set embeddings.provider and embeddings.model")
	out.Status("", "  2. List your sections under search.sections")
	out.Status("", "  3. Run 'docsearch doctor' to verify")
	return nil
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool, source string) error {
	out := output.New(cmd.OutOrStdout())

	var (
		cfg  *config.Config
		desc string
		err  error
	)

	switch source {
	case "merged":
		if cfg, err = requireConfig(); err != nil {
			return err
		}
		desc = "merged (defaults + user + project + .env + env)"
	case "user", "project":
		path := config.UserConfigPath(configDir)
		if source == "project" {
			path = config.ProjectConfigFile
		}
		if cfg, err = config.LoadFile(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				out.Warningf("No %s configuration file found", source)
				out.Statusf("📁", "Expected at: %s", path)
				return nil
			}
			return err
		}
		desc = fmt.Sprintf("%s (%s) over defaults", source, path)
	case "defaults":
		cfg = config.NewConfig()
		desc = "defaults"
	default:
		return fmt.Errorf("invalid source: %s (use: merged, user, project, defaults)", source)
	}

	if jsonOutput {
		return out.JSON(cfg)
	}

	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	out.Statusf("📋", "Configuration source: %s", desc)
	out.Newline()
	_, err = fmt.Fprint(cmd.OutOrStdout(), string(data))
	return err
}
