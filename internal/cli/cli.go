// Package cli implements avtool, the headless command line front end.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"aero-vision/internal/config"
	"aero-vision/internal/logging"
	"aero-vision/internal/version"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Root carries state shared by every subcommand.
type Root struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log *logrus.Logger
}

// NewRootCmd creates the avtool command tree.
func NewRootCmd() *cobra.Command {
	root := &Root{}

	rootCmd := &cobra.Command{
		Use:   "avtool",
		Short: "Headless tools for Aero-Vision",
		Long: `avtool runs the Aero-Vision detection pipeline without a window,
inspects the run history and manages the configuration file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return root.setup(cmd.ErrOrStderr())
		},
	}
	rootCmd.PersistentFlags().StringVar(&root.configPath, "config", config.DefaultPath(), "config file")
	rootCmd.PersistentFlags().StringVar(&root.logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(newDetectCmd(root))
	rootCmd.AddCommand(newHistoryCmd(root))
	rootCmd.AddCommand(newInspectCmd())
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// setup loads configuration and logging before a subcommand runs.
func (r *Root) setup(logOut io.Writer) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.Load(r.configPath)
	if err != nil {
		return err
	}
	if r.logLevel != "" {
		cfg.Logging.Level = r.logLevel
	}
	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, logOut)
	if err != nil {
		return err
	}
	r.cfg = cfg
	r.log = log
	return nil
}

func newVersionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), info)
			}
			fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
