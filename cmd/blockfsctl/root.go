// Package blockfsctl is the command-line entry point for formatting,
// inspecting, and checking a blockfs disk image, following the teacher's
// cmd.rootCmd pattern (cfg.BindFlags wired to a cobra root command, viper
// merging flags/env/config file before RunE).
package blockfsctl

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/googlecloudplatform/blockfs/cfg"
	"github.com/googlecloudplatform/blockfs/internal/blocklog"
)

var (
	v       = viper.New()
	bindErr error
)

var rootCmd = &cobra.Command{
	Use:   "blockfsctl",
	Short: "Format, inspect, and check blockfs disk images.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}

		c, err := cfg.Decode(v)
		if err != nil {
			return fmt.Errorf("decode config: %w", err)
		}

		if err := blocklog.Configure(c.Logging.Severity, c.Logging.Format, c.Logging.FilePath); err != nil {
			return fmt.Errorf("configure logging: %w", err)
		}

		return nil
	},
}

func init() {
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
	if err := v.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		bindErr = err
	}

	rootCmd.AddCommand(formatCmd, statCmd, fsckCmd)
}

// Execute runs the blockfsctl command tree, matching the teacher's
// cmd.Execute entry point style.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func currentConfig() (cfg.Config, error) {
	return cfg.Decode(v)
}
