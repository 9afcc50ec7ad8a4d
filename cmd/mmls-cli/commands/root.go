package commands

import (
	"context"
	"fmt"
	"os"

	"mmls-attendance/lib/configutil"
	"mmls-attendance/lib/telemetry"

	"github.com/spf13/cobra"
)

var (
	configPath *string
	verbose    *bool
	dumpHttp   *string
)

var rootCmd = &cobra.Command{
	Use:          "mmls-cli",
	Short:        "mmls-cli finds the attendance links of your MMLS classes.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(*verbose)

		err := configutil.LoadDotenv()
		if err != nil {
			return err
		}
		cfg, err := LoadConfig(*configPath)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		app, err := NewApp(cfg)
		if err != nil {
			return err
		}
		cmd.SetContext(withApp(cmd.Context(), app))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return getApp(cmd).Close()
	},
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "config.json5", "The config file, <name>.local.json5 next to it overrides it.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug messages.")
	dumpHttp = rootCmd.PersistentFlags().String("dump-http", "", "Write every portal request and response to this directory.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
