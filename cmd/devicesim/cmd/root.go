package cmd

import (
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"safetywatch/internal/simclient"
)

var (
	okFmt   = color.New(color.FgGreen).SprintFunc()
	warnFmt = color.New(color.FgYellow).SprintFunc()
	errFmt  = color.New(color.FgRed, color.Bold).SprintFunc()
	dimFmt  = color.New(color.Faint).SprintFunc()
	keyFmt  = color.New(color.FgCyan, color.Bold).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:           "devicesim",
	Short:         "Simulate wearable devices against the safety API",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("server", envOr("SAFETYWATCH_SERVER", "http://localhost:8080"), "API base URL (env: SAFETYWATCH_SERVER)")
	rootCmd.PersistentFlags().Duration("timeout", 10*time.Second, "Per-request timeout")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		if off, _ := cmd.Flags().GetBool("no-color"); off {
			color.NoColor = true
		}
	}
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		rootCmd.PrintErrln(errFmt("error:"), err)
	}
	return err
}

func newClient(cmd *cobra.Command) *simclient.Client {
	server, _ := cmd.Flags().GetString("server")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return simclient.New(server, timeout)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
