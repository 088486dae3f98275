package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ghalamif/opcbridge/pkg/opcbridge"
)

const defaultConfigPath = "./data/config.yaml"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "opcbridge",
	Short: "OPC UA to MQTT to InfluxDB telemetry bridge",
	Long: `opcbridge discovers the variables an OPC UA server exposes, polls the
ones an operator selected and moves their values over MQTT into a time-series
store.

"serve" runs the control process: it supervises the poller and writer workers
and exposes the HTTP control surface.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command. Errors are printed by the commands
// themselves.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	err := rootCmd.Execute()
	if err != nil && !reported(err) {
		red.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

// SetVersionInfo sets the version string shown by --version.
func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to the bridge configuration file")
}

func loadConfig() (*opcbridge.Config, error) {
	cfg, err := opcbridge.LoadConfig(configPath)
	if err != nil {
		return nil, failure("Invalid configuration",
			err.Error(),
			[]string{fmt.Sprintf("Check %s or pass another file with --config", configPath)})
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
