package commands

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ghalamif/opcbridge/pkg/opcbridge"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control process and supervise both workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rt, err := opcbridge.New(cfg)
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		cyan.Printf("control surface on %s (%s workers)\n", cfg.HTTP.Addr, cfg.Supervisor.Mode)
		return rt.Serve(ctx)
	},
}

var supervised bool

var pollerCmd = &cobra.Command{
	Use:   "poller",
	Short: "Run the poller worker in the foreground",
	Long: `Connects to the OPC UA server and the broker, then reads the selected
nodes every poll interval and publishes one message per value.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker(func(rt *opcbridge.Runtime, out io.Writer) error {
			ctx, stop := signalContext()
			defer stop()
			return rt.RunPoller(ctx, out)
		})
	},
}

var writerCmd = &cobra.Command{
	Use:   "writer",
	Short: "Run the writer worker in the foreground",
	Long: `Subscribes to the deployment topic and writes every telemetry message
to the configured metric store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker(func(rt *opcbridge.Runtime, out io.Writer) error {
			ctx, stop := signalContext()
			defer stop()
			return rt.RunWriter(ctx, out)
		})
	},
}

// runWorker logs to stdout without timestamps when a supervisor captures the
// output, and through the runtime logger otherwise.
func runWorker(run func(*opcbridge.Runtime, io.Writer) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := opcbridge.New(cfg)
	if err != nil {
		return err
	}
	var out io.Writer
	if supervised {
		out = os.Stdout
	}
	return run(rt, out)
}

func init() {
	for _, c := range []*cobra.Command{pollerCmd, writerCmd} {
		c.Flags().BoolVar(&supervised, "supervised", false, "Write plain log lines to stdout for the supervisor")
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(serveCmd)
}
