package commands

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

// statsMetrics are printed in this order by the stats command.
var statsMetrics = []struct{ name, label string }{
	{"bridge_poll_cycles_total", "cycles"},
	{"bridge_messages_published_total", "published"},
	{"bridge_messages_received_total", "received"},
	{"bridge_points_written_total", "written"},
	{"bridge_items_dropped_total", "dropped"},
	{"bridge_writer_queue_length", "queue"},
	{"bridge_poller_running", "poller"},
	{"bridge_writer_running", "writer"},
}

var (
	statsURL      string
	statsInterval time.Duration
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Poll the metrics endpoint and print live counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()

		cyan.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", statsURL)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				values, err := fetchSnapshot(statsURL)
				if err != nil {
					warning("stats: %v", err)
					continue
				}
				fmt.Fprintln(os.Stdout, formatSnapshot(time.Now(), values))
			}
		}
	},
}

func fetchSnapshot(url string) (map[string]float64, error) {
	resp, err := httpClient.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return parseSnapshot(resp.Body)
}

// parseSnapshot sums every series of each tracked metric family.
func parseSnapshot(r io.Reader) (map[string]float64, error) {
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(statsMetrics))
	for _, m := range statsMetrics {
		mf, ok := families[m.name]
		if !ok {
			continue
		}
		var sum float64
		for _, metric := range mf.GetMetric() {
			sum += sampleValue(mf.GetType(), metric)
		}
		out[m.name] = sum
	}
	return out, nil
}

func sampleValue(t dto.MetricType, m *dto.Metric) float64 {
	switch t {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	default:
		return m.GetUntyped().GetValue()
	}
}

func formatSnapshot(now time.Time, values map[string]float64) string {
	line := "[" + now.Format(time.RFC3339) + "]"
	for _, m := range statsMetrics {
		line += fmt.Sprintf(" %s=%g", m.label, values[m.name])
	}
	return line
}

func init() {
	statsCmd.Flags().StringVar(&statsURL, "url", "http://localhost:8080/metrics", "Prometheus metrics endpoint")
	statsCmd.Flags().DurationVar(&statsInterval, "interval", 2*time.Second, "Refresh interval")
	rootCmd.AddCommand(statsCmd)
}
