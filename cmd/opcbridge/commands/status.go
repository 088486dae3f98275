package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ghalamif/opcbridge/pkg/opcbridge"
)

var controlURL string

var httpClient = &http.Client{Timeout: 10 * time.Second}

type statusResponse struct {
	Status  map[string]string                 `json:"status"`
	Workers map[string]opcbridge.WorkerStatus `json:"workers"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show worker states reported by a running control process",
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := baseURL()
		if err != nil {
			return err
		}
		var st statusResponse
		if err := call(http.MethodGet, base+"/api/status", &st); err != nil {
			return unreachable(base, err)
		}
		return renderStatus(os.Stdout, st)
	},
}

var workersCmd = &cobra.Command{
	Use:   "workers <start|stop|restart|toggle> <poller|writer> | workers <on|off>",
	Short: "Start, stop, restart or toggle workers through the control process",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := baseURL()
		if err != nil {
			return err
		}
		var target string
		switch {
		case len(args) == 1 && (args[0] == "on" || args[0] == "off"):
			target = fmt.Sprintf("%s/api/workers/toggle?on=%t", base, args[0] == "on")
		case len(args) == 2:
			target = fmt.Sprintf("%s/api/workers/%s/%s", base, args[1], args[0])
		default:
			return cmd.Usage()
		}
		var out map[string]any
		if err := call(http.MethodPost, target, &out); err != nil {
			return failure("Worker command failed", err.Error(), nil)
		}
		var st statusResponse
		if err := call(http.MethodGet, base+"/api/status", &st); err != nil {
			return unreachable(base, err)
		}
		return renderStatus(os.Stdout, st)
	},
}

func renderStatus(w io.Writer, st statusResponse) error {
	kinds := make([]string, 0, len(st.Status))
	for k := range st.Status {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	table := tablewriter.NewWriter(w)
	table.Header("Worker", "State", "Since", "Last Exit")
	for _, k := range kinds {
		ws := st.Workers[k]
		since := ""
		switch {
		case ws.Running && !ws.StartedAt.IsZero():
			since = ws.StartedAt.Local().Format(time.DateTime)
		case !ws.Running && !ws.ExitedAt.IsZero():
			since = ws.ExitedAt.Local().Format(time.DateTime)
		}
		state := st.Status[k]
		if err := table.Append(k, stateColor(state).Sprint(state), since, ws.LastExit); err != nil {
			return err
		}
	}
	return table.Render()
}

// baseURL turns the configured listen address into a client URL unless
// --url was given.
func baseURL() (string, error) {
	if controlURL != "" {
		return strings.TrimRight(controlURL, "/"), nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	host, port, err := net.SplitHostPort(cfg.HTTP.Addr)
	if err != nil {
		return "", fmt.Errorf("http.addr %q: %w", cfg.HTTP.Addr, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}

func call(method, url string, out any) error {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, e.Error)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func unreachable(base string, err error) error {
	return failure("Control process unreachable", err.Error(), []string{
		"Start it with: opcbridge serve --config " + configPath,
		"Or point at another instance with --url (currently " + base + ")",
	})
}

func init() {
	for _, c := range []*cobra.Command{statusCmd, workersCmd} {
		c.Flags().StringVar(&controlURL, "url", "", "Control process base URL (defaults to http.addr from the config)")
		rootCmd.AddCommand(c)
	}
}
