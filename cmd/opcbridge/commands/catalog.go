package commands

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ghalamif/opcbridge/pkg/opcbridge"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Browse the OPC UA server and rewrite the node catalog",
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

		n, err := rt.ExportCatalog(ctx)
		if err != nil {
			return failure("Catalog export failed", err.Error(), catalogHints(cfg))
		}
		success("%d nodes written to %s", n, cfg.Files.Catalog)
		return nil
	},
}

func catalogHints(cfg *opcbridge.Config) []string {
	return []string{
		"Check that " + cfg.OPCUA.Endpoint + " is reachable",
		fmt.Sprintf("Check opcua.namespace (currently %d) and opcua.root_node_id in %s", cfg.OPCUA.Namespace, configPath),
	}
}

var showAvailable bool

var selectionCmd = &cobra.Command{
	Use:   "selection",
	Short: "Inspect the monitored nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var selectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the monitored nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rt, err := opcbridge.New(cfg)
		if err != nil {
			return err
		}
		var entries []opcbridge.SelectionEntry
		if showAvailable {
			entries, err = rt.Available()
		} else {
			entries, err = rt.Selection()
		}
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			warning("no nodes")
			return nil
		}
		return renderEntries(entries)
	},
}

var selectionAddCmd = &cobra.Command{
	Use:   "add <node_id> [description]",
	Short: "Make a node selectable that the catalog does not list",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rt, err := opcbridge.New(cfg)
		if err != nil {
			return err
		}
		e := opcbridge.SelectionEntry{NodeID: opcbridge.NodeID(args[0])}
		if len(args) == 2 {
			e.Description = args[1]
		}
		if err := rt.AddNode(e); err != nil {
			return failure("Could not add node", err.Error(), nil)
		}
		success("%s added to %s", e.NodeID, cfg.Files.Manual)
		return nil
	},
}

func renderEntries(entries []opcbridge.SelectionEntry) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Node ID", "Browse Name", "Description")
	for _, e := range entries {
		if err := table.Append(string(e.NodeID), e.BrowseName, e.Description); err != nil {
			return err
		}
	}
	return table.Render()
}

func init() {
	selectionListCmd.Flags().BoolVar(&showAvailable, "available", false, "List every selectable variable from the catalog instead")
	selectionCmd.AddCommand(selectionListCmd, selectionAddCmd)
	rootCmd.AddCommand(catalogCmd, selectionCmd)
}
