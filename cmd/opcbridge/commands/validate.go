package commands

import (
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration without connecting anywhere",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		success("config %s looks good (store=%s, mode=%s)", configPath, cfg.Store.Kind, cfg.Supervisor.Mode)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
