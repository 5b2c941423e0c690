package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Faultbox/instructmesh/internal/config"
)

var flagConfigOut string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write the effective configuration as YAML",
	Long: `config merges the defaults with the config file and the --backend flag,
then writes the result. Without --out it goes to the user config directory.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().StringVarP(&flagConfigOut, "out", "o", "", "output path")
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	// Read the file directly: loadConfig lowers the log level for CLI use.
	cfg, err := config.LoadFile(flagConfigPath)
	if err != nil {
		return err
	}
	if flagBackendURL != "" {
		cfg.Backend.BaseURL = flagBackendURL
	}

	path := flagConfigOut
	if path == "" {
		path = config.DefaultPath()
	}
	if err := cfg.SaveTo(path); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
	return nil
}
