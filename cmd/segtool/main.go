// Command segtool drives the segmentation backend without a window: it
// loads a model, sends click prompts and reports or exports the result.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Faultbox/instructmesh/internal/config"
	"github.com/Faultbox/instructmesh/internal/logger"
	"github.com/Faultbox/instructmesh/internal/network"
)

var (
	flagConfigPath string
	flagBackendURL string
	flagVerbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "segtool",
	Short: "Headless client for the InstructMesh segmentation backend",
	Long: `segtool talks to the same backend as the InstructMesh viewer. It can
check the backend, pick points on a model, run point-prompt segmentation and
export the painted mesh as GLB.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// Logs go to stderr so stdout carries only command output.
		opts := logger.Options{Level: cfg.Logging.Level, Console: cmd.ErrOrStderr()}
		if cfg.Logging.LogFile != "" {
			opts.File = logger.DefaultFileConfig(cfg.Logging.LogFile)
		}
		return logger.InitWithOptions(opts)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&flagBackendURL, "backend", "", "backend base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
}

// loadConfig reads the config file and applies the persistent flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(flagConfigPath)
	if err != nil {
		return nil, err
	}
	if flagBackendURL != "" {
		cfg.Backend.BaseURL = flagBackendURL
	}
	if flagVerbose {
		cfg.Logging.Level = "debug"
	} else if cfg.Logging.Level == "info" {
		cfg.Logging.Level = "warn"
	}
	return cfg, nil
}

func newClient(cfg *config.Config) *network.Client {
	return network.New(network.Config{
		BaseURL:         cfg.Backend.BaseURL,
		RequestTimeout:  cfg.Backend.RequestTimeout,
		GenerateTimeout: cfg.Backend.GenerateTimeout,
	})
}

func main() {
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
