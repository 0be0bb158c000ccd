package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Ebop14/outreach-bot/pkg/config"
)

var version = "dev"

const defaultConfigPath = "outreach.yaml"

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:     "outreach",
		Short:   "Generate personalized cold-outreach emails from a prospect CSV",
		Version: version,
	}

	root.AddCommand(
		newRunCmd(),
		newDryRunCmd(),
		newStatusCmd(),
		newCacheCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file. A missing file at the default path is
// not an error: built-in defaults apply, with the API key taken from the
// environment.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || path != defaultConfigPath {
			return nil, err
		}
		cfg = config.Default()
	}
	if cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = os.Getenv("XAI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
