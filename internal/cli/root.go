package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/klu/travelmanagement/internal/config"
	"github.com/klu/travelmanagement/internal/datasource"
	"github.com/klu/travelmanagement/internal/logger"
)

var (
	cfgFile    string
	properties []string
	logLevel   string

	cfg       *config.Config
	overrides map[string]string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "travelmanagement",
	Short: "Travel management application context",
	Long: `travelmanagement assembles the application context: datasource, schema,
lifecycle store, housekeeping scheduler and operational HTTP API.

Configuration is read from the config file, then TRAVEL_* environment
variables, then --set key=value flags, later sources winning.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip loading for the init command itself
		if cmd.Name() == "init" {
			return nil
		}
		return loadConfig(cmd)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.travelmanagement/config.yaml)")
	rootCmd.PersistentFlags().StringArrayVar(&properties, "set", nil, "override a property, e.g. --set schema.mode=create-drop (repeatable)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: DEBUG, INFO, WARNING or ERROR (overrides config)")

	// Disable completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Add subcommands
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statusCmd)
}

// configPath resolves the config file: --config, then TRAVEL_CONFIG_PATH, then the default
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.GetConfigPath()
}

// loadConfig builds the configuration from file, environment and --set flags
// and initializes the global logger from it.
func loadConfig(cmd *cobra.Command) error {
	path := configPath()

	var err error
	if config.Exists(path) {
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	} else {
		if cfgFile != "" {
			return fmt.Errorf("configuration file not found at %s. Run 'travelmanagement init' to create one", path)
		}
		cfg = config.DefaultConfig()
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return fmt.Errorf("invalid environment override: %w", err)
	}

	overrides, err = config.ParseProperties(properties)
	if err != nil {
		return err
	}
	if err := cfg.ApplyProperties(overrides); err != nil {
		return err
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger.Init(logger.ParseLogLevel(level), cmd.ErrOrStderr())
	logger.Debug("Configuration loaded (file %s, %d overrides)", path, len(overrides))

	return nil
}

// openDatasource opens the configured datasource without touching the schema
func openDatasource(ctx context.Context) (*datasource.DataSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	ds, err := datasource.Open(ctx, cfg.Datasource, logger.GetLogger().Named("datasource"))
	if err != nil {
		return nil, fmt.Errorf("failed to open datasource: %w", err)
	}
	return ds, nil
}
