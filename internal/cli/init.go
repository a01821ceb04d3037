package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/klu/travelmanagement/internal/config"
	"github.com/klu/travelmanagement/internal/datasource"
	"github.com/klu/travelmanagement/internal/logger"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize travelmanagement configuration",
	Long:  `Interactive wizard to set up the configuration: datasource, schema mode and HTTP server.`,
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	return initWizard(bufio.NewReader(cmd.InOrStdin()), cmd.OutOrStdout(), configPath())
}

func initWizard(reader *bufio.Reader, out io.Writer, configPath string) error {
	fmt.Fprintln(out, "🚀 Welcome to travelmanagement setup")
	fmt.Fprintln(out, "====================================")
	fmt.Fprintln(out)

	// Check if config already exists
	if config.Exists(configPath) {
		fmt.Fprintf(out, "Configuration file already exists at: %s\n", configPath)
		confirmed, err := promptYesNo(reader, out, "Do you want to overwrite it? (y/N): ")
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Fprintln(out, "Setup cancelled.")
			return nil
		}
	}

	cfg := config.DefaultConfig()

	// Application
	fmt.Fprintln(out, "\n🧳 Application")
	fmt.Fprintln(out, "--------------")

	profile, err := promptOptional(reader, out, fmt.Sprintf("Profile [%s]: ", cfg.Application.Profile), cfg.Application.Profile)
	if err != nil {
		return err
	}
	cfg.Application.Profile = profile

	// Datasource
	fmt.Fprintln(out, "\n📊 Datasource Configuration")
	fmt.Fprintln(out, "---------------------------")

	url, err := promptWithRetry(reader, out, fmt.Sprintf("Datasource URL [%s]: ", cfg.Datasource.URL), func(input string) (string, error) {
		if input == "" {
			return cfg.Datasource.URL, nil
		}
		return validateDatasourceURL(input)
	})
	if err != nil {
		return err
	}
	cfg.Datasource.URL = url

	username, err := promptOptional(reader, out, fmt.Sprintf("Username [%s]: ", cfg.Datasource.Username), cfg.Datasource.Username)
	if err != nil {
		return err
	}
	cfg.Datasource.Username = username

	password, err := promptOptional(reader, out, "Password (optional): ", "")
	if err != nil {
		return err
	}
	cfg.Datasource.Password = password

	mode, err := promptWithRetry(reader, out, fmt.Sprintf("Schema mode (none/validate/update/create/create-drop) [%s]: ", cfg.Schema.Mode), func(input string) (string, error) {
		if input == "" {
			return cfg.Schema.Mode, nil
		}
		return validateSchemaMode(input)
	})
	if err != nil {
		return err
	}
	cfg.Schema.Mode = mode

	// HTTP server
	fmt.Fprintln(out, "\n🌐 HTTP Server")
	fmt.Fprintln(out, "--------------")

	port, err := promptWithRetry(reader, out, fmt.Sprintf("Port [%s]: ", cfg.Server.Port), func(input string) (string, error) {
		if input == "" {
			return cfg.Server.Port, nil
		}
		n, err := validateNumber(input, 1, 65535)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", n), nil
	})
	if err != nil {
		return err
	}
	cfg.Server.Port = port

	disable, err := promptYesNo(reader, out, "Disable the housekeeping scheduler (heartbeat and purge)? (y/N): ")
	if err != nil {
		return err
	}
	cfg.Scheduler.Enabled = !disable

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Test datasource connection
	fmt.Fprintln(out, "\n🔌 Testing datasource connection...")
	ctx := context.Background()
	ds, err := datasource.Open(ctx, cfg.Datasource, logger.New(logger.ERROR, io.Discard))
	if err != nil {
		fmt.Fprintf(out, "❌ Failed to connect to datasource: %v\n", err)
		fmt.Fprintln(out, "\nPlease check your datasource configuration and try again.")
		return err
	}
	ds.Close()

	fmt.Fprintln(out, "✅ Datasource connection successful!")

	// Save configuration
	fmt.Fprintln(out, "\n💾 Saving configuration...")
	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(out, "✅ Configuration saved to: %s\n", configPath)

	// Summary
	fmt.Fprintln(out, "\n📋 Configuration Summary")
	fmt.Fprintln(out, "========================")
	fmt.Fprintf(out, "Datasource: %s\n", cfg.Datasource.URL)
	fmt.Fprintf(out, "Username: %s\n", cfg.Datasource.Username)
	fmt.Fprintf(out, "Password: %s\n", maskPassword(cfg.Datasource.Password))
	fmt.Fprintf(out, "Schema mode: %s\n", cfg.Schema.Mode)
	fmt.Fprintf(out, "Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "🎉 Setup complete!")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. Verify the context starts: travelmanagement check")
	fmt.Fprintln(out, "  2. Start the application: travelmanagement serve")

	return nil
}
