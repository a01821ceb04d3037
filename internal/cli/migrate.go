package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/klu/travelmanagement/internal/db"
	"github.com/klu/travelmanagement/internal/logger"
)

var migrateDownSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database migrations",
	Long:  `Apply or roll back the embedded schema migrations on the configured datasource.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Run all pending migrations",
	Long:  `Apply all pending database migrations.`,
	RunE:  runMigrateUp,
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	Long:  `Roll back the given number of migrations, or all of them with --steps 0.`,
	RunE:  runMigrateDown,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	Long:  `Show the current migration version and whether it is dirty.`,
	RunE:  runMigrateStatus,
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateDownSteps, "steps", 1, "number of migrations to roll back (0 for all)")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

// withSchema opens the datasource and runs fn with a schema manager on it
func withSchema(fn func(ctx context.Context, schema *db.SchemaManager) error) error {
	ctx := context.Background()
	ds, err := openDatasource(ctx)
	if err != nil {
		return err
	}
	defer ds.Close()

	schema, err := db.NewSchemaManager(ds.DB(), cfg.Schema.Mode, logger.GetLogger().Named("schema"))
	if err != nil {
		return err
	}
	return fn(ctx, schema)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "🔄 Running database migrations...")

	return withSchema(func(ctx context.Context, schema *db.SchemaManager) error {
		if err := schema.Up(ctx); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		version, _, err := schema.Version()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s✅ Migrations completed successfully (version %d)%s\n", SuccessStyle, version, Reset)
		return nil
	})
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	if migrateDownSteps < 0 {
		return fmt.Errorf("--steps must not be negative")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "🔄 Rolling back database migrations...")

	return withSchema(func(ctx context.Context, schema *db.SchemaManager) error {
		var err error
		if migrateDownSteps == 0 {
			err = schema.Down(ctx)
		} else {
			err = schema.Steps(ctx, -migrateDownSteps)
		}
		if err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		version, _, err := schema.Version()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s✅ Rollback completed (version %d)%s\n", SuccessStyle, version, Reset)
		return nil
	})
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	return withSchema(func(ctx context.Context, schema *db.SchemaManager) error {
		version, dirty, err := schema.Version()
		if err != nil {
			return fmt.Errorf("failed to get migration status: %w", err)
		}
		latest, err := db.Latest()
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "%s📊 Migration Status%s\n", HeaderStyle, Reset)
		fmt.Fprintf(out, "%s===================%s\n", DimStyle, Reset)
		fmt.Fprintln(out, FormatLabelValue("Datasource:", cfg.Datasource.URL))
		fmt.Fprintln(out, FormatLabelValue("Schema mode:", schema.Mode()))
		fmt.Fprintln(out, FormatLabelValue("Current version:", fmt.Sprintf("%d", version)))
		fmt.Fprintln(out, FormatLabelValue("Latest version:", fmt.Sprintf("%d", latest)))

		switch {
		case dirty:
			fmt.Fprintf(out, "%s⚠️  Version %d is dirty; fix the schema and force a version%s\n", WarningStyle, version, Reset)
		case version < latest:
			fmt.Fprintf(out, "%s%d pending migration(s)%s\n", WarningStyle, latest-version, Reset)
		default:
			fmt.Fprintf(out, "%s✅ Up to date%s\n", SuccessStyle, Reset)
		}
		return nil
	})
}
