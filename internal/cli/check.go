package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/klu/travelmanagement/internal/app"
	"github.com/klu/travelmanagement/internal/config"
	"github.com/klu/travelmanagement/internal/logger"
	"github.com/klu/travelmanagement/internal/models"
)

var checkInMemory bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that the application context starts",
	Long: `Start the full application context, report the health of every component
and close it again. The command fails if any component cannot be initialized.

With --in-memory the datasource is replaced by a private in-memory database
whose schema is created at startup and dropped at shutdown; --set flags are
applied on top of it.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkInMemory, "in-memory", false, "run against a throwaway in-memory database")
}

func runCheck(cmd *cobra.Command, args []string) error {
	if checkInMemory {
		if err := cfg.ApplyProperties(config.InMemoryProperties("")); err != nil {
			return err
		}
		// --set still wins over the in-memory defaults
		if err := cfg.ApplyProperties(overrides); err != nil {
			return err
		}
	}

	application, err := app.New(cfg, logger.GetLogger())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	ctx := context.Background()
	fmt.Fprintf(out, "%s🔍 Checking %s%s\n", HeaderStyle, cfg.Application.Name, Reset)
	fmt.Fprintln(out, FormatLabelValue("Datasource:", application.URL().String()))
	fmt.Fprintln(out, FormatLabelValue("Schema mode:", cfg.Schema.Mode))
	fmt.Fprintln(out)

	start := time.Now()
	if err := application.Start(ctx); err != nil {
		fmt.Fprintf(out, "%s❌ Context failed to start%s\n", ErrorStyle, Reset)
		return err
	}
	elapsed := time.Since(start)

	report := application.Status().Health(ctx)
	names := make([]string, 0, len(report.Components))
	for name := range report.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		component := report.Components[name]
		style := SuccessStyle
		if component.Status != models.StatusUp {
			style = ErrorStyle
		}
		fmt.Fprintf(out, "  %s%-12s%s %s%s%s %s\n", LabelStyle, name, Reset, style, component.Status, Reset, FormatDim(component.Detail))
	}

	closeErr := application.Close(ctx)

	if report.Status != models.StatusUp {
		fmt.Fprintf(out, "\n%s❌ Context started but is unhealthy%s\n", ErrorStyle, Reset)
		return fmt.Errorf("health check failed")
	}
	if closeErr != nil {
		fmt.Fprintf(out, "\n%s❌ Context failed to close%s\n", ErrorStyle, Reset)
		return closeErr
	}

	fmt.Fprintf(out, "\n%s✅ Context loaded in %s%s\n", SuccessStyle, formatDuration(elapsed), Reset)
	return nil
}
