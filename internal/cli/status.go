package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/klu/travelmanagement/internal/db/sqlite"
	"github.com/klu/travelmanagement/internal/shared"
)

var (
	statusLimit  int
	statusActive bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View the instance history",
	Long: `List the recorded starts of the application context, newest first, with
their heartbeat and stop times. Reads the store without changing the schema.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "l", 10, "Limit number of results")
	statusCmd.Flags().BoolVarP(&statusActive, "active", "a", false, "Only show instances that have not stopped")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	ds, err := openDatasource(ctx)
	if err != nil {
		return err
	}
	defer ds.Close()

	store := sqlite.New(ds)

	filter := shared.InstanceFilter{Limit: statusLimit}
	if statusActive {
		filter.Active = shared.BoolPtr(true)
	}

	instances, err := store.ListInstances(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list instances: %w", err)
	}
	total, err := store.CountInstances(ctx, filter.Active)
	if err != nil {
		return fmt.Errorf("failed to count instances: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(instances) == 0 {
		fmt.Fprintf(out, "%sNo instances recorded yet. Run 'travelmanagement serve' first!%s\n", WarningStyle, Reset)
		return nil
	}

	fmt.Fprintf(out, "%s📊 Instance History%s\n", HeaderStyle, Reset)
	fmt.Fprintf(out, "%s===================%s\n", DimStyle, Reset)
	fmt.Fprintln(out, FormatCountLabel("Showing", len(instances))+FormatMeta(fmt.Sprintf(" of %d", total)))
	fmt.Fprintln(out)

	now := time.Now()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%sID\tPROFILE\tHOST\tPID\tSCHEMA\tSTARTED\tSTATE%s\n", LabelStyle, Reset)
	fmt.Fprintf(w, "%s──\t───────\t────\t───\t──────\t───────\t─────%s\n", DimStyle, Reset)

	for _, instance := range instances {
		state := FormatSuccess("running")
		switch {
		case instance.StoppedAt != nil:
			state = FormatMeta("stopped after " + formatDuration(instance.StoppedAt.Sub(instance.StartedAt)))
		case instance.LastHeartbeat != nil:
			state = FormatSuccess("running") + FormatMeta(" (beat "+formatDuration(now.Sub(*instance.LastHeartbeat))+" ago)")
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			FormatValue(shortID(instance.ID)),
			instance.Profile,
			instance.Hostname,
			instance.PID,
			instance.SchemaMode,
			instance.StartedAt.Local().Format("2006-01-02 15:04:05"),
			state,
		)
	}

	return w.Flush()
}
