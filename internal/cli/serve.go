package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/klu/travelmanagement/internal/app"
	"github.com/klu/travelmanagement/internal/logger"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the application and its HTTP API",
	Long: `Start the full application context and serve the operational API until
interrupted:

  GET /api/v1/health           - Component health (503 when a component is down)
  GET /api/v1/info             - Runtime status of this instance
  GET /api/v1/instances        - Instance history (?active=true|false, ?page, ?limit)
  GET /api/v1/instances/:id    - One instance with its recent lifecycle events

On SIGINT or SIGTERM the context is closed, unless the datasource URL sets
DB_CLOSE_ON_EXIT=FALSE, in which case the schema and store are left as they are.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveHost, "host", "H", "", "Host to bind the API server to (overrides config)")
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Port to run the API server on (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != "" {
		cfg.Server.Port = servePort
	}

	application, err := app.New(cfg, logger.GetLogger())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cmd.OutOrStdout(), application)
}

// serve starts the application, serves until ctx is done and then closes
// it unless the datasource URL says DB_CLOSE_ON_EXIT=FALSE.
func serve(ctx context.Context, out io.Writer, application *app.Application) error {
	fmt.Fprintf(out, "%s🚀 Starting %s%s\n", HeaderStyle, cfg.Application.Name, Reset)
	fmt.Fprintf(out, "%s===========================%s\n", DimStyle, Reset)
	fmt.Fprintln(out, FormatLabelValue("Profile:", cfg.Application.Profile))
	fmt.Fprintln(out, FormatLabelValue("Datasource:", application.URL().String()))
	fmt.Fprintln(out, FormatLabelValue("Schema mode:", cfg.Schema.Mode))
	fmt.Fprintln(out, FormatLabelValue("URL:", fmt.Sprintf("http://%s:%s/api/v1", cfg.Server.Host, cfg.Server.Port)))
	fmt.Fprintln(out)

	if err := application.Start(ctx); err != nil {
		return err
	}

	serveErr := application.Serve(ctx)

	if serveErr == nil && !application.URL().CloseOnExit {
		fmt.Fprintf(out, "\n%s🛑 Stopped; DB_CLOSE_ON_EXIT=FALSE leaves the datasource untouched%s\n", WarningStyle, Reset)
		return nil
	}

	fmt.Fprintf(out, "\n%s🛑 Shutting down...%s\n", InfoStyle, Reset)
	if err := application.Close(context.Background()); err != nil {
		if serveErr != nil {
			return fmt.Errorf("%w (close: %v)", serveErr, err)
		}
		return err
	}
	return serveErr
}
