package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klu/travelmanagement/internal/app"
	"github.com/klu/travelmanagement/internal/apptest"
	"github.com/klu/travelmanagement/internal/config"
)

// execute runs the root command with fresh flag values and returns its output
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("TRAVEL_CONFIG_PATH", filepath.Join(t.TempDir(), "config.yaml"))

	cfgFile, properties, logLevel = "", nil, ""
	checkInMemory = false
	migrateDownSteps = 1
	statusLimit, statusActive = 10, false
	serveHost, servePort = "", ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCheckInMemory(t *testing.T) {
	out, err := execute(t, "check", "--in-memory", "--log-level", "ERROR")
	require.NoError(t, err, out)

	assert.Contains(t, out, "sqlite:mem:testdb;DB_CLOSE_DELAY=-1;DB_CLOSE_ON_EXIT=FALSE")
	assert.Contains(t, out, "create-drop")
	assert.Contains(t, out, "datasource")
	assert.Contains(t, out, "Context loaded")
}

func TestCheckInMemorySetWins(t *testing.T) {
	out, err := execute(t, "check", "--in-memory", "--set", "schema.mode=validate", "--log-level", "ERROR")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize schema")
	assert.Contains(t, out, "Context failed to start")
}

func TestUnknownPropertyFails(t *testing.T) {
	_, err := execute(t, "check", "--in-memory", "--set", "datasource.dialect=h2")
	assert.ErrorContains(t, err, "unknown property")

	_, err = execute(t, "check", "--set", "no-equals-sign")
	assert.ErrorContains(t, err, "expected key=value")
}

func TestMissingConfigFlagFails(t *testing.T) {
	_, err := execute(t, "status", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "configuration file not found")
}

func TestMigrateCheckAndStatusOnFile(t *testing.T) {
	url := "datasource.url=sqlite:file:" + filepath.Join(t.TempDir(), "travel.db")

	out, err := execute(t, "migrate", "status", "--set", url)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Current version:")
	assert.Contains(t, out, "2 pending migration(s)")

	out, err = execute(t, "migrate", "up", "--set", url)
	require.NoError(t, err, out)
	assert.Contains(t, out, "version 2")

	out, err = execute(t, "status", "--set", url)
	require.NoError(t, err, out)
	assert.Contains(t, out, "No instances recorded yet")

	out, err = execute(t, "check", "--set", url, "--set", "scheduler.enabled=false", "--log-level", "ERROR")
	require.NoError(t, err, out)

	out, err = execute(t, "status", "--set", url)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Instance History")
	assert.Contains(t, out, "stopped after")

	out, err = execute(t, "status", "--active", "--set", url)
	require.NoError(t, err, out)
	assert.Contains(t, out, "No instances recorded yet")

	out, err = execute(t, "migrate", "down", "--steps", "0", "--set", url)
	require.NoError(t, err, out)
	assert.Contains(t, out, "version 0")
}

func TestEnvironmentOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.db")
	t.Setenv("TRAVEL_DATASOURCE_URL", "sqlite:file:"+path)

	out, err := execute(t, "migrate", "up")
	require.NoError(t, err, out)
	assert.FileExists(t, path)
}

func TestServeHonoursCloseOnExit(t *testing.T) {
	tests := []struct {
		closeOnExit string
		closed      bool
		message     string
	}{
		{"TRUE", true, "Shutting down"},
		{"FALSE", false, "DB_CLOSE_ON_EXIT=FALSE leaves the datasource untouched"},
	}

	for _, tt := range tests {
		t.Run(tt.closeOnExit, func(t *testing.T) {
			cfg = apptest.Config(t, map[string]string{
				"datasource.url":    "sqlite:mem:serve-" + uuid.New().String() + ";DB_CLOSE_DELAY=-1;DB_CLOSE_ON_EXIT=" + tt.closeOnExit,
				"server.host":       "127.0.0.1",
				"server.port":       "0",
				"scheduler.enabled": "false",
			})
			application, err := app.New(cfg, apptest.Logger(t))
			require.NoError(t, err)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var out bytes.Buffer
			done := make(chan error, 1)
			go func() { done <- serve(ctx, &out, application) }()

			require.Eventually(t, application.Started, 5*time.Second, 10*time.Millisecond)
			cancel()

			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(10 * time.Second):
				t.Fatal("serve did not return")
			}

			assert.Contains(t, out.String(), tt.message)
			assert.Equal(t, tt.closed, application.DataSource().Closed())
			assert.Equal(t, !tt.closed, application.Started())
			require.NoError(t, application.Close(context.Background()))
		})
	}
}

func TestInitWizard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	input := strings.Join([]string{
		"ci",                    // profile
		"sqlite:mem:wizard",     // datasource url
		"",                      // username keeps sa
		"correct-horse-battery", // password
		"bogus",                 // rejected schema mode
		"create-drop",           // schema mode
		"",                      // port keeps 8080
		"y",                     // disable scheduler
	}, "\n") + "\n"

	var out bytes.Buffer
	require.NoError(t, initWizard(bufio.NewReader(strings.NewReader(input)), &out, path))
	assert.Contains(t, out.String(), "invalid schema mode: bogus")
	assert.Contains(t, out.String(), "Password: ***\n")
	assert.NotContains(t, out.String(), "corr")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ci", cfg.Application.Profile)
	assert.Equal(t, "sqlite:mem:wizard", cfg.Datasource.URL)
	assert.Equal(t, "sa", cfg.Datasource.Username)
	assert.Equal(t, "correct-horse-battery", cfg.Datasource.Password)
	assert.Equal(t, config.SchemaCreateDrop, cfg.Schema.Mode)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.False(t, cfg.Scheduler.Enabled)

	// existing file, declined overwrite
	out.Reset()
	require.NoError(t, initWizard(bufio.NewReader(strings.NewReader("n\n")), &out, path))
	assert.Contains(t, out.String(), "Setup cancelled.")
}

func TestInitWizardStopsAtEndOfInput(t *testing.T) {
	var out bytes.Buffer
	err := initWizard(bufio.NewReader(strings.NewReader("ci\nnot-a-url")), &out, filepath.Join(t.TempDir(), "config.yaml"))
	assert.ErrorContains(t, err, "input ended")
}

func TestPromptStopsOnReadError(t *testing.T) {
	var out bytes.Buffer
	broken := errors.New("terminal gone")
	reader := bufio.NewReader(iotest.ErrReader(broken))

	_, err := promptWithRetry(reader, &out, "Datasource URL: ", validateDatasourceURL)
	assert.ErrorIs(t, err, broken)
	assert.ErrorContains(t, err, "failed to read input")
	assert.Equal(t, 1, strings.Count(out.String(), "Datasource URL: "))
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "1.5s", formatDuration(1500*time.Millisecond))
	assert.Equal(t, "2.0m", formatDuration(2*time.Minute))
	assert.Equal(t, "3.0h", formatDuration(3*time.Hour))

	assert.Equal(t, "0f8fad5b", shortID("0f8fad5b-d9cb-469f-a165-70867728950e"))
	assert.Equal(t, "abc", shortID("abc"))

	assert.Equal(t, "(empty)", maskPassword(""))
	assert.Equal(t, "***", maskPassword("secret"))
	assert.Equal(t, "***", maskPassword("superlongpassword"))
}

func TestValidateInput(t *testing.T) {
	mode, err := validateSchemaMode(" Create-Drop ")
	require.NoError(t, err)
	assert.Equal(t, config.SchemaCreateDrop, mode)

	_, err = validateSchemaMode("drop-create")
	assert.Error(t, err)

	_, err = validateDatasourceURL("jdbc:h2:mem:testdb")
	assert.Error(t, err)

	n, err := validateNumber("", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = validateNumber("11", 1, 10)
	assert.Error(t, err)
}
