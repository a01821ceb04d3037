// Package apptest boots the full application context for tests.
package apptest

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/klu/travelmanagement/internal/app"
	"github.com/klu/travelmanagement/internal/config"
	"github.com/klu/travelmanagement/internal/logger"
)

// InMemoryProperties returns the in-memory overrides with a database name
// no other test uses.
func InMemoryProperties() map[string]string {
	return config.InMemoryProperties("testdb-" + uuid.New().String())
}

// Config builds a configuration from the defaults, the in-memory overrides
// and then the given overrides, in that order.
func Config(t testing.TB, overrides ...map[string]string) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	require.NoError(t, cfg.ApplyProperties(InMemoryProperties()))
	for _, props := range overrides {
		require.NoError(t, cfg.ApplyProperties(props))
	}
	return cfg
}

// New builds an application from Config without starting it
func New(t testing.TB, overrides ...map[string]string) *app.Application {
	t.Helper()

	a, err := app.New(Config(t, overrides...), Logger(t))
	require.NoError(t, err)
	return a
}

// Start builds and starts an application and closes it when the test ends
func Start(t testing.TB, overrides ...map[string]string) *app.Application {
	t.Helper()

	a := New(t, overrides...)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() {
		if err := a.Close(context.Background()); err != nil {
			t.Errorf("closing application: %v", err)
		}
	})
	return a
}

// Logger returns a logger writing warnings and errors to the test log
func Logger(t testing.TB) *logger.Logger {
	return logger.New(logger.WARNING, testWriter{t})
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
