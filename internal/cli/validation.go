package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/klu/travelmanagement/internal/config"
	"github.com/klu/travelmanagement/internal/datasource"
)

// validateSchemaMode validates schema mode input
func validateSchemaMode(input string) (string, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	if !config.IsSchemaMode(input) {
		return "", fmt.Errorf("invalid schema mode: %s (must be none, validate, update, create or create-drop)", input)
	}
	return input, nil
}

// validateDatasourceURL validates datasource URL input
func validateDatasourceURL(input string) (string, error) {
	input = strings.TrimSpace(input)
	if _, err := datasource.ParseURL(input); err != nil {
		return "", err
	}
	return input, nil
}

// validateNumber validates numeric input within a range
func validateNumber(input string, min, max int) (int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return min, nil
	}

	num, err := strconv.Atoi(input)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s (enter a positive integer)", input)
	}

	if num < min || num > max {
		return 0, fmt.Errorf("number must be between %d and %d, got: %d", min, max, num)
	}

	return num, nil
}

// maskPassword hides a password completely, only telling whether one is set
func maskPassword(password string) string {
	if password == "" {
		return "(empty)"
	}
	return "***"
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}

// shortID returns the first block of a UUID
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
