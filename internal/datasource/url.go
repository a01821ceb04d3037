package datasource

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Mode selects where the database lives
type Mode string

const (
	ModeMemory Mode = "mem"
	ModeFile   Mode = "file"
)

const scheme = "sqlite:"

// URL is a parsed datasource URL.
//
//	sqlite:mem:<name>[;KEY=VALUE]...
//	sqlite:file:<path>[;KEY=VALUE]...
//	sqlite:<path>[;KEY=VALUE]...
type URL struct {
	Mode Mode
	Name string // database name for ModeMemory, file path for ModeFile

	// CloseDelay is how many seconds an in-memory database survives after
	// the datasource is closed. -1 and 0 discard it on close.
	CloseDelay  int
	CloseOnExit bool
	ForeignKeys bool
	BusyTimeout int // milliseconds

	generatedName bool
}

// ParseURL parses a datasource URL. Option keys are case-insensitive and
// unknown keys are rejected. An empty memory name is replaced by a unique one.
func ParseURL(raw string) (*URL, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, scheme) {
		return nil, fmt.Errorf("invalid datasource url %q: must start with %q", raw, scheme)
	}

	parts := strings.Split(strings.TrimPrefix(raw, scheme), ";")
	u := &URL{
		CloseOnExit: true,
		ForeignKeys: true,
		BusyTimeout: 5000,
	}

	location := parts[0]
	switch {
	case strings.HasPrefix(location, "mem:"):
		u.Mode = ModeMemory
		u.Name = strings.TrimPrefix(location, "mem:")
		if u.Name == "" {
			u.Name = "mem-" + uuid.New().String()
			u.generatedName = true
		}
		if strings.ContainsAny(u.Name, "/?#") {
			return nil, fmt.Errorf("invalid in-memory database name %q", u.Name)
		}
	case strings.HasPrefix(location, "file:"):
		u.Mode = ModeFile
		u.Name = strings.TrimPrefix(location, "file:")
	default:
		u.Mode = ModeFile
		u.Name = location
	}
	if u.Mode == ModeFile && u.Name == "" {
		return nil, fmt.Errorf("invalid datasource url %q: missing file path", raw)
	}

	for _, opt := range parts[1:] {
		if strings.TrimSpace(opt) == "" {
			continue
		}
		key, value, ok := strings.Cut(opt, "=")
		if !ok {
			return nil, fmt.Errorf("invalid datasource option %q (expected KEY=VALUE)", opt)
		}
		if err := u.setOption(strings.ToUpper(strings.TrimSpace(key)), strings.TrimSpace(value)); err != nil {
			return nil, err
		}
	}

	return u, nil
}

func (u *URL) setOption(key, value string) error {
	var err error
	switch key {
	case "DB_CLOSE_DELAY":
		u.CloseDelay, err = strconv.Atoi(value)
		if err == nil && u.CloseDelay < -1 {
			err = fmt.Errorf("must be -1 or greater")
		}
	case "DB_CLOSE_ON_EXIT":
		u.CloseOnExit, err = strconv.ParseBool(value)
	case "FOREIGN_KEYS":
		u.ForeignKeys, err = strconv.ParseBool(value)
	case "BUSY_TIMEOUT":
		u.BusyTimeout, err = strconv.Atoi(value)
		if err == nil && u.BusyTimeout < 0 {
			err = fmt.Errorf("must not be negative")
		}
	default:
		return fmt.Errorf("unknown datasource option: %s", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value %q for %s: %w", value, key, err)
	}
	return nil
}

// InMemory reports whether the database lives only in process memory
func (u *URL) InMemory() bool {
	return u.Mode == ModeMemory
}

// ResolvePath expands ~ and relative paths of a file database
func (u *URL) ResolvePath() (string, error) {
	if u.Mode != ModeFile {
		return "", fmt.Errorf("in-memory database has no path")
	}

	dbPath := u.Name
	if strings.HasPrefix(dbPath, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, dbPath[1:])
	} else if !filepath.IsAbs(dbPath) {
		absPath, err := filepath.Abs(dbPath)
		if err != nil {
			return "", fmt.Errorf("failed to resolve absolute path: %w", err)
		}
		dbPath = absPath
	}
	return dbPath, nil
}

// DSN returns the go-sqlite3 data source name
func (u *URL) DSN() (string, error) {
	params := url.Values{}
	params.Set("_foreign_keys", strconv.FormatBool(u.ForeignKeys))
	params.Set("_busy_timeout", strconv.Itoa(u.BusyTimeout))

	if u.InMemory() {
		params.Set("mode", "memory")
		params.Set("cache", "shared")
		return "file:" + u.Name + "?" + params.Encode(), nil
	}

	dbPath, err := u.ResolvePath()
	if err != nil {
		return "", err
	}
	return "file:" + dbPath + "?" + params.Encode(), nil
}

// String renders the URL back in datasource syntax
func (u *URL) String() string {
	name := u.Name
	if u.generatedName {
		name = ""
	}
	return fmt.Sprintf("%s%s:%s;DB_CLOSE_DELAY=%d;DB_CLOSE_ON_EXIT=%s",
		scheme, u.Mode, name, u.CloseDelay, strings.ToUpper(strconv.FormatBool(u.CloseOnExit)))
}
