// Package config resolves templedb settings from environment
// variables and an optional config file.
//
// Precedence: explicit Set > environment > config file > default.
// Environment variables carry the TEMPLEDB_ prefix with dashes mapped
// to underscores, so the key "log-level" binds TEMPLEDB_LOG_LEVEL.
// The config file is <user config dir>/templedb/config.yaml and is
// optional; a missing file is not an error.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for all templedb environment variables.
const EnvPrefix = "TEMPLEDB"

// Config keys. These are the viper/yaml names; the matching env vars
// are TEMPLEDB_DB, TEMPLEDB_LOG_LEVEL, TEMPLEDB_LOG_FILE,
// TEMPLEDB_AUTHOR and TEMPLEDB_DEFAULT_BRANCH.
const (
	KeyDB            = "db"
	KeyLogLevel      = "log-level"
	KeyLogFile       = "log-file"
	KeyAuthor        = "author"
	KeyDefaultBranch = "default-branch"
)

var (
	mu sync.Mutex
	v  *viper.Viper
)

// load builds the viper instance on first use.
func load() *viper.Viper {
	mu.Lock()
	defer mu.Unlock()
	if v != nil {
		return v
	}

	nv := viper.New()
	nv.SetEnvPrefix(EnvPrefix)
	nv.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	nv.AutomaticEnv()

	nv.SetDefault(KeyLogLevel, "error")
	nv.SetDefault(KeyLogFile, false)
	nv.SetDefault(KeyDefaultBranch, "main")

	if dir, err := os.UserConfigDir(); err == nil {
		nv.SetConfigName("config")
		nv.SetConfigType("yaml")
		nv.AddConfigPath(filepath.Join(dir, "templedb"))
		var notFound viper.ConfigFileNotFoundError
		if err := nv.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			// A present but unparseable file should not take the
			// whole tool down; env vars and defaults still apply.
			fmt.Fprintf(os.Stderr, "templedb: ignoring bad config file: %v\n", err)
		}
	}

	v = nv
	return v
}

// DBPath returns the database file path. TEMPLEDB_DB or the "db" key
// override the default of <home>/.templedb/templedb.db.
func DBPath() string {
	if path := load().GetString(KeyDB); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "templedb.db"
	}
	return filepath.Join(home, ".templedb", "templedb.db")
}

// LogLevel returns the configured log level name (error, warn, info,
// debug).
func LogLevel() string {
	return load().GetString(KeyLogLevel)
}

// LogFileEnabled reports whether the rotating log file mirror is on.
func LogFileEnabled() bool {
	return load().GetBool(KeyLogFile)
}

// Author returns the default commit author: the "author" key, else the
// OS username.
func Author() string {
	if author := load().GetString(KeyAuthor); author != "" {
		return author
	}
	return os.Getenv("USER")
}

// DefaultBranch returns the branch name new projects start with.
func DefaultBranch() string {
	return load().GetString(KeyDefaultBranch)
}

// GetString reads an arbitrary key through the resolved config.
func GetString(key string) string {
	return load().GetString(key)
}

// Set overrides a key in-process. It wins over env and file values.
func Set(key string, value any) {
	load().Set(key, value)
}

// Reset drops the cached viper instance so the next read re-resolves
// env vars and the config file. Tests use this around t.Setenv.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	v = nil
}
