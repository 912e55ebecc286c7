// Package debug provides leveled diagnostic logging to stderr with an
// optional rotating file mirror.
//
// Logging here is a side effect only; callers still return errors.
// Output is off by default and gated by TEMPLEDB_LOG_LEVEL (error,
// warn, info, debug) or the legacy TEMPLEDB_DEBUG toggle. Setting
// TEMPLEDB_LOG_FILE=true mirrors every line into a size-rotated log
// under the user cache directory.
package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level orders log severities.
type Level int

// Log levels, most severe first.
const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

var (
	mu       sync.Mutex
	level    = levelFromEnv()
	quiet    bool
	mirror   io.WriteCloser
	mirrorOn = os.Getenv("TEMPLEDB_LOG_FILE") == "true" || os.Getenv("TEMPLEDB_LOG_FILE") == "1"
)

func levelFromEnv() Level {
	if os.Getenv("TEMPLEDB_DEBUG") != "" {
		return LevelDebug
	}
	switch strings.ToLower(os.Getenv("TEMPLEDB_LOG_LEVEL")) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	}
	return LevelError
}

// SetLevel overrides the environment-derived log level.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// SetVerbose raises the level to debug; used by CLI -v flags.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(LevelDebug)
	}
}

// SetQuiet suppresses non-essential stdout output.
func SetQuiet(q bool) {
	mu.Lock()
	defer mu.Unlock()
	quiet = q
}

// IsQuiet reports whether quiet mode is on.
func IsQuiet() bool {
	mu.Lock()
	defer mu.Unlock()
	return quiet
}

// Enabled reports whether debug-level output is emitted.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return level >= LevelDebug
}

// Logf writes a debug-level line.
func Logf(format string, args ...interface{}) { logAt(LevelDebug, format, args...) }

// Infof writes an info-level line.
func Infof(format string, args ...interface{}) { logAt(LevelInfo, format, args...) }

// Warnf writes a warn-level line.
func Warnf(format string, args ...interface{}) { logAt(LevelWarn, format, args...) }

// Errorf writes an error-level line. This never replaces returning the
// error to the caller.
func Errorf(format string, args ...interface{}) { logAt(LevelError, format, args...) }

func logAt(l Level, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if l > level {
		return
	}
	line := fmt.Sprintf("%s %s templedb: %s\n",
		time.Now().UTC().Format(time.RFC3339), tag(l), fmt.Sprintf(format, args...))
	fmt.Fprint(os.Stderr, line)
	if w := fileMirror(); w != nil {
		_, _ = io.WriteString(w, line)
	}
}

func tag(l Level) string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// PrintNormal prints informational output unless quiet mode is on.
func PrintNormal(format string, args ...interface{}) {
	if !IsQuiet() {
		fmt.Printf(format, args...)
	}
}

// fileMirror lazily opens the rotating log file. Callers hold mu.
func fileMirror() io.Writer {
	if !mirrorOn {
		return nil
	}
	if mirror == nil {
		dir, err := os.UserCacheDir()
		if err != nil {
			mirrorOn = false
			return nil
		}
		mirror = &lumberjack.Logger{
			Filename:   filepath.Join(dir, "templedb", "templedb.log"),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
		}
	}
	return mirror
}

// CloseMirror flushes and closes the file mirror, if open.
func CloseMirror() error {
	mu.Lock()
	defer mu.Unlock()
	if mirror == nil {
		return nil
	}
	err := mirror.Close()
	mirror = nil
	return err
}
