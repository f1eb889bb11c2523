// Package envconfig reads chainmlp settings from the environment.
package envconfig

import (
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// LogLevel returns the log level.
// Configurable via CHAINMLP_DEBUG: 0/false = INFO (default), 1/true = DEBUG,
// other integers n map to slog.Level(-4n).
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("CHAINMLP_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Seed returns the RNG seed for weight initialization and dropout.
// Configurable via CHAINMLP_SEED. 0 (default) means time-based.
var Seed = Uint64("CHAINMLP_SEED", 0)

// NumThreads returns the number of CPU backend workers.
// Configurable via CHAINMLP_NUM_THREADS. Default: runtime.NumCPU().
func NumThreads() int {
	n := Uint("CHAINMLP_NUM_THREADS", 0)()
	if n == 0 {
		return runtime.NumCPU()
	}
	return int(n)
}

// Uint returns a getter for an unsigned integer variable with a default.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Uint64 returns a getter for a uint64 variable with a default.
func Uint64(key string, defaultValue uint64) func() uint64 {
	return func() uint64 {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return n
			}
		}
		return defaultValue
	}
}

// EnvVar describes an environment variable and its current value.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every recognized variable keyed by name.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"CHAINMLP_DEBUG":       {"CHAINMLP_DEBUG", LogLevel(), "Show additional debug information (e.g. CHAINMLP_DEBUG=1)"},
		"CHAINMLP_SEED":        {"CHAINMLP_SEED", Seed(), "Seed for weight initialization and dropout (default: time-based)"},
		"CHAINMLP_NUM_THREADS": {"CHAINMLP_NUM_THREADS", NumThreads(), "Number of CPU workers for matrix multiplication (default: all cores)"},
	}
}

// Var returns an environment variable stripped of surrounding whitespace
// and quotes.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
