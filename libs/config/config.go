// Package config reads service settings from the environment, optionally
// layered over a dotenv or yaml file named by CONFIG_FILE.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	once sync.Once
	v    *viper.Viper
)

func store() *viper.Viper {
	once.Do(func() {
		v = viper.New()
		v.AutomaticEnv()
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		if file := v.GetString("CONFIG_FILE"); file != "" {
			v.SetConfigFile(file)
			// A missing file is not fatal; the environment still applies.
			_ = v.ReadInConfig()
		}
	})
	return v
}

// Set overrides a key for the lifetime of the process. Used by tests and CLI flags.
func Set(key string, value any) {
	store().Set(key, value)
}

func String(key, fallback string) string {
	s := strings.TrimSpace(store().GetString(key))
	if s == "" {
		return fallback
	}
	return s
}

func RequiredString(key string) (string, error) {
	s := String(key, "")
	if s == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}

func Port(key, fallback string) (string, error) {
	s := String(key, fallback)
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, s)
	}
	return s, nil
}

func Int(key string, fallback int) int {
	s := String(key, "")
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func Bool(key string, fallback bool) bool {
	s := String(key, "")
	if s == "" {
		return fallback
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return b
}

func Float(key string, fallback float64) float64 {
	s := String(key, "")
	if s == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return f
}

// Duration accepts Go duration syntax ("30s", "2m").
func Duration(key string, fallback time.Duration) time.Duration {
	s := String(key, "")
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// List splits a comma separated value, dropping blanks.
func List(key string) []string {
	var out []string
	for _, part := range strings.Split(String(key, ""), ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Location resolves an IANA zone name. Empty means UTC.
func Location(key string) (*time.Location, error) {
	name := String(key, "UTC")
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%s: unknown time zone %q: %w", key, name, err)
	}
	return loc, nil
}
