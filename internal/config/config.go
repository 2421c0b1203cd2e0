// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads the daemon configuration from an INI file
// and the environment. Environment variables override file values,
// which override the built-in defaults.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/ini.v1"
)

// Config holds the netlabd configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string

	// StaticDir optionally serves a directory of static files at /.
	StaticDir string

	// TeacherPasswordHash is the bcrypt hash guarding teacher-only
	// endpoints. Empty disables authentication.
	TeacherPasswordHash string

	// DBFile is the SQLite database path.
	DBFile string

	// ScenarioDir is the directory holding scenario YAML files.
	ScenarioDir string

	// DNSLabEnabled starts the real DNS listener when true.
	DNSLabEnabled bool

	// DNSLabListen is the UDP/TCP address of the DNS listener.
	DNSLabListen string

	// MetricsEnabled exposes Prometheus metrics at /metrics when true.
	MetricsEnabled bool

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// LogFormat is text or json.
	LogFormat string

	// MaxHops bounds simulated packet paths; zero means the engine
	// default.
	MaxHops int
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Listen:         ":8067",
		DBFile:         "netlab.db",
		ScenarioDir:    "scenarios",
		DNSLabEnabled:  false,
		DNSLabListen:   "127.0.0.1:5353",
		MetricsEnabled: true,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// LoadFromFile overlays configuration from an INI file.
func (c *Config) LoadFromFile(filename string) error {
	cfg, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, filename)
	if err != nil {
		return fmt.Errorf("loading %s: %w", filename, err)
	}

	section := cfg.Section("")
	c.Listen = section.Key("listen").MustString(c.Listen)
	c.StaticDir = section.Key("staticdir").MustString(c.StaticDir)
	c.TeacherPasswordHash = section.Key("teacherpasswordhash").MustString(c.TeacherPasswordHash)
	c.DBFile = section.Key("dbfile").MustString(c.DBFile)
	c.ScenarioDir = section.Key("scenariodir").MustString(c.ScenarioDir)
	c.DNSLabEnabled = section.Key("dnslabenabled").MustBool(c.DNSLabEnabled)
	c.DNSLabListen = section.Key("dnslablisten").MustString(c.DNSLabListen)
	c.MetricsEnabled = section.Key("metricsenabled").MustBool(c.MetricsEnabled)
	c.LogLevel = section.Key("loglevel").MustString(c.LogLevel)
	c.LogFormat = section.Key("logformat").MustString(c.LogFormat)
	c.MaxHops = section.Key("maxhops").MustInt(c.MaxHops)

	return nil
}

// LoadFromEnv overlays configuration from NETLAB_* environment
// variables.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("NETLAB_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("NETLAB_STATIC_DIR"); v != "" {
		c.StaticDir = v
	}
	if v := os.Getenv("NETLAB_TEACHER_PASSWORD_HASH"); v != "" {
		c.TeacherPasswordHash = v
	}
	if v := os.Getenv("NETLAB_DB_FILE"); v != "" {
		c.DBFile = v
	}
	if v := os.Getenv("NETLAB_SCENARIO_DIR"); v != "" {
		c.ScenarioDir = v
	}
	if v := os.Getenv("NETLAB_DNSLAB_ENABLED"); v != "" {
		c.DNSLabEnabled, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("NETLAB_DNSLAB_LISTEN"); v != "" {
		c.DNSLabListen = v
	}
	if v := os.Getenv("NETLAB_METRICS_ENABLED"); v != "" {
		c.MetricsEnabled, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("NETLAB_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("NETLAB_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("NETLAB_MAX_HOPS"); v != "" {
		c.MaxHops, _ = strconv.Atoi(v)
	}
}

// New builds a configuration from defaults, the optional INI file,
// and the environment, in that order. A missing file is not an
// error; a malformed one is.
func New(configFile string) (*Config, error) {
	cfg := DefaultConfig()
	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			if err := cfg.LoadFromFile(configFile); err != nil {
				return nil, err
			}
		}
	}
	cfg.LoadFromEnv()
	return cfg, nil
}
