// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package config loads fastdbfs's INI-style profile configuration, in the
// same multi-profile-credentials-file shape used by rclone and minio-mc.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

// Profile is one [section] of the config file holding connection details
// for a single DBFS workspace.
type Profile struct {
	Name      string
	Host      string
	ClusterID string
	Token     string
}

// Settings is the [fastdbfs] global section: tuning knobs applied to every
// Session.
type Settings struct {
	Workers             int
	ChunkSize           int64
	MaxRetries          int
	ErrorDelay          time.Duration
	ErrorDelayIncrement time.Duration
	Pager               string
	Editor              string
}

// DefaultSettings mirrors dbfs.DefaultSessionConfig's documented defaults.
func DefaultSettings() Settings {
	return Settings{
		Workers:             8,
		ChunkSize:           1 << 20,
		MaxRetries:          10,
		ErrorDelay:          time.Second,
		ErrorDelayIncrement: time.Second,
		Pager:               "less",
		Editor:              "vi",
	}
}

// Logging is the [logging] section.
type Logging struct {
	Level  string
	File   string
	Format string // "text" or "json"
}

// Config is the fully parsed configuration file.
type Config struct {
	Settings Settings
	Logging  Logging
	Profiles map[string]Profile
	Path     string // file actually loaded, for diagnostics
}

// SearchPaths returns the lookup order used by Load: ~/.databrickscfg,
// ~/.fastdbfs, ~/.config/fastdbfs. The first one that exists wins.
func SearchPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return []string{
		filepath.Join(home, ".databrickscfg"),
		filepath.Join(home, ".fastdbfs"),
		filepath.Join(home, ".config", "fastdbfs"),
	}
}

// Load reads the first existing file in SearchPaths, or an empty in-memory
// config with documented defaults if none exists.
func Load() (*Config, error) {
	for _, p := range SearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return LoadFile(p)
		}
	}
	return &Config{Settings: DefaultSettings(), Logging: Logging{Level: "info", Format: "text"}, Profiles: map[string]Profile{}}, nil
}

// LoadFile parses one specific INI file.
func LoadFile(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	cfg := &Config{
		Settings: DefaultSettings(),
		Logging:  Logging{Level: "info", Format: "text"},
		Profiles: map[string]Profile{},
		Path:     path,
	}

	if s := f.Section("fastdbfs"); s != nil {
		applyIntSetting(s, "workers", &cfg.Settings.Workers)
		applyInt64Setting(s, "chunk_size", &cfg.Settings.ChunkSize)
		applyIntSetting(s, "max_retries", &cfg.Settings.MaxRetries)
		applyDurationSetting(s, "error_delay", &cfg.Settings.ErrorDelay)
		applyDurationSetting(s, "error_delay_increment", &cfg.Settings.ErrorDelayIncrement)
		if v := s.Key("pager").String(); v != "" {
			cfg.Settings.Pager = v
		}
		if v := s.Key("editor").String(); v != "" {
			cfg.Settings.Editor = v
		}
	}

	if s := f.Section("logging"); s != nil {
		if v := s.Key("level").String(); v != "" {
			cfg.Logging.Level = v
		}
		if v := s.Key("format").String(); v != "" {
			cfg.Logging.Format = v
		}
		cfg.Logging.File = s.Key("file").String()
	}

	for _, s := range f.Sections() {
		name := s.Name()
		if name == "DEFAULT" || name == "fastdbfs" || name == "logging" {
			continue
		}
		cfg.Profiles[name] = Profile{
			Name:      name,
			Host:      s.Key("host").String(),
			ClusterID: s.Key("cluster_id").String(),
			Token:     s.Key("token").String(),
		}
	}

	return cfg, nil
}

func applyIntSetting(s *ini.Section, key string, dst *int) {
	if v, err := s.Key(key).Int(); err == nil && s.HasKey(key) {
		*dst = v
	}
}

func applyInt64Setting(s *ini.Section, key string, dst *int64) {
	if v, err := s.Key(key).Int64(); err == nil && s.HasKey(key) {
		*dst = v
	}
}

func applyDurationSetting(s *ini.Section, key string, dst *time.Duration) {
	if !s.HasKey(key) {
		return
	}
	if secs, err := s.Key(key).Float64(); err == nil {
		*dst = time.Duration(secs * float64(time.Second))
	}
}

// Profile looks up a named profile.
func (c *Config) Profile(name string) (Profile, error) {
	p, ok := c.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("no profile %q in %s", name, c.Path)
	}
	return p, nil
}

// ConfigureLogging wires the [logging] section into logrus: level, text vs
// JSON formatter, and an optional tee to a log file via io.MultiWriter.
func (c *Config) ConfigureLogging(out io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if c.Logging.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	writers := []io.Writer{out}
	if c.Logging.File != "" {
		f, err := os.OpenFile(c.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file %s: %w", c.Logging.File, err)
		}
		writers = append(writers, f)
	}
	log.SetOutput(io.MultiWriter(writers...))
	return log, nil
}
