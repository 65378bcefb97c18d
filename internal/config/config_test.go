// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fastdbfs.cfg")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadFileAppliesSettingsOverDefaults(t *testing.T) {
	path := writeConfig(t, `
[fastdbfs]
workers = 16
chunk_size = 2097152
max_retries = 3
error_delay = 2
error_delay_increment = 0.5
pager = bat
editor = nano

[logging]
level = debug
format = json
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 16, cfg.Settings.Workers)
	require.EqualValues(t, 2097152, cfg.Settings.ChunkSize)
	require.Equal(t, 3, cfg.Settings.MaxRetries)
	require.Equal(t, 2*time.Second, cfg.Settings.ErrorDelay)
	require.Equal(t, 500*time.Millisecond, cfg.Settings.ErrorDelayIncrement)
	require.Equal(t, "bat", cfg.Settings.Pager)
	require.Equal(t, "nano", cfg.Settings.Editor)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFileLeavesUnsetKeysAtDefault(t *testing.T) {
	path := writeConfig(t, `
[fastdbfs]
workers = 2
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	want := DefaultSettings()
	if cfg.Settings.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Settings.Workers)
	}
	if cfg.Settings.ChunkSize != want.ChunkSize {
		t.Errorf("ChunkSize should remain default, got %d", cfg.Settings.ChunkSize)
	}
	if cfg.Settings.MaxRetries != want.MaxRetries {
		t.Errorf("MaxRetries should remain default, got %d", cfg.Settings.MaxRetries)
	}
}

func TestLoadFileCollectsNamedProfiles(t *testing.T) {
	path := writeConfig(t, `
[fastdbfs]
workers = 4

[prod]
host = https://prod.example.com
cluster_id = abc123
token = secret-prod

[staging]
host = https://staging.example.com
token = secret-staging
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, cfg.Profiles, 2)

	prod, err := cfg.Profile("prod")
	require.NoError(t, err)
	require.Equal(t, Profile{Name: "prod", Host: "https://prod.example.com", ClusterID: "abc123", Token: "secret-prod"}, prod)

	_, err = cfg.Profile("missing")
	require.Error(t, err)
}

func TestLoadFallsBackToDefaultsWhenNoFileExists(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Settings.Workers != DefaultSettings().Workers {
		t.Errorf("expected documented defaults when no config file exists")
	}
	if len(cfg.Profiles) != 0 {
		t.Errorf("expected no profiles in a fresh default config")
	}
}

func TestConfigureLoggingTextFormat(t *testing.T) {
	cfg := &Config{Settings: DefaultSettings(), Logging: Logging{Level: "warn", Format: "text"}}
	var buf bytes.Buffer
	log, err := cfg.ConfigureLogging(&buf)
	if err != nil {
		t.Fatalf("ConfigureLogging: %v", err)
	}
	log.Warn("hello")
	if buf.Len() == 0 {
		t.Fatalf("expected a warn-level message to be written")
	}
}

func TestConfigureLoggingInvalidLevelFallsBackToInfo(t *testing.T) {
	cfg := &Config{Settings: DefaultSettings(), Logging: Logging{Level: "not-a-level", Format: "text"}}
	var buf bytes.Buffer
	log, err := cfg.ConfigureLogging(&buf)
	if err != nil {
		t.Fatalf("ConfigureLogging: %v", err)
	}
	log.Info("hello")
	if buf.Len() == 0 {
		t.Fatalf("expected info-level logging to work after falling back from an invalid level")
	}
}

func TestConfigureLoggingTeesToFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "out.log")
	cfg := &Config{Settings: DefaultSettings(), Logging: Logging{Level: "info", Format: "text", File: logPath}}
	var buf bytes.Buffer
	log, err := cfg.ConfigureLogging(&buf)
	if err != nil {
		t.Fatalf("ConfigureLogging: %v", err)
	}
	log.Info("teed message")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected the log file to receive the message")
	}
	if buf.Len() == 0 {
		t.Fatalf("expected stderr to still receive the message alongside the file")
	}
}
