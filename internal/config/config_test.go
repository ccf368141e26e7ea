package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "induction.yaml")
	yamlBody := `
logLevel: debug
engine:
  minReady: 20
store:
  sqlitePath: /var/lib/induction/fleet.db
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	loader := NewLoader(path)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 20, cfg.Engine.MinReady)
	assert.Equal(t, "/var/lib/induction/fleet.db", cfg.Store.SQLitePath)
	// unspecified engine weights fall back to defaults
	assert.Equal(t, DefaultEngineWeights(), cfg.Engine.Weights)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "induction.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bogusField: true\n"), 0o644))

	_, err := NewLoader(path).Load()
	assert.Error(t, err)
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.Weights.Certificate = 0
	err := Validate(cfg)
	assert.Error(t, err)
}

func TestValidateRejectsUnknownBusPolicy(t *testing.T) {
	cfg := Defaults()
	cfg.Bus.DefaultPolicy = "not_a_policy"
	err := Validate(cfg)
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "induction.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: debug\n"), 0o644))

	t.Setenv("INDUCTION_LOG_LEVEL", "warn")
	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}
