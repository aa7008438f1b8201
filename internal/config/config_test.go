package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/cutover/internal/event"
)

func TestParse_FullDocument(t *testing.T) {
	doc, err := Parse([]byte(`
features:
  transfers:
    rollout_percent: 25
    dual_run_enabled: true
    override_target: null
    circuit_threshold: 0.05
    circuit_window_size: 1000
  debits:
    rollout_percent: 100
    override_target: legacy
`))
	require.NoError(t, err)

	transfers := doc.Features["transfers"]
	assert.Equal(t, 25, transfers.RolloutPercent)
	assert.True(t, transfers.DualRunEnabled)
	assert.Nil(t, transfers.OverrideTarget)
	assert.Equal(t, 0.05, transfers.CircuitThreshold)
	assert.Equal(t, 1000, transfers.CircuitWindowSize)

	debits := doc.Features["debits"]
	assert.Equal(t, 100, debits.RolloutPercent)
	require.NotNil(t, debits.OverrideTarget)
	assert.Equal(t, event.TargetLegacy, *debits.OverrideTarget)
}

func TestParse_DefaultsForAbsentFields(t *testing.T) {
	doc, err := Parse([]byte(`
features:
  inquiries:
    rollout_percent: 10
`))
	require.NoError(t, err)

	cfg := doc.Features["inquiries"]
	assert.Equal(t, 10, cfg.RolloutPercent)
	assert.False(t, cfg.DualRunEnabled)
	assert.Nil(t, cfg.OverrideTarget)
	assert.Equal(t, DefaultCircuitThreshold, cfg.CircuitThreshold)
	assert.Equal(t, DefaultCircuitWindowSize, cfg.CircuitWindowSize)
}

func TestParse_RejectsRolloutPercentOutOfRange(t *testing.T) {
	_, err := Parse([]byte(`
features:
  transfers:
    rollout_percent: 150
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid routing config")
}

func TestParse_RejectsThresholdOutOfRange(t *testing.T) {
	_, err := Parse([]byte(`
features:
  transfers:
    circuit_threshold: 1.5
`))
	require.Error(t, err)
}

func TestParse_RejectsUnknownTarget(t *testing.T) {
	_, err := Parse([]byte(`
features:
  transfers:
    override_target: staging
`))
	require.Error(t, err)
}

func TestParse_RejectsUnknownOption(t *testing.T) {
	_, err := Parse([]byte(`
features:
  transfers:
    rollout_pct: 10
`))
	require.Error(t, err)
}

func TestParse_RejectsNonPositiveWindow(t *testing.T) {
	_, err := Parse([]byte(`
features:
  transfers:
    circuit_window_size: 0
`))
	require.Error(t, err)
}

func TestParse_EmptyDocument(t *testing.T) {
	doc, err := Parse([]byte(""))
	require.NoError(t, err)
	assert.Empty(t, doc.Features)
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse([]byte("features: [unclosed"))
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
features:
  transfers:
    rollout_percent: 50
`), 0o644))

	doc, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 50, doc.Features["transfers"].RolloutPercent)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
