package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/cutover/internal/event"
)

func TestRegistry_GetUnknownFeatureReturnsDefaults(t *testing.T) {
	r := NewRegistry(nil)

	cfg := r.Get("transfers")
	assert.Equal(t, DefaultFeatureConfig(), cfg)
}

func TestRegistry_GetConfiguredFeature(t *testing.T) {
	doc, err := Parse([]byte(`
features:
  transfers:
    rollout_percent: 30
    dual_run_enabled: true
`))
	require.NoError(t, err)

	r := NewRegistry(doc)
	cfg := r.Get("transfers")
	assert.Equal(t, 30, cfg.RolloutPercent)
	assert.True(t, cfg.DualRunEnabled)
}

func TestRegistry_SetOverride(t *testing.T) {
	r := NewRegistry(nil)

	legacy := event.TargetLegacy
	r.SetOverride("transfers", &legacy)

	cfg := r.Get("transfers")
	require.NotNil(t, cfg.OverrideTarget)
	assert.Equal(t, event.TargetLegacy, *cfg.OverrideTarget)

	r.SetOverride("transfers", nil)
	assert.Nil(t, r.Get("transfers").OverrideTarget)
}

func TestRegistry_SetOverridePreservesOtherFields(t *testing.T) {
	doc, err := Parse([]byte(`
features:
  transfers:
    rollout_percent: 40
`))
	require.NoError(t, err)

	r := NewRegistry(doc)
	modern := event.TargetModern
	r.SetOverride("transfers", &modern)

	cfg := r.Get("transfers")
	assert.Equal(t, 40, cfg.RolloutPercent)
	require.NotNil(t, cfg.OverrideTarget)
	assert.Equal(t, event.TargetModern, *cfg.OverrideTarget)
}

func TestRegistry_SetRolloutPercentClamps(t *testing.T) {
	r := NewRegistry(nil)

	r.SetRolloutPercent("transfers", 150)
	assert.Equal(t, 100, r.Get("transfers").RolloutPercent)

	r.SetRolloutPercent("transfers", -5)
	assert.Equal(t, 0, r.Get("transfers").RolloutPercent)
}

func TestRegistry_Features(t *testing.T) {
	doc, err := Parse([]byte(`
features:
  transfers: {}
  debits: {}
`))
	require.NoError(t, err)

	r := NewRegistry(doc)
	assert.ElementsMatch(t, []string{"transfers", "debits"}, r.Features())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry(nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.SetRolloutPercent("transfers", j%101)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cfg := r.Get("transfers")
				assert.GreaterOrEqual(t, cfg.RolloutPercent, 0)
				assert.LessOrEqual(t, cfg.RolloutPercent, 100)
			}
		}()
	}
	wg.Wait()
}
