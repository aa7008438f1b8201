package config

import (
	"log/slog"
	"sync"

	"github.com/meridian/cutover/internal/event"
)

// Registry holds the live per-feature configuration.
//
// Reads vastly outnumber writes (every routing decision reads, only
// operator actions write), so an RWMutex guards the map. Operator mutations
// (override, rollout changes) take effect on the next routing decision
// without a restart.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	features map[string]FeatureConfig
}

// NewRegistry creates a registry seeded from a validated document.
// A nil document yields an empty registry where every feature gets defaults.
func NewRegistry(doc *Document) *Registry {
	features := make(map[string]FeatureConfig)
	if doc != nil {
		for name, cfg := range doc.Features {
			features[name] = cfg
		}
	}
	return &Registry{features: features}
}

// Get returns the effective configuration for a feature. Features absent
// from every loaded document get DefaultFeatureConfig (all traffic legacy).
func (r *Registry) Get(feature string) FeatureConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.features[feature]; ok {
		return cfg
	}
	return DefaultFeatureConfig()
}

// SetOverride pins a feature to one target, or clears the pin with nil.
// Overrides win over circuit state and rollout percent.
func (r *Registry) SetOverride(feature string, target *event.Target) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg := r.getLocked(feature)
	cfg.OverrideTarget = target
	r.features[feature] = cfg

	if target != nil {
		slog.Info("routing override set", "feature", feature, "target", *target)
	} else {
		slog.Info("routing override cleared", "feature", feature)
	}
}

// SetRolloutPercent updates a feature's rollout percentage. Values are
// clamped to [0, 100].
func (r *Registry) SetRolloutPercent(feature string, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cfg := r.getLocked(feature)
	cfg.RolloutPercent = percent
	r.features[feature] = cfg

	slog.Info("rollout percent updated", "feature", feature, "percent", percent)
}

// Features returns the names of all explicitly configured features.
func (r *Registry) Features() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.features))
	for name := range r.features {
		names = append(names, name)
	}
	return names
}

// getLocked returns the feature config, falling back to defaults.
// Caller must hold mu.
func (r *Registry) getLocked(feature string) FeatureConfig {
	if cfg, ok := r.features[feature]; ok {
		return cfg
	}
	return DefaultFeatureConfig()
}
