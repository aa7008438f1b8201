// Package config loads and validates per-feature routing configuration.
//
// Routing documents are YAML keyed by feature name. Every document is
// validated against an embedded CUE schema before use, so range errors
// (rollout percent outside 0-100, threshold outside 0-1) are rejected at
// load time with positioned messages rather than surfacing as bad routing
// decisions later.
package config

import (
	"fmt"
	"os"

	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/meridian/cutover/internal/event"
)

// Defaults applied to absent fields. A feature that never appears in any
// document routes everything to legacy with dual-run off.
const (
	DefaultRolloutPercent    = 0
	DefaultCircuitThreshold  = 0.05
	DefaultCircuitWindowSize = 1000
)

// schemaCUE constrains routing documents. Unknown feature options are
// rejected (closed struct) so typos fail loudly.
const schemaCUE = `
#Feature: close({
	rollout_percent?:     int & >=0 & <=100
	dual_run_enabled?:    bool
	override_target?:     "legacy" | "modern" | null
	circuit_threshold?:   number & >=0 & <=1.0
	circuit_window_size?: int & >0
})

features?: [string]: #Feature
`

// FeatureConfig is the effective routing configuration for one feature.
type FeatureConfig struct {
	// RolloutPercent is the share of accounts (by stable hash bucket)
	// routed to the modern system, 0-100.
	RolloutPercent int
	// DualRunEnabled turns on shadow execution against both systems.
	DualRunEnabled bool
	// OverrideTarget, when non-nil, wins over every other routing rule.
	// Used for manual rollback.
	OverrideTarget *event.Target
	// CircuitThreshold is the error rate (0.0-1.0) that trips the breaker.
	CircuitThreshold float64
	// CircuitWindowSize is the sliding window length in requests.
	CircuitWindowSize int
}

// DefaultFeatureConfig returns the configuration used for features absent
// from every loaded document.
func DefaultFeatureConfig() FeatureConfig {
	return FeatureConfig{
		RolloutPercent:    DefaultRolloutPercent,
		DualRunEnabled:    false,
		OverrideTarget:    nil,
		CircuitThreshold:  DefaultCircuitThreshold,
		CircuitWindowSize: DefaultCircuitWindowSize,
	}
}

// Document is a parsed, validated routing document.
type Document struct {
	Features map[string]FeatureConfig
}

// rawDocument mirrors the YAML shape before defaults are applied. Pointers
// distinguish "absent" from zero values.
type rawDocument struct {
	Features map[string]rawFeature `yaml:"features"`
}

type rawFeature struct {
	RolloutPercent    *int     `yaml:"rollout_percent"`
	DualRunEnabled    *bool    `yaml:"dual_run_enabled"`
	OverrideTarget    *string  `yaml:"override_target"`
	CircuitThreshold  *float64 `yaml:"circuit_threshold"`
	CircuitWindowSize *int     `yaml:"circuit_window_size"`
}

// LoadFile reads and validates a routing document from disk.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routing config: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse validates a YAML routing document against the CUE schema and applies
// defaults for absent fields.
func Parse(data []byte) (*Document, error) {
	// Schema validation first, on the untyped YAML value, so errors carry
	// the CUE constraint that failed.
	var untyped map[string]any
	if err := yaml.Unmarshal(data, &untyped); err != nil {
		return nil, fmt.Errorf("parse routing config: %w", err)
	}
	if err := validateSchema(untyped); err != nil {
		return nil, err
	}

	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse routing config: %w", err)
	}

	doc := &Document{Features: make(map[string]FeatureConfig, len(raw.Features))}
	for name, rf := range raw.Features {
		doc.Features[name] = rf.withDefaults()
	}
	return doc, nil
}

// validateSchema unifies the document with the embedded CUE schema.
func validateSchema(untyped map[string]any) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	doc := ctx.Encode(untyped)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("encode routing config: %w", err)
	}

	unified := schema.Unify(doc)
	if err := unified.Validate(); err != nil {
		return fmt.Errorf("invalid routing config: %s", cueerrors.Details(err, nil))
	}
	return nil
}

func (rf rawFeature) withDefaults() FeatureConfig {
	cfg := DefaultFeatureConfig()
	if rf.RolloutPercent != nil {
		cfg.RolloutPercent = *rf.RolloutPercent
	}
	if rf.DualRunEnabled != nil {
		cfg.DualRunEnabled = *rf.DualRunEnabled
	}
	if rf.OverrideTarget != nil && *rf.OverrideTarget != "" {
		t := event.Target(*rf.OverrideTarget)
		cfg.OverrideTarget = &t
	}
	if rf.CircuitThreshold != nil {
		cfg.CircuitThreshold = *rf.CircuitThreshold
	}
	if rf.CircuitWindowSize != nil {
		cfg.CircuitWindowSize = *rf.CircuitWindowSize
	}
	return cfg
}
