// Package config holds the tunable surface of the pipeline: stage
// timeouts, the confidence threshold, abuse-gate limits, fingerprint TTLs
// and retry caps. Defaults are safe for local development; Load overlays a
// YAML file on top of them.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML files can use human-readable values
// like "10s" or "7d"-less "168h".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in its string form.
func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the explicit dependency struct threaded into every component;
// there is no ambient global lookup.
type Config struct {
	// ConfidenceThreshold gates state-selection acceptance.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// Per-stage reasoning-backend timeouts.
	StateSelectorTimeout Duration `yaml:"state_selector_timeout"`
	ComposerTimeout      Duration `yaml:"composer_timeout"`
	ArbiterTimeout       Duration `yaml:"arbiter_timeout"`

	// ProcessTimeout bounds one full inbound delivery; exceeding it
	// abandons the pipeline without a conversation save so the queue
	// redelivers.
	ProcessTimeout Duration `yaml:"process_timeout"`

	// Fingerprint admission TTLs (inbound admission vs outbound send-guard).
	InboundFingerprintTTL  Duration `yaml:"inbound_fingerprint_ttl"`
	OutboundFingerprintTTL Duration `yaml:"outbound_fingerprint_ttl"`

	// ConversationTTL expires idle conversations to the EXPIRED state.
	ConversationTTL Duration `yaml:"conversation_ttl"`

	// Abuse gate: flood when more than AbuseThreshold events arrive for
	// one conversation inside AbuseWindow.
	AbuseThreshold int      `yaml:"abuse_threshold"`
	AbuseWindow    Duration `yaml:"abuse_window"`

	// Bounded local retries before a conflict becomes a retryable failure.
	MaxVersionRetries int `yaml:"max_version_retries"`
	MaxChainRetries   int `yaml:"max_chain_retries"`

	// BackendEnabled disables the reasoning backend entirely when false;
	// every stage then uses its deterministic fallback.
	BackendEnabled bool `yaml:"backend_enabled"`

	// MaxConcurrentDeliveries limits the processor pool.
	MaxConcurrentDeliveries int `yaml:"max_concurrent_deliveries"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		ConfidenceThreshold:     0.70,
		StateSelectorTimeout:    Duration(10 * time.Second),
		ComposerTimeout:         Duration(10 * time.Second),
		ArbiterTimeout:          Duration(10 * time.Second),
		ProcessTimeout:          Duration(35 * time.Second),
		InboundFingerprintTTL:   Duration(7 * 24 * time.Hour),
		OutboundFingerprintTTL:  Duration(24 * time.Hour),
		ConversationTTL:         Duration(2 * time.Hour),
		AbuseThreshold:          10,
		AbuseWindow:             Duration(60 * time.Second),
		MaxVersionRetries:       3,
		MaxChainRetries:         3,
		BackendEnabled:          true,
		MaxConcurrentDeliveries: 16,
	}
}

// Load reads a YAML file and overlays it on the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would break pipeline invariants.
func (c *Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be in [0,1], got %v", c.ConfidenceThreshold)
	}
	if c.AbuseThreshold <= 0 {
		return fmt.Errorf("abuse_threshold must be positive, got %d", c.AbuseThreshold)
	}
	if c.MaxVersionRetries <= 0 || c.MaxChainRetries <= 0 {
		return fmt.Errorf("retry caps must be positive")
	}
	for name, d := range map[string]Duration{
		"state_selector_timeout":  c.StateSelectorTimeout,
		"composer_timeout":        c.ComposerTimeout,
		"arbiter_timeout":         c.ArbiterTimeout,
		"process_timeout":         c.ProcessTimeout,
		"inbound_fingerprint_ttl": c.InboundFingerprintTTL,
		"conversation_ttl":        c.ConversationTTL,
		"abuse_window":            c.AbuseWindow,
	} {
		if d.Std() <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
