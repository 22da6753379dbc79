// Package config handles Remora configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultContextName is the name of the mandatory fallback context.
// Detection falls back to it when a message matches nothing, and
// resolution falls back to its temperature when no matched context
// declares one.
const DefaultContextName = "default"

// ProjectConfigName is the optional per-directory override file. When
// present in the working directory, its fields overlay the base config
// (see [ApplyOverlay]).
const ProjectConfigName = "remora.yaml"

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/remora/config.yaml, /etc/remora/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "remora", "config.yaml"))
	}

	paths = append(paths, "/etc/remora/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Remora configuration. Loaded once per process; the
// engine treats it as read-only shared state after [Config.Validate]
// passes.
type Config struct {
	// Enabled toggles the whole engine. When false, the serve and eval
	// commands still run but every evaluation reports no injection.
	Enabled bool `yaml:"enabled"`
	// Adaptive toggles temperature adjustment. When false, resolved
	// temperatures are withheld from evaluation output.
	Adaptive bool           `yaml:"adaptive"`
	LogLevel string         `yaml:"log_level"`
	Listen   ListenConfig   `yaml:"listen"`
	EventLog EventLogConfig `yaml:"event_log"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	// Contexts maps context names to their definitions. Declaration
	// order in the YAML file is preserved and is the tie-break order
	// during resolution (first declared wins among equal priorities).
	Contexts ContextSet `yaml:"contexts"`
	// Templates maps template names to reminder text definitions.
	Templates map[string]TemplateDefinition `yaml:"templates"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// EventLogConfig defines the SQLite decision log settings.
type EventLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // Database file path (default: remora.db)
	// RetentionDays prunes records older than this many days on
	// startup. Zero disables pruning.
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig defines the optional MQTT activity publisher.
type MQTTConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Broker     string `yaml:"broker"` // e.g. mqtt://broker.local:1883
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	DeviceName string `yaml:"device_name"`
}

// ContextDefinition is a named rule bundle: keyword triggers, a
// template reference, a priority for conflict resolution, an injection
// probability, and an optional temperature override.
type ContextDefinition struct {
	// Template names an entry in Config.Templates. Unresolvable
	// references are skipped during resolution, never fatal.
	Template string `yaml:"template"`
	// InjectionRate is the probability in [0,1] that the generated
	// reminder is actually injected for a message matching this context.
	InjectionRate float64 `yaml:"injection_rate"`
	// Priority orders competing contexts; higher wins.
	Priority int `yaml:"priority"`
	// Temperature, when set, proposes a sampling temperature for the
	// host. Absent means this context has no opinion.
	Temperature *float64 `yaml:"temperature"`
	// Keywords trigger this context when any appears (case-folded) as a
	// substring of the message. Contexts without keywords are never
	// auto-matched.
	Keywords    []string `yaml:"keywords"`
	Description string   `yaml:"description"`
}

// TemplateDefinition is a reusable block of reminder text. Templates
// sharing a Type are mutually exclusive during resolution: only the
// highest-priority context's template survives per type.
type TemplateDefinition struct {
	Type   string `yaml:"type"`
	Prompt Prompt `yaml:"prompt"`
}

// Parse unmarshals YAML config data after environment variable
// expansion. Used by [Load] and by tests that build configs inline.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{
		Enabled:  true,
		Adaptive: true,
		Listen:   ListenConfig{Port: 8585},
		EventLog: EventLogConfig{Path: "remora.db"},
	}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Validate checks the preconditions the resolution engine assumes:
// a "default" context exists, the template set is non-empty, and every
// injection rate is a probability. Call once after loading; the engine
// itself does not re-validate.
func (c *Config) Validate() error {
	if _, ok := c.Contexts.Get(DefaultContextName); !ok {
		return fmt.Errorf("contexts must include a %q entry", DefaultContextName)
	}
	if len(c.Templates) == 0 {
		return fmt.Errorf("templates must not be empty")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	for _, name := range c.Contexts.Names() {
		def, _ := c.Contexts.Get(name)
		if def.InjectionRate < 0 || def.InjectionRate > 1 {
			return fmt.Errorf("context %q: injection_rate %v outside [0,1]", name, def.InjectionRate)
		}
	}
	return nil
}

// UnresolvedTemplateRefs returns the names of contexts whose template
// reference does not resolve. These are not errors (resolution skips
// them silently) but are worth a startup warning.
func (c *Config) UnresolvedTemplateRefs() []string {
	var missing []string
	for _, name := range c.Contexts.Names() {
		def, _ := c.Contexts.Get(name)
		if _, ok := c.Templates[def.Template]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
