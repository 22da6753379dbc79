package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// overlay mirrors Config with pointer fields so that absent keys can be
// distinguished from zero values. Present fields replace the base
// config's fields wholesale; there is no deep merge. A project file
// that declares `contexts` therefore replaces the entire context set,
// not individual contexts.
type overlay struct {
	Enabled   *bool                         `yaml:"enabled"`
	Adaptive  *bool                         `yaml:"adaptive"`
	LogLevel  *string                       `yaml:"log_level"`
	Listen    *ListenConfig                 `yaml:"listen"`
	EventLog  *EventLogConfig               `yaml:"event_log"`
	MQTT      *MQTTConfig                   `yaml:"mqtt"`
	Contexts  *ContextSet                   `yaml:"contexts"`
	Templates map[string]TemplateDefinition `yaml:"templates"`
}

// ApplyOverlay reads the project override file at path and overlays its
// fields onto cfg, field by field. A missing file is not an error — the
// base config is returned unchanged. Precedence is resolved here, once,
// at load time; nothing downstream ever consults two configs.
func ApplyOverlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read project config: %w", err)
	}

	ov, err := parseOverlay(data)
	if err != nil {
		return fmt.Errorf("parse project config %s: %w", path, err)
	}

	if ov.Enabled != nil {
		cfg.Enabled = *ov.Enabled
	}
	if ov.Adaptive != nil {
		cfg.Adaptive = *ov.Adaptive
	}
	if ov.LogLevel != nil {
		cfg.LogLevel = *ov.LogLevel
	}
	if ov.Listen != nil {
		cfg.Listen = *ov.Listen
	}
	if ov.EventLog != nil {
		cfg.EventLog = *ov.EventLog
	}
	if ov.MQTT != nil {
		cfg.MQTT = *ov.MQTT
	}
	if ov.Contexts != nil {
		cfg.Contexts = *ov.Contexts
	}
	if ov.Templates != nil {
		cfg.Templates = ov.Templates
	}

	return nil
}

func parseOverlay(data []byte) (*overlay, error) {
	expanded := os.ExpandEnv(string(data))
	ov := &overlay{}
	if err := yaml.Unmarshal([]byte(expanded), ov); err != nil {
		return nil, err
	}
	return ov, nil
}
