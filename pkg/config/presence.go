package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed presence.yaml
var defaultPresence []byte

// Presence tunes the room manager and the content history
type Presence struct {
	Palette         []string      `yaml:"palette"`
	HistoryLimit    int           `yaml:"history_limit"`
	SendBuffer      int           `yaml:"send_buffer"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
	TypingTimeout   time.Duration `yaml:"typing_timeout"`
}

// LoadPresence reads the embedded defaults and overlays path when given.
func LoadPresence(path string) (*Presence, error) {
	var p Presence
	if err := yaml.Unmarshal(defaultPresence, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embedded presence config: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", path, err)
		}
	}

	if len(p.Palette) == 0 {
		return nil, fmt.Errorf("presence config: palette must not be empty")
	}
	if p.HistoryLimit <= 0 {
		return nil, fmt.Errorf("presence config: history_limit must be positive, got %d", p.HistoryLimit)
	}
	return &p, nil
}
