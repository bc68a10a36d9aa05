package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	orchestration "github.com/koscakluka/ema-tutor/core"
	"github.com/koscakluka/ema-tutor/core/audio"
	"gopkg.in/yaml.v3"
)

// fileConfig is the layout of the YAML config file.
type fileConfig struct {
	Transport    transportConfig      `yaml:"transport" json:"transport"`
	Conversation orchestration.Config `yaml:"conversation" json:"conversation" validate:"required"`
	Audio        audio.EncodingInfo   `yaml:"audio" json:"audio" jsonschema:"description=Format of tutor audio, used with --play"`
}

type transportConfig struct {
	URL              string            `yaml:"url" json:"url" validate:"omitempty,url" jsonschema:"description=Realtime websocket endpoint (ws:// or wss://)"`
	Headers          map[string]string `yaml:"headers" json:"headers,omitempty" jsonschema:"description=Extra handshake headers"`
	HandshakeTimeout time.Duration     `yaml:"handshake_timeout" json:"handshake_timeout" validate:"gte=0" jsonschema:"type=string,description=Time allowed for connecting and the session handshake (Go duration)"`
	MaxReconnects    uint64            `yaml:"max_reconnects" json:"max_reconnects" jsonschema:"description=Redial attempts after a dropped connection"`
	ReconnectBackoff time.Duration     `yaml:"reconnect_backoff" json:"reconnect_backoff" validate:"gte=0" jsonschema:"type=string,description=Base of the exponential reconnect backoff (Go duration)"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Transport: transportConfig{
			HandshakeTimeout: 10 * time.Second,
			MaxReconnects:    3,
			ReconnectBackoff: 250 * time.Millisecond,
		},
		Conversation: orchestration.DefaultConfig(),
		Audio:        audio.GetDefaultEncodingInfo(),
	}
}

var fileConfigValidator = validator.New(validator.WithRequiredStructEnabled())

// loadConfig reads path over the defaults. An empty path, or a path that
// does not exist, yields the defaults.
func loadConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := fileConfigValidator.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
