// Package config holds the parameters of the visualization service.
package config

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/queryvis/logging"
	"go.viam.com/queryvis/transport/natsbus"
)

// Defaults for unset parameters.
const (
	DefaultImageOutput = "visualization_image"
	DefaultTopicInput  = "/retrieval_result"
	DefaultServiceName = "/visualization_service"
	DefaultNATSURL     = "nats://127.0.0.1:4222"
	DefaultLogLevel    = "info"
)

// Config is the service configuration. The three channel names are ROS graph names.
type Config struct {
	ImageOutput    string `json:"image_output"`
	TopicInput     string `json:"topic_input"`
	ServiceName    string `json:"service_name"`
	NATSURL        string `json:"nats_url"`
	MetricsAddress string `json:"metrics_address,omitempty"`
	LogLevel       string `json:"log_level"`
	Debug          bool   `json:"debug,omitempty"`
	LogFile        string `json:"log_file,omitempty"`
	LogMaxSizeMB   int    `json:"log_max_size_mb,omitempty"`
}

// Default returns a config with every default filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.ImageOutput == "" {
		cfg.ImageOutput = DefaultImageOutput
	}
	if cfg.TopicInput == "" {
		cfg.TopicInput = DefaultTopicInput
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}
	if cfg.NATSURL == "" {
		cfg.NATSURL = DefaultNATSURL
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
}

// Validate fills in defaults and reports the first invalid field.
func (cfg *Config) Validate(path string) error {
	cfg.applyDefaults()
	for field, name := range map[string]string{
		"image_output": cfg.ImageOutput,
		"topic_input":  cfg.TopicInput,
		"service_name": cfg.ServiceName,
	} {
		if strings.Trim(name, "/") == "" {
			return utils.NewConfigValidationFieldRequiredError(path, field)
		}
		if strings.ContainsAny(name, " \t*>") {
			return utils.NewConfigValidationError(path, errors.Errorf("%s %q is not a valid name", field, name))
		}
	}
	if _, err := logging.LevelFromString(cfg.LogLevel); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if cfg.LogMaxSizeMB < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("log_max_size_mb must not be negative, got %d", cfg.LogMaxSizeMB))
	}
	return nil
}

// Level returns the configured log level. Debug forces DEBUG.
func (cfg *Config) Level() logging.Level {
	if cfg.Debug {
		return logging.DEBUG
	}
	level, err := logging.LevelFromString(cfg.LogLevel)
	if err != nil {
		return logging.INFO
	}
	return level
}

// NeedsRestart reports whether moving from cfg to other changes anything that only takes
// effect when the service starts. Only the log level can change at runtime.
func (cfg *Config) NeedsRestart(other *Config) bool {
	a, b := *cfg, *other
	a.LogLevel, b.LogLevel = "", ""
	a.Debug, b.Debug = false, false
	return a != b
}

// Names returns the channel names for the NATS bus.
func (cfg *Config) Names() natsbus.Names {
	return natsbus.Names{
		ImageOutput: cfg.ImageOutput,
		TopicInput:  cfg.TopicInput,
		ServiceName: cfg.ServiceName,
	}
}

// Read reads a JSON config from the given file, expanding ${VAR} references first.
func Read(filePath string) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(filePath, bytes.NewReader(buf))
}

// FromReader reads a JSON config from r. originalPath names the source in errors.
func FromReader(originalPath string, r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config %q", originalPath)
	}
	if err := cfg.Validate(originalPath); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromAttributes decodes a parameter map, such as node private parameters, into a config.
func FromAttributes(attrs map[string]interface{}) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attrs); err != nil {
		return nil, errors.Wrap(err, "cannot decode attributes")
	}
	if err := cfg.Validate("attributes"); err != nil {
		return nil, err
	}
	return cfg, nil
}
