package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/opd-ai/voicelink/audio"
	"github.com/opd-ai/voicelink/crypto"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvLogLevel = "VOICELINK_LOG_LEVEL"
	EnvModes    = "VOICELINK_MODES"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the voice session configuration.
type Config struct {
	Audio struct {
		Channels      uint8  `yaml:"channels"`
		SamplingRate  uint32 `yaml:"sampling_rate"`
		FrameLengthMs uint32 `yaml:"frame_length_ms"`
	} `yaml:"audio"`
	Voice struct {
		Modes        []string `yaml:"modes"`
		SilenceTrail int      `yaml:"silence_trail"`
		MaxBuffered  int      `yaml:"max_buffered"`
	} `yaml:"voice"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is given: stereo
// 48 kHz 20ms frames, every supported mode in priority order, info-level
// text logs.
func Default() *Config {
	c := &Config{}
	s := audio.DefaultSettings()
	c.Audio.Channels = s.Channels()
	c.Audio.SamplingRate = s.SamplingRate()
	c.Audio.FrameLengthMs = s.FrameLength()
	c.Voice.Modes = crypto.ModeNames()
	c.Voice.SilenceTrail = 5
	c.Voice.MaxBuffered = 50
	c.Log.Level = "info"
	c.Log.Format = "text"
	return c
}

// Load reads a YAML file over the defaults, so a file may set only the
// keys it changes.
func Load(path string) (*Config, error) {
	c := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "config.Load",
		"path":     path,
	}).Debug("Configuration loaded")
	return c, nil
}

// ApplyEnv overrides the log level and the mode preference from the
// environment. VOICELINK_MODES is a comma-separated list.
func (c *Config) ApplyEnv() {
	if level := strings.TrimSpace(os.Getenv(EnvLogLevel)); level != "" {
		c.Log.Level = level
	}
	if modes := os.Getenv(EnvModes); modes != "" {
		c.Voice.Modes = splitList(modes)
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if _, err := c.AudioSettings(); err != nil {
		return fmt.Errorf("%w: audio: %v", ErrInvalidConfig, err)
	}
	if len(c.Voice.Modes) == 0 {
		return fmt.Errorf("%w: voice.modes is empty", ErrInvalidConfig)
	}
	for _, m := range c.Voice.Modes {
		if _, ok := crypto.LookupMode(m); !ok {
			return fmt.Errorf("%w: voice.modes: %q is not a supported mode", ErrInvalidConfig, m)
		}
	}
	if c.Voice.MaxBuffered < 0 {
		return fmt.Errorf("%w: voice.max_buffered must not be negative", ErrInvalidConfig)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q, want text or json", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// AudioSettings returns the audio section as audio.Settings.
func (c *Config) AudioSettings() (audio.Settings, error) {
	return audio.NewSettings(c.Audio.Channels, c.Audio.SamplingRate, c.Audio.FrameLengthMs)
}

// SetupLogging applies the log section to the standard logrus logger.
func (c *Config) SetupLogging() error {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	logrus.SetLevel(level)

	if c.Log.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
