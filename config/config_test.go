package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opd-ai/voicelink/audio"
	"github.com/opd-ai/voicelink/crypto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voicelink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	s, err := c.AudioSettings()
	require.NoError(t, err)
	assert.Equal(t, audio.DefaultSettings(), s)
	assert.Equal(t, crypto.ModeNames(), c.Voice.Modes)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
audio:
  channels: 1
  sampling_rate: 16000
voice:
  modes: [aead_xchacha20_poly1305_rtpsize]
log:
  format: json
`)

	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, uint8(1), c.Audio.Channels)
	assert.Equal(t, uint32(16000), c.Audio.SamplingRate)
	assert.Equal(t, uint32(20), c.Audio.FrameLengthMs, "unset keys keep defaults")
	assert.Equal(t, []string{crypto.ModeXChaCha20Poly1305RTPSize}, c.Voice.Modes)
	assert.Equal(t, 5, c.Voice.SilenceTrail)
	assert.Equal(t, "json", c.Log.Format)

	s, err := c.AudioSettings()
	require.NoError(t, err)
	assert.Equal(t, 320, s.SamplesPerFrame())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "audio: [not, a, map]"))
	assert.Error(t, err)
}

func TestLoadIgnoresUnknownVoiceKeys(t *testing.T) {
	// The voice payload type is fixed at 0x78 and is not configurable.
	path := writeConfig(t, `
voice:
  payload_type: 96
  max_buffered: 10
`)

	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	assert.Equal(t, 10, c.Voice.MaxBuffered)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad channels", func(c *Config) { c.Audio.Channels = 3 }},
		{"bad rate", func(c *Config) { c.Audio.SamplingRate = 44100 }},
		{"bad frame length", func(c *Config) { c.Audio.FrameLengthMs = 25 }},
		{"no modes", func(c *Config) { c.Voice.Modes = nil }},
		{"unknown mode", func(c *Config) { c.Voice.Modes = []string{"plain"} }},
		{"negative buffer", func(c *Config) { c.Voice.MaxBuffered = -1 }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, " debug ")
	t.Setenv(EnvModes, "xsalsa20_poly1305_lite, ,xsalsa20_poly1305")

	c := Default()
	c.ApplyEnv()

	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, []string{crypto.ModeXSalsa20Poly1305Lite, crypto.ModeXSalsa20Poly1305}, c.Voice.Modes)
	assert.NoError(t, c.Validate())
}

func TestApplyEnvUnset(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvModes, "")

	c := Default()
	c.ApplyEnv()
	assert.Equal(t, Default(), c)
}

func TestSetupLogging(t *testing.T) {
	level, formatter := logrus.GetLevel(), logrus.StandardLogger().Formatter
	t.Cleanup(func() {
		logrus.SetLevel(level)
		logrus.SetFormatter(formatter)
	})

	c := Default()
	c.Log.Level = "warn"
	c.Log.Format = "json"
	require.NoError(t, c.SetupLogging())
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	c.Log.Format = "text"
	require.NoError(t, c.SetupLogging())
	assert.IsType(t, &logrus.TextFormatter{}, logrus.StandardLogger().Formatter)

	c.Log.Level = "loud"
	assert.Error(t, c.SetupLogging())
}
