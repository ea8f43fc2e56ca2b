package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the mixerkeys daemon.
//
// The config file is the primary configuration surface; flags exist for
// small overrides and for environments where a file is awkward. Defaults
// and validation are centralized here so the rest of the code can assume a
// well-formed config.
type Config struct {
	// Mixer service connection
	Mixer MixerConfig `yaml:"mixer"`

	// Input device configuration
	Input InputConfig `yaml:"input"`

	// Key bindings, in the grammar understood by ParseBinding.
	// These are applied on top of the default bindings.
	Bindings []string `yaml:"bindings,omitempty"`

	// Audible feedback
	Feedback FeedbackConfig `yaml:"feedback"`

	// IPC configuration
	IPC IPCConfig `yaml:"ipc"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type MixerConfig struct {
	WsURL     string `yaml:"ws_url"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type InputConfig struct {
	// Devices to monitor. Empty means autodetect keyboards under /dev/input.
	Devices []string `yaml:"devices,omitempty"`

	// Exclusive grabs keep bound key presses from reaching other clients.
	Exclusive bool `yaml:"exclusive"`
}

type FeedbackConfig struct {
	// Silent disables the confirmation tone entirely.
	Silent bool `yaml:"silent"`

	// Bell additionally rings on changes made by other mixer clients.
	Bell bool `yaml:"bell"`

	ToneHz         int `yaml:"tone_hz"`
	ToneDurationMS int `yaml:"tone_duration_ms"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go defaults and current CLI defaults.
func DefaultConfig() Config {
	return Config{
		Mixer: MixerConfig{
			WsURL:     defaultMixerURL,
			TimeoutMS: defaultReadTimeoutMS,
		},
		Input: InputConfig{
			Exclusive: true,
		},
		Feedback: FeedbackConfig{
			ToneHz:         defaultToneHz,
			ToneDurationMS: defaultToneDurationMS,
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocket,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true),
// and trailing documents are an error.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies overrides from flags on top of a loaded config.
//
// Flags pass pointers; each override is only applied if the pointer is
// non-nil (even if it carries a zero value). main.go decides what flags
// exist; keeping the mechanism here avoids conditionals all over the code.
type FlagOverrides struct {
	MixerWsURL     *string
	MixerTimeoutMS *int

	InputDevices   *[]string
	InputExclusive *bool

	Bindings *[]string

	FeedbackSilent *bool
	FeedbackBell   *bool

	IPCSocketPath *string

	LogLevel *string
}

// Apply merges the overrides into cfg. Binding overrides append; every
// other override replaces the config value.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.MixerWsURL != nil {
		cfg.Mixer.WsURL = *o.MixerWsURL
	}
	if o.MixerTimeoutMS != nil {
		cfg.Mixer.TimeoutMS = *o.MixerTimeoutMS
	}

	if o.InputDevices != nil {
		cfg.Input.Devices = *o.InputDevices
	}
	if o.InputExclusive != nil {
		cfg.Input.Exclusive = *o.InputExclusive
	}

	if o.Bindings != nil {
		cfg.Bindings = append(cfg.Bindings, *o.Bindings...)
	}

	if o.FeedbackSilent != nil {
		cfg.Feedback.Silent = *o.FeedbackSilent
	}
	if o.FeedbackBell != nil {
		cfg.Feedback.Bell = *o.FeedbackBell
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Called after defaults + file + overrides are applied. Binding specs are
// validated separately when the binding table is built, so a bad binding
// is reported with its spec text.
func (c *Config) Validate() error {
	if c.Mixer.WsURL == "" {
		return errors.New("mixer.ws_url must not be empty")
	}
	if c.Mixer.TimeoutMS <= 0 {
		return errors.New("mixer.timeout_ms must be > 0")
	}

	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}

	if c.Feedback.ToneHz <= 0 {
		return errors.New("feedback.tone_hz must be > 0")
	}
	if c.Feedback.ToneDurationMS <= 0 {
		return errors.New("feedback.tone_duration_ms must be > 0")
	}

	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
