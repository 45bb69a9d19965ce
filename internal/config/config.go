// Package config provides configuration management for talkinghead.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. TALKINGHEAD_TTS_VOICE.
const EnvPrefix = "TALKINGHEAD"

// Config holds all application configuration.
type Config struct {
	TTS         TTSConfig         `mapstructure:"tts"`
	Phonemizer  PhonemizerConfig  `mapstructure:"phonemizer"`
	Avatar      AvatarConfig      `mapstructure:"avatar"`
	Audio       AudioConfig       `mapstructure:"audio"`
	Chat        ChatConfig        `mapstructure:"chat"`
	Personality PersonalityConfig `mapstructure:"personality"`
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// TTSConfig configures the piper voice synthesizer.
type TTSConfig struct {
	BinaryPath string        `mapstructure:"binary_path"`
	ModelsDir  string        `mapstructure:"models_dir"`
	Voice      string        `mapstructure:"voice"`
	Speed      float64       `mapstructure:"speed"`
	OutputDir  string        `mapstructure:"output_dir"` // temp dir when empty
	Timeout    time.Duration `mapstructure:"timeout"`
}

// PhonemizerConfig configures piper_phonemize.
type PhonemizerConfig struct {
	BinaryPath string        `mapstructure:"binary_path"`
	DataPath   string        `mapstructure:"data_path"` // espeak-ng data
	Language   string        `mapstructure:"language"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// AvatarConfig configures the face animation.
type AvatarConfig struct {
	VisemeMap          string        `mapstructure:"viseme_map"` // built-in table when empty
	WatchVisemeMap     bool          `mapstructure:"watch_viseme_map"`
	VisemeBlend        time.Duration `mapstructure:"viseme_blend"`
	EmotionBlend       time.Duration `mapstructure:"emotion_blend"`
	PhonemeBlendFactor float64       `mapstructure:"phoneme_blend_factor"`
	FPS                int           `mapstructure:"fps"`
	IdleMotion         bool          `mapstructure:"idle_motion"`
	EmotionDetection   bool          `mapstructure:"emotion_detection"`
}

// AudioConfig configures playback.
type AudioConfig struct {
	Mute             bool          `mapstructure:"mute"`
	Volume           float64       `mapstructure:"volume"` // 0-1
	PositionInterval time.Duration `mapstructure:"position_interval"`
}

// ChatConfig configures the Ollama conversation backend.
type ChatConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	URL        string        `mapstructure:"url"`
	Model      string        `mapstructure:"model"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxHistory int           `mapstructure:"max_history"`
}

// PersonalityConfig selects the personality record.
type PersonalityConfig struct {
	Dir  string `mapstructure:"dir"`
	Name string `mapstructure:"name"` // default selection when empty
}

// ServerConfig configures the pose stream server.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	SendBuffer   int           `mapstructure:"send_buffer"` // frames queued per client
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Dir        string `mapstructure:"dir"` // no log file when empty
	MaxHistory int    `mapstructure:"max_history"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	dir := Dir()
	return &Config{
		TTS: TTSConfig{
			BinaryPath: "piper",
			ModelsDir:  filepath.Join(dir, "voices"),
			Voice:      "en_US-amy-medium",
			Speed:      1.0,
			Timeout:    30 * time.Second,
		},
		Phonemizer: PhonemizerConfig{
			BinaryPath: "piper_phonemize",
			DataPath:   "/usr/share/espeak-ng-data",
			Language:   "en-us",
			Timeout:    5 * time.Second,
		},
		Avatar: AvatarConfig{
			WatchVisemeMap:     true,
			VisemeBlend:        50 * time.Millisecond,
			EmotionBlend:       300 * time.Millisecond,
			PhonemeBlendFactor: 0.5,
			FPS:                60,
			IdleMotion:         true,
			EmotionDetection:   true,
		},
		Audio: AudioConfig{
			Volume:           1.0,
			PositionInterval: 30 * time.Millisecond,
		},
		Chat: ChatConfig{
			URL:        "http://localhost:11434",
			Model:      "llama3.2:3b",
			Timeout:    60 * time.Second,
			MaxHistory: 100,
		},
		Personality: PersonalityConfig{
			Dir: filepath.Join(dir, "personalities"),
		},
		Server: ServerConfig{
			Addr:         "127.0.0.1:8090",
			WriteTimeout: 10 * time.Second,
			SendBuffer:   16,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxHistory: 1000,
		},
	}
}

// values flattens cfg into viper keys.
func values(cfg *Config) map[string]any {
	return map[string]any{
		"tts.binary_path": cfg.TTS.BinaryPath,
		"tts.models_dir":  cfg.TTS.ModelsDir,
		"tts.voice":       cfg.TTS.Voice,
		"tts.speed":       cfg.TTS.Speed,
		"tts.output_dir":  cfg.TTS.OutputDir,
		"tts.timeout":     cfg.TTS.Timeout,

		"phonemizer.binary_path": cfg.Phonemizer.BinaryPath,
		"phonemizer.data_path":   cfg.Phonemizer.DataPath,
		"phonemizer.language":    cfg.Phonemizer.Language,
		"phonemizer.timeout":     cfg.Phonemizer.Timeout,

		"avatar.viseme_map":           cfg.Avatar.VisemeMap,
		"avatar.watch_viseme_map":     cfg.Avatar.WatchVisemeMap,
		"avatar.viseme_blend":         cfg.Avatar.VisemeBlend,
		"avatar.emotion_blend":        cfg.Avatar.EmotionBlend,
		"avatar.phoneme_blend_factor": cfg.Avatar.PhonemeBlendFactor,
		"avatar.fps":                  cfg.Avatar.FPS,
		"avatar.idle_motion":          cfg.Avatar.IdleMotion,
		"avatar.emotion_detection":    cfg.Avatar.EmotionDetection,

		"audio.mute":              cfg.Audio.Mute,
		"audio.volume":            cfg.Audio.Volume,
		"audio.position_interval": cfg.Audio.PositionInterval,

		"chat.enabled":     cfg.Chat.Enabled,
		"chat.url":         cfg.Chat.URL,
		"chat.model":       cfg.Chat.Model,
		"chat.timeout":     cfg.Chat.Timeout,
		"chat.max_history": cfg.Chat.MaxHistory,

		"personality.dir":  cfg.Personality.Dir,
		"personality.name": cfg.Personality.Name,

		"server.addr":          cfg.Server.Addr,
		"server.write_timeout": cfg.Server.WriteTimeout,
		"server.send_buffer":   cfg.Server.SendBuffer,

		"logging.level":       cfg.Logging.Level,
		"logging.dir":         cfg.Logging.Dir,
		"logging.max_history": cfg.Logging.MaxHistory,
	}
}

// Load reads configuration from path, or from config.yaml in Dir() or the
// working directory when path is empty, with environment overrides on top.
// A missing file is created with the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range values(DefaultConfig()) {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if err := Save(DefaultConfig(), path); err != nil {
				return nil, err
			}
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(Dir())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := Save(DefaultConfig(), filepath.Join(Dir(), "config.yaml")); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg as YAML to path. Durations are written as strings.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	v := viper.New()
	for key, value := range values(cfg) {
		if d, ok := value.(time.Duration); ok {
			value = d.String()
		}
		v.Set(key, value)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Dir returns the configuration directory, ~/.talkinghead.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".talkinghead"
	}
	return filepath.Join(home, ".talkinghead")
}
