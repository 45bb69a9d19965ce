package main

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/normanking/talkinghead/internal/animator"
	"github.com/normanking/talkinghead/internal/audio"
	"github.com/normanking/talkinghead/internal/bus"
	"github.com/normanking/talkinghead/internal/chat"
	"github.com/normanking/talkinghead/internal/config"
	"github.com/normanking/talkinghead/internal/engine"
	"github.com/normanking/talkinghead/internal/errs"
	"github.com/normanking/talkinghead/internal/logging"
	"github.com/normanking/talkinghead/internal/personality"
	"github.com/normanking/talkinghead/internal/phoneme"
	"github.com/normanking/talkinghead/internal/playback"
	"github.com/normanking/talkinghead/internal/posestream"
	"github.com/normanking/talkinghead/internal/tts"
	"github.com/normanking/talkinghead/internal/viseme"
)

// app is the fully wired pipeline shared by the commands.
type app struct {
	config *config.Config
	logs   *logging.Logger
	logger zerolog.Logger

	bus           *bus.Bus
	visemes       *viseme.Store
	personalities *personality.Manager
	extractor     *phoneme.Extractor
	synth         *tts.PiperSynthesizer
	sync          *playback.Synchronizer
	player        *audio.Player
	animator      *animator.Animator
	engine        *engine.Engine
	hub           *posestream.Hub // nil unless streaming

	detach func()
}

// loadConfig reads the configuration and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newLogger builds the logger described by cfg.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.New(&logging.Config{
		Dir:        cfg.Logging.Dir,
		Level:      cfg.Logging.Level,
		MaxHistory: cfg.Logging.MaxHistory,
		Console:    true,
	})
}

// newApp wires every component. With stream set, animator frames and bus
// events are fanned out through a pose stream hub.
func newApp(stream bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logs, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger := logs.Zerolog()

	a := &app{
		config: cfg,
		logs:   logs,
		logger: logger,
		bus:    bus.New(),
	}

	var out animator.PoseWriter
	if stream {
		a.hub = posestream.NewHub(logger, cfg.Server.WriteTimeout, cfg.Server.SendBuffer)
		out = a.hub
	}

	a.visemes = viseme.NewStore(logger, nil)
	if cfg.Avatar.VisemeMap != "" {
		if err := a.visemes.Reload(cfg.Avatar.VisemeMap); err != nil {
			logs.Close()
			return nil, fmt.Errorf("failed to load viseme map: %w", err)
		}
	}

	a.personalities = loadPersonalities(logger, cfg.Personality)

	a.extractor = phoneme.NewExtractor(logger, &phoneme.Config{
		BinaryPath: cfg.Phonemizer.BinaryPath,
		DataPath:   cfg.Phonemizer.DataPath,
		Language:   cfg.Phonemizer.Language,
		Timeout:    cfg.Phonemizer.Timeout,
	})
	a.synth = tts.NewPiperSynthesizer(logger, &tts.Config{
		BinaryPath: cfg.TTS.BinaryPath,
		ModelsDir:  cfg.TTS.ModelsDir,
		Voice:      cfg.TTS.Voice,
		OutputDir:  cfg.TTS.OutputDir,
		Timeout:    cfg.TTS.Timeout,
	})

	a.sync = playback.NewSynchronizer(logger, a.bus)
	a.player = audio.NewPlayer(logger, &audio.Config{
		Mute:             cfg.Audio.Mute,
		Volume:           cfg.Audio.Volume,
		PositionInterval: cfg.Audio.PositionInterval,
		BufferSize:       audio.DefaultConfig().BufferSize,
	}, a.sync)

	a.animator = animator.New(logger, &animator.Config{
		VisemeBlend:        cfg.Avatar.VisemeBlend,
		EmotionBlend:       cfg.Avatar.EmotionBlend,
		PhonemeBlendFactor: cfg.Avatar.PhonemeBlendFactor,
		FPS:                cfg.Avatar.FPS,
		IdleMotion:         cfg.Avatar.IdleMotion,
	}, a.visemes, a.bus, out)
	a.detach = a.animator.Attach()

	current := a.personalities.Current()
	a.engine = engine.New(logger, &engine.Config{
		Language:        cfg.Phonemizer.Language,
		Voice:           tts.VoiceConfig{Voice: cfg.TTS.Voice, Speed: cfg.TTS.Speed},
		RestingEmotion:  current.DefaultEmotion,
		ClassifyEmotion: cfg.Avatar.EmotionDetection,
	}, a.bus, a.sync, a.extractor, a.synth, a.player, engine.WithEmoter(a.animator))

	logger.Debug().
		Str("voice", cfg.TTS.Voice).
		Str("personality", current.Name).
		Bool("silent", a.player.Silent()).
		Msg("Pipeline ready")
	return a, nil
}

// loadPersonalities returns the built-in records plus any found in the
// configured directory. A missing directory is not an error.
func loadPersonalities(logger zerolog.Logger, cfg config.PersonalityConfig) *personality.Manager {
	m := personality.NewManager(logger)
	if cfg.Dir != "" {
		var missing *errs.ResourceMissingError
		if _, err := m.LoadDir(cfg.Dir); err != nil && !errors.As(err, &missing) {
			logger.Warn().Err(err).Str("dir", cfg.Dir).Msg("Failed to load personalities")
		}
	}
	if cfg.Name != "" {
		if err := m.Select(cfg.Name); err != nil {
			logger.Warn().Err(err).Msg("Keeping default personality")
		}
	}
	return m
}

// newChat creates a conversation backed by the configured Ollama model,
// primed with the current personality.
func (a *app) newChat() *chat.Session {
	client := chat.NewClient(&chat.ClientConfig{
		URL:     a.config.Chat.URL,
		Model:   a.config.Chat.Model,
		Timeout: a.config.Chat.Timeout,
	}, a.logger)
	session := chat.NewSession(a.logger, client, chat.NewHistory(a.config.Chat.MaxHistory), a.bus)
	session.SetSystemPrompt(a.personalities.Current().SystemPrompt)
	return session
}

// Close stops playback and flushes the log file.
func (a *app) Close() {
	a.engine.Close()
	a.detach()
	a.logs.Close()
}
