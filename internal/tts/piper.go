package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/talkinghead/internal/errs"
	"github.com/normanking/talkinghead/internal/metrics"
	"github.com/normanking/talkinghead/internal/process"
)

// PiperSynthesizer renders text to WAV files with the piper CLI.
type PiperSynthesizer struct {
	logger     zerolog.Logger
	config     *Config
	binaryPath string
}

// NewPiperSynthesizer creates a synthesizer. A bare binary name is resolved
// on PATH.
func NewPiperSynthesizer(logger zerolog.Logger, config *Config) *PiperSynthesizer {
	if config == nil {
		config = DefaultConfig()
	}

	binaryPath := config.BinaryPath
	if binaryPath != "" && !filepath.IsAbs(binaryPath) {
		if path, err := exec.LookPath(binaryPath); err == nil {
			binaryPath = path
		}
	}

	return &PiperSynthesizer{
		logger:     logger.With().Str("provider", "piper-tts").Logger(),
		config:     config,
		binaryPath: binaryPath,
	}
}

// Synthesize renders text into a new WAV asset named after sessionID. The
// caller owns the returned asset and must Release it. No file is left behind
// when an error is returned.
func (p *PiperSynthesizer) Synthesize(ctx context.Context, sessionID, text string, voice VoiceConfig) (*Asset, error) {
	modelPath := p.ModelPath(voice.Voice)
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesisFailed, &errs.ResourceMissingError{Path: modelPath})
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	outputDir := p.config.OutputDir
	if outputDir == "" {
		outputDir = os.TempDir()
	}
	outputPath := filepath.Join(outputDir, "talkinghead-"+sessionID+".wav")

	args := []string{"--model", modelPath, "--output_file", outputPath}
	if scale, ok := voice.LengthScale(); ok {
		args = append(args, "--length_scale", strconv.FormatFloat(scale, 'g', 6, 64))
	}

	p.logger.Debug().
		Str("session", sessionID).
		Str("model", modelPath).
		Int("textLen", len(text)).
		Msg("Synthesizing with Piper TTS")

	start := time.Now()
	_, err := process.Run(ctx, process.Spec{
		Path:    p.binaryPath,
		Args:    args,
		Timeout: p.config.Timeout,
	}, []byte(text))
	metrics.SynthesisDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		os.Remove(outputPath)

		var timeout *errs.TimeoutError
		switch {
		case errors.As(err, &timeout):
			return nil, fmt.Errorf("%w: %w", ErrSynthesisTimeout, err)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			p.logger.Error().Err(err).Str("session", sessionID).Msg("Piper TTS failed")
			return nil, fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
		}
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesisFailed, &errs.ResourceMissingError{Path: outputPath})
	}

	asset := &Asset{
		Path:       outputPath,
		Size:       info.Size(),
		Duration:   DurationFromSize(info.Size()),
		SampleRate: SampleRate,
	}

	p.logger.Info().
		Str("session", sessionID).
		Int64("audioBytes", asset.Size).
		Float64("audioSeconds", asset.Duration).
		Dur("processingTime", time.Since(start)).
		Msg("Piper TTS synthesis complete")

	return asset, nil
}

// ModelPath resolves a voice name to its .onnx model. Empty names use the
// configured default; paths are returned as given.
func (p *PiperSynthesizer) ModelPath(voice string) string {
	if voice == "" {
		voice = p.config.Voice
	}
	if strings.ContainsRune(voice, filepath.Separator) || strings.HasSuffix(voice, ".onnx") {
		return voice
	}
	return filepath.Join(p.config.ModelsDir, voice+".onnx")
}

// ListVoices returns the models installed in ModelsDir.
func (p *PiperSynthesizer) ListVoices() ([]Voice, error) {
	files, err := os.ReadDir(p.config.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("read models dir: %w", err)
	}

	var voices []Voice
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".onnx" {
			continue
		}
		voices = append(voices, Voice{
			ID:   strings.TrimSuffix(file.Name(), ".onnx"),
			Path: filepath.Join(p.config.ModelsDir, file.Name()),
		})
	}
	sort.Slice(voices, func(i, j int) bool { return voices[i].ID < voices[j].ID })
	return voices, nil
}

var (
	boldPattern       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicPattern     = regexp.MustCompile(`\*([^*]+)\*`)
	codeBlockPattern  = regexp.MustCompile("(?s)```.*?```")
	inlineCodePattern = regexp.MustCompile("`[^`]+`")
	linkPattern       = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	bulletPattern     = regexp.MustCompile(`(?m)^\s*[-*•]\s+`)
	numberedPattern   = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	spacePattern      = regexp.MustCompile(`\s+`)
)

// Sanitize strips markdown that would otherwise be read aloud, mostly from
// chat replies, and collapses whitespace.
func Sanitize(text string) string {
	text = codeBlockPattern.ReplaceAllString(text, "")
	text = boldPattern.ReplaceAllString(text, "$1")
	text = italicPattern.ReplaceAllString(text, "$1")
	text = inlineCodePattern.ReplaceAllString(text, "")
	text = linkPattern.ReplaceAllString(text, "$1")
	text = bulletPattern.ReplaceAllString(text, "")
	text = numberedPattern.ReplaceAllString(text, "")
	text = spacePattern.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, "\\", "")
	return strings.TrimSpace(text)
}
