// Package phoneme converts text into phoneme sequences using the
// piper_phonemize command line tool.
package phoneme

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/talkinghead/internal/errs"
	"github.com/normanking/talkinghead/internal/metrics"
	"github.com/normanking/talkinghead/internal/process"
)

var (
	ErrExtractionTimeout       = errors.New("phoneme extraction timed out")
	ErrExtractionProcessFailed = errors.New("phoneme extraction process failed")
	ErrExtractionParseFailed   = errors.New("phoneme extraction output could not be parsed")
)

// Symbol is one phoneme as reported by the phonemizer.
type Symbol struct {
	Symbol string `json:"symbol"`
	ID     int    `json:"id"`
}

// Config holds phonemizer settings.
type Config struct {
	BinaryPath string        `json:"binary_path"` // piper_phonemize executable
	DataPath   string        `json:"data_path"`   // espeak-ng-data directory
	Language   string        `json:"language"`    // espeak voice, e.g. en-us
	Timeout    time.Duration `json:"timeout"`
}

// DefaultConfig returns the phonemizer defaults.
func DefaultConfig() *Config {
	return &Config{
		BinaryPath: "piper_phonemize",
		DataPath:   "/usr/share/espeak-ng-data",
		Language:   "en-us",
		Timeout:    5 * time.Second,
	}
}

// output is the JSON document printed by piper_phonemize.
type output struct {
	Phonemes      []string `json:"phonemes"`
	PhonemeIDs    []int    `json:"phoneme_ids"`
	ProcessedText string   `json:"processed_text"`
	Text          string   `json:"text"`
}

// Extractor runs the phonemizer for each request.
type Extractor struct {
	logger     zerolog.Logger
	config     *Config
	binaryPath string
}

// NewExtractor creates an extractor. A bare binary name is resolved on PATH.
func NewExtractor(logger zerolog.Logger, config *Config) *Extractor {
	if config == nil {
		config = DefaultConfig()
	}
	e := &Extractor{
		logger:     logger.With().Str("component", "phonemizer").Logger(),
		config:     config,
		binaryPath: config.BinaryPath,
	}
	if !filepath.IsAbs(e.binaryPath) {
		if path, err := exec.LookPath(e.binaryPath); err == nil {
			e.binaryPath = path
		}
	}
	return e
}

// Extract returns the phonemes of text in output order. An empty language
// uses the configured default.
func (e *Extractor) Extract(ctx context.Context, text, language string) ([]Symbol, error) {
	if language == "" {
		language = e.config.Language
	}

	spec := process.Spec{
		Path:    e.binaryPath,
		Args:    []string{"-l", language, "--espeak_data", e.config.DataPath},
		Timeout: e.config.Timeout,
	}

	start := time.Now()
	res, err := process.Run(ctx, spec, []byte(text))
	metrics.ExtractionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		var (
			timeout *errs.TimeoutError
			exit    *errs.ExitError
			launch  *errs.LaunchError
		)
		switch {
		case errors.As(err, &timeout):
			return nil, fmt.Errorf("%w: %w", ErrExtractionTimeout, err)
		case errors.As(err, &exit), errors.As(err, &launch):
			return nil, fmt.Errorf("%w: %w", ErrExtractionProcessFailed, err)
		default:
			return nil, err
		}
	}

	symbols, err := Parse(res.Stdout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionParseFailed, err)
	}

	e.logger.Debug().
		Str("language", language).
		Int("phonemes", len(symbols)).
		Dur("duration", res.Duration).
		Msg("Extracted phonemes")

	return symbols, nil
}

// Parse decodes phonemizer output. IDs missing from a short phoneme_ids
// array are reported as 0.
func Parse(data []byte) ([]Symbol, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &errs.MalformedOutputError{Detail: "expected a JSON object"}
	}

	var out output
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, &errs.MalformedOutputError{Detail: "decode phonemizer JSON", Err: err}
	}

	symbols := make([]Symbol, len(out.Phonemes))
	for i, p := range out.Phonemes {
		symbols[i].Symbol = p
		if i < len(out.PhonemeIDs) {
			symbols[i].ID = out.PhonemeIDs[i]
		}
	}
	return symbols, nil
}
