// Package tts synthesizes speech audio with the Piper command line tool and
// tracks the temporary WAV files it produces.
package tts

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	ErrSynthesisTimeout = errors.New("speech synthesis timed out")
	ErrSynthesisFailed  = errors.New("speech synthesis failed")
)

// Piper writes mono 16-bit PCM at 22050 Hz behind a canonical 44 byte header.
const (
	SampleRate     = 22050
	BytesPerSample = 2
	HeaderSize     = 44
)

// Config holds Piper settings.
type Config struct {
	BinaryPath string        `json:"binary_path"` // piper executable
	ModelsDir  string        `json:"models_dir"`  // directory containing .onnx voices
	Voice      string        `json:"voice"`       // default voice name or model path
	OutputDir  string        `json:"output_dir"`  // temp WAV location, empty for os.TempDir
	Timeout    time.Duration `json:"timeout"`
}

// DefaultConfig returns Piper defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		BinaryPath: "piper",
		ModelsDir:  filepath.Join(homeDir, ".talkinghead", "voices"),
		Voice:      "en_US-amy-medium",
		Timeout:    30 * time.Second,
	}
}

// VoiceConfig selects the voice for one request.
type VoiceConfig struct {
	Voice string  `json:"voice"` // voice name in ModelsDir or a model path
	Speed float64 `json:"speed"` // 1.0 is normal, larger is faster
}

// LengthScale is the Piper length scale for speed, and whether it must be
// passed at all.
func (v VoiceConfig) LengthScale() (float64, bool) {
	if v.Speed <= 0 || v.Speed == 1.0 {
		return 1.0, false
	}
	return 1.0 / v.Speed, true
}

// Voice describes an installed Piper model.
type Voice struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// Asset is a synthesized WAV file owned by one session.
type Asset struct {
	Path       string
	Size       int64
	Duration   float64 // seconds
	SampleRate int

	releaseOnce sync.Once
	releaseErr  error
}

// Release removes the WAV file. Safe to call more than once.
func (a *Asset) Release() error {
	a.releaseOnce.Do(func() {
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			a.releaseErr = err
		}
	})
	return a.releaseErr
}

// DurationFromSize derives the playback length of a Piper WAV from its size.
// Header fields are not trusted.
func DurationFromSize(size int64) float64 {
	if size <= HeaderSize {
		return 0
	}
	return float64(size-HeaderSize) / float64(SampleRate*BytesPerSample)
}
