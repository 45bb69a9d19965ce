// Package personality loads the character records that shape chat replies
// and the avatar's resting expression.
package personality

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/talkinghead/internal/emotion"
	"github.com/normanking/talkinghead/internal/errs"
)

// DefaultName is selected whenever it is available.
const DefaultName = "Friendly"

// defaultTrait is used for traits a record leaves out.
const defaultTrait = 0.5

var (
	ErrNotFound        = errors.New("personality not found")
	ErrNoPersonalities = errors.New("no personality files found")
)

//go:embed builtin/*.json
var builtin embed.FS

// Traits are tuning values in [0,1].
type Traits struct {
	Warmth    float64 `json:"warmth"`
	Formality float64 `json:"formality"`
	Verbosity float64 `json:"verbosity"`
	Humor     float64 `json:"humor"`
}

// Personality is one character record.
type Personality struct {
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	SystemPrompt   string        `json:"system_prompt"`
	VoiceStyle     string        `json:"voice_style"`
	DefaultEmotion emotion.Label `json:"default_emotion"`
	Traits         Traits        `json:"personality_traits"`
}

// Fallback is returned when nothing has been loaded.
func Fallback() Personality {
	return Personality{
		Name:           "Unknown",
		Description:    "Unknown personality",
		SystemPrompt:   "You are a helpful assistant.",
		DefaultEmotion: emotion.Neutral,
		Traits:         Traits{defaultTrait, defaultTrait, defaultTrait, defaultTrait},
	}
}

type record struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	SystemPrompt   string `json:"system_prompt"`
	VoiceStyle     string `json:"voice_style"`
	DefaultEmotion string `json:"default_emotion"`
	Traits         struct {
		Warmth    *float64 `json:"warmth"`
		Formality *float64 `json:"formality"`
		Verbosity *float64 `json:"verbosity"`
		Humor     *float64 `json:"humor"`
	} `json:"personality_traits"`
}

func trait(v *float64) float64 {
	if v == nil {
		return defaultTrait
	}
	return *v
}

// Parse decodes one personality record. Missing traits default to 0.5 and an
// unknown default emotion reads as neutral.
func Parse(data []byte) (Personality, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return Personality{}, &errs.MalformedOutputError{Detail: "personality is not a JSON object", Err: err}
	}
	if strings.TrimSpace(r.Name) == "" {
		return Personality{}, &errs.MalformedOutputError{Detail: "personality has no name"}
	}
	label, _ := emotion.Parse(r.DefaultEmotion)
	return Personality{
		Name:           r.Name,
		Description:    r.Description,
		SystemPrompt:   r.SystemPrompt,
		VoiceStyle:     r.VoiceStyle,
		DefaultEmotion: label,
		Traits: Traits{
			Warmth:    trait(r.Traits.Warmth),
			Formality: trait(r.Traits.Formality),
			Verbosity: trait(r.Traits.Verbosity),
			Humor:     trait(r.Traits.Humor),
		},
	}, nil
}

// Manager holds the loaded personalities and the current selection.
type Manager struct {
	logger zerolog.Logger

	mu            sync.RWMutex
	personalities map[string]Personality
	current       string
}

// NewManager creates a manager preloaded with the built-in personalities.
func NewManager(logger zerolog.Logger) *Manager {
	m := &Manager{
		logger:        logger.With().Str("component", "personality").Logger(),
		personalities: make(map[string]Personality),
	}
	if _, err := m.load(builtin, "builtin"); err != nil {
		m.logger.Error().Err(err).Msg("Failed to load built-in personalities")
	}
	m.selectDefault()
	return m
}

// LoadDir adds every *.json record in dir, replacing records with the same
// name, then selects the default. Invalid files are skipped with a warning.
func (m *Manager) LoadDir(dir string) (int, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return 0, &errs.ResourceMissingError{Path: dir}
	}
	n, err := m.load(os.DirFS(dir), ".")
	if err != nil {
		return 0, err
	}
	m.logger.Info().Str("dir", dir).Int("count", n).Msg("Loaded personalities")
	m.selectDefault()
	return n, nil
}

func (m *Manager) load(fsys fs.FS, dir string) (int, error) {
	files, err := fs.Glob(fsys, filepath.ToSlash(filepath.Join(dir, "*.json")))
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, ErrNoPersonalities
	}

	loaded := 0
	for _, name := range files {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			m.logger.Warn().Err(err).Str("file", name).Msg("Failed to read personality file")
			continue
		}
		p, err := Parse(data)
		if err != nil {
			m.logger.Warn().Err(err).Str("file", name).Msg("Invalid personality file")
			continue
		}

		m.mu.Lock()
		m.personalities[p.Name] = p
		m.mu.Unlock()
		loaded++
		m.logger.Debug().Str("name", p.Name).Str("description", p.Description).Msg("Loaded personality")
	}
	if loaded == 0 {
		return 0, ErrNoPersonalities
	}
	return loaded, nil
}

func (m *Manager) selectDefault() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.personalities[DefaultName]; ok {
		m.current = DefaultName
		return
	}
	names := m.namesLocked()
	if len(names) > 0 {
		m.current = names[0]
	}
}

func (m *Manager) namesLocked() []string {
	names := make([]string, 0, len(m.personalities))
	for name := range m.personalities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Names lists the available personalities in name order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.namesLocked()
}

// Get returns the personality called name.
func (m *Manager) Get(name string) (Personality, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.personalities[name]
	return p, ok
}

// Select makes name the current personality.
func (m *Manager) Select(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.personalities[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	m.current = name
	m.logger.Info().Str("name", name).Msg("Switched personality")
	return nil
}

// Current returns the selected personality, or Fallback when none is loaded.
func (m *Manager) Current() Personality {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.personalities[m.current]; ok {
		return p
	}
	return Fallback()
}
