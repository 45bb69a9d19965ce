package personality

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/talkinghead/internal/emotion"
	"github.com/normanking/talkinghead/internal/errs"
)

func writeRecord(t *testing.T, dir, file, doc string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(doc), 0o644))
}

func TestParseDefaultsTraits(t *testing.T) {
	p, err := Parse([]byte(`{"name": "Pirate", "default_emotion": "Happy", "personality_traits": {"humor": 0.9}}`))
	require.NoError(t, err)

	assert.Equal(t, "Pirate", p.Name)
	assert.Equal(t, emotion.Happy, p.DefaultEmotion)
	assert.Equal(t, Traits{Warmth: 0.5, Formality: 0.5, Verbosity: 0.5, Humor: 0.9}, p.Traits)
}

func TestParseUnknownEmotionIsNeutral(t *testing.T) {
	p, err := Parse([]byte(`{"name": "Grump", "default_emotion": "grumpy"}`))
	require.NoError(t, err)
	assert.Equal(t, emotion.Neutral, p.DefaultEmotion)
}

func TestParseRejectsInvalid(t *testing.T) {
	_, err := Parse([]byte(`[1, 2]`))
	var malformed *errs.MalformedOutputError
	assert.ErrorAs(t, err, &malformed)

	_, err = Parse([]byte(`{"description": "nameless"}`))
	assert.ErrorAs(t, err, &malformed)
}

func TestBuiltinsSelectFriendly(t *testing.T) {
	m := NewManager(zerolog.Nop())

	assert.Equal(t, []string{"Friendly", "Professional", "Thinker"}, m.Names())
	current := m.Current()
	assert.Equal(t, DefaultName, current.Name)
	assert.Equal(t, emotion.Happy, current.DefaultEmotion)
	assert.NotEmpty(t, current.SystemPrompt)

	thinker, ok := m.Get("Thinker")
	require.True(t, ok)
	assert.Equal(t, 0.5, thinker.Traits.Humor)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeRecord(t, dir, "a.json", `{"name": "Friendly", "system_prompt": "custom friendly"}`)
	writeRecord(t, dir, "b.json", `{"name": "Zen", "default_emotion": "thoughtful"}`)
	writeRecord(t, dir, "broken.json", `{not json`)
	writeRecord(t, dir, "notes.txt", `ignored`)

	m := NewManager(zerolog.Nop())
	n, err := m.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Contains(t, m.Names(), "Zen")
	assert.Equal(t, "custom friendly", m.Current().SystemPrompt)
}

func TestLoadDirMissing(t *testing.T) {
	m := NewManager(zerolog.Nop())
	_, err := m.LoadDir(filepath.Join(t.TempDir(), "nope"))

	var missing *errs.ResourceMissingError
	assert.ErrorAs(t, err, &missing)
	assert.Equal(t, DefaultName, m.Current().Name, "selection unchanged")
}

func TestLoadDirEmpty(t *testing.T) {
	m := NewManager(zerolog.Nop())
	_, err := m.LoadDir(t.TempDir())
	assert.ErrorIs(t, err, ErrNoPersonalities)
}

func TestSelect(t *testing.T) {
	m := NewManager(zerolog.Nop())

	require.NoError(t, m.Select("Professional"))
	assert.Equal(t, "Professional", m.Current().Name)

	err := m.Select("Nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "Professional", m.Current().Name)
}

func TestFirstByNameWithoutFriendly(t *testing.T) {
	m := &Manager{logger: zerolog.Nop(), personalities: map[string]Personality{}}
	assert.Equal(t, "Unknown", m.Current().Name)

	dir := t.TempDir()
	writeRecord(t, dir, "z.json", `{"name": "Zed"}`)
	writeRecord(t, dir, "b.json", `{"name": "Bea"}`)
	_, err := m.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "Bea", m.Current().Name)
}
