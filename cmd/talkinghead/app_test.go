package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/talkinghead/internal/config"
	"github.com/normanking/talkinghead/internal/personality"
)

func TestLoadPersonalitiesMissingDir(t *testing.T) {
	m := loadPersonalities(zerolog.Nop(), config.PersonalityConfig{
		Dir: filepath.Join(t.TempDir(), "absent"),
	})
	assert.Equal(t, personality.DefaultName, m.Current().Name)
}

func TestLoadPersonalitiesSelectsConfiguredName(t *testing.T) {
	dir := t.TempDir()
	record := `{"name": "Pirate", "description": "Arr", "system_prompt": "Talk like a pirate.", "default_emotion": "happy"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pirate.json"), []byte(record), 0o644))

	m := loadPersonalities(zerolog.Nop(), config.PersonalityConfig{Dir: dir, Name: "Pirate"})
	assert.Equal(t, "Pirate", m.Current().Name)
	assert.Contains(t, m.Names(), personality.DefaultName)
}

func TestLoadPersonalitiesUnknownNameKeepsDefault(t *testing.T) {
	m := loadPersonalities(zerolog.Nop(), config.PersonalityConfig{Name: "Nobody"})
	assert.Equal(t, personality.DefaultName, m.Current().Name)
}
