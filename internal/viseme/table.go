// Package viseme maps phoneme symbols to mouth shapes.
//
// Tables are immutable once parsed. Reloading builds a new table and swaps
// it into a Store as a whole.
package viseme

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/normanking/talkinghead/internal/errs"
)

// SilenceName is the viseme every failed lookup resolves to.
const SilenceName = "silence"

//go:embed default_mapping.json
var defaultMapping []byte

// Viseme is one mouth shape. Parameters are in [0, 1].
type Viseme struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	MouthWidth  float64 `json:"mouth_width"`
	MouthHeight float64 `json:"mouth_height"`
	JawOpen     float64 `json:"jaw_open"`
}

// Silence is the rest pose used when a document does not define one.
func Silence() Viseme {
	return Viseme{ID: 0, Name: SilenceName, Description: "Rest position"}
}

// Table resolves phoneme symbols to visemes.
type Table struct {
	visemes  map[string]Viseme
	phonemes map[string]string
}

// Parse builds a table from a mapping document. Missing or malformed fields
// default to zero values; only a document that is not a JSON object fails.
func Parse(data []byte) (*Table, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &errs.MalformedOutputError{Detail: "viseme mapping must be a JSON object"}
	}

	var doc struct {
		Visemes         json.RawMessage `json:"visemes"`
		PhonemeToViseme json.RawMessage `json:"phoneme_to_viseme"`
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, &errs.MalformedOutputError{Detail: "decode viseme mapping", Err: err}
	}

	t := &Table{
		visemes:  map[string]Viseme{SilenceName: Silence()},
		phonemes: map[string]string{"": SilenceName, " ": SilenceName},
	}

	var defs map[string]json.RawMessage
	_ = json.Unmarshal(doc.Visemes, &defs)
	for name, raw := range defs {
		var def struct {
			ID          number `json:"id"`
			Description text   `json:"description"`
			MouthWidth  number `json:"mouth_width"`
			MouthHeight number `json:"mouth_height"`
			JawOpen     number `json:"jaw_open"`
		}
		_ = json.Unmarshal(raw, &def)
		t.visemes[name] = Viseme{
			ID:          int(def.ID),
			Name:        name,
			Description: string(def.Description),
			MouthWidth:  float64(def.MouthWidth),
			MouthHeight: float64(def.MouthHeight),
			JawOpen:     float64(def.JawOpen),
		}
	}

	var mapping map[string]text
	_ = json.Unmarshal(doc.PhonemeToViseme, &mapping)
	for symbol, name := range mapping {
		t.phonemes[symbol] = string(name)
	}

	return t, nil
}

// LoadFile parses the mapping document at path.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read viseme mapping %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the built-in mapping for espeak IPA phonemes.
func Default() *Table {
	t, err := Parse(defaultMapping)
	if err != nil {
		panic("viseme: embedded mapping is invalid: " + err.Error())
	}
	return t
}

// Resolve looks symbol up through the phoneme and viseme maps. ok is false
// when the lookup fell back to silence.
func (t *Table) Resolve(symbol string) (v Viseme, ok bool) {
	name, found := t.phonemes[symbol]
	if !found {
		return t.Silence(), false
	}
	v, found = t.visemes[name]
	if !found {
		return t.Silence(), false
	}
	return v, true
}

// VisemeFor returns the viseme for symbol, or silence if it cannot be
// resolved.
func (t *Table) VisemeFor(symbol string) Viseme {
	v, _ := t.Resolve(symbol)
	return v
}

// Viseme returns the named viseme.
func (t *Table) Viseme(name string) (Viseme, bool) {
	v, ok := t.visemes[name]
	return v, ok
}

// Silence returns the table's silence viseme.
func (t *Table) Silence() Viseme {
	return t.visemes[SilenceName]
}

// Size reports the number of visemes and phoneme mappings.
func (t *Table) Size() (visemes, phonemes int) {
	return len(t.visemes), len(t.phonemes)
}

// number decodes any JSON number and turns everything else into 0.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err == nil {
		if f, ok := v.(float64); ok {
			*n = number(f)
			return nil
		}
	}
	*n = 0
	return nil
}

// text decodes a JSON string and turns everything else into "".
type text string

func (s *text) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err == nil {
		if str, ok := v.(string); ok {
			*s = text(str)
			return nil
		}
	}
	*s = ""
	return nil
}
