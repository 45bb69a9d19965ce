package phoneme

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/talkinghead/internal/errs"
	"github.com/normanking/talkinghead/internal/testutil"
)

func newTestExtractor(binary string, timeout time.Duration) *Extractor {
	cfg := DefaultConfig()
	cfg.BinaryPath = binary
	cfg.DataPath = "/data/espeak"
	cfg.Timeout = timeout
	return NewExtractor(zerolog.Nop(), cfg)
}

func TestParse(t *testing.T) {
	symbols, err := Parse([]byte(`{"phonemes":["h","ə","l","oʊ"],"phoneme_ids":[20,59,24,27],"processed_text":"hello","text":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, []Symbol{{"h", 20}, {"ə", 59}, {"l", 24}, {"oʊ", 27}}, symbols)
}

func TestParseShortIDs(t *testing.T) {
	symbols, err := Parse([]byte(`{"phonemes":["a","b","c"],"phoneme_ids":[7]}`))
	require.NoError(t, err)
	assert.Equal(t, []Symbol{{"a", 7}, {"b", 0}, {"c", 0}}, symbols)
}

func TestParseEmpty(t *testing.T) {
	symbols, err := Parse([]byte(`{"phonemes":[],"phoneme_ids":[]}`))
	require.NoError(t, err)
	assert.Empty(t, symbols)
}

func TestParseMalformed(t *testing.T) {
	for _, input := range []string{``, `not json`, `["a","b"]`, `null`, `{"phonemes":"abc"}`, `{"phonemes":[`} {
		_, err := Parse([]byte(input))
		var malformed *errs.MalformedOutputError
		assert.True(t, errors.As(err, &malformed), "input %q", input)
	}
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	bin := testutil.WriteScript(t, dir, "piper_phonemize", `echo "$@" > "`+filepath.Join(dir, "args")+`"
cat > "`+filepath.Join(dir, "stdin")+`"
echo '{"phonemes":["w","ʌ","n"],"phoneme_ids":[1,2,3],"processed_text":"one","text":"one"}'`)

	e := newTestExtractor(bin, 5*time.Second)
	symbols, err := e.Extract(context.Background(), "one", "")
	require.NoError(t, err)
	assert.Equal(t, []Symbol{{"w", 1}, {"ʌ", 2}, {"n", 3}}, symbols)

	args, err := os.ReadFile(filepath.Join(dir, "args"))
	require.NoError(t, err)
	assert.Equal(t, "-l en-us --espeak_data /data/espeak", strings.TrimSpace(string(args)))

	stdin, err := os.ReadFile(filepath.Join(dir, "stdin"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(stdin))
}

func TestExtractLanguageOverride(t *testing.T) {
	dir := t.TempDir()
	bin := testutil.WriteScript(t, dir, "piper_phonemize", `cat >/dev/null
echo "{\"phonemes\":[\"$2\"]}"`)

	e := newTestExtractor(bin, 5*time.Second)
	symbols, err := e.Extract(context.Background(), "hallo", "de")
	require.NoError(t, err)
	assert.Equal(t, []Symbol{{"de", 0}}, symbols)
}

func TestExtractTimeout(t *testing.T) {
	dir := t.TempDir()
	bin := testutil.WriteScript(t, dir, "piper_phonemize", "exec sleep 30")

	e := newTestExtractor(bin, 200*time.Millisecond)
	_, err := e.Extract(context.Background(), "hello", "")
	assert.ErrorIs(t, err, ErrExtractionTimeout)

	var timeout *errs.TimeoutError
	assert.True(t, errors.As(err, &timeout))
}

func TestExtractProcessFailed(t *testing.T) {
	dir := t.TempDir()
	bin := testutil.WriteScript(t, dir, "piper_phonemize", "cat >/dev/null\necho 'no voice' >&2\nexit 2")

	e := newTestExtractor(bin, 5*time.Second)
	_, err := e.Extract(context.Background(), "hello", "")
	require.ErrorIs(t, err, ErrExtractionProcessFailed)

	var exit *errs.ExitError
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, 2, exit.Code)
	assert.Equal(t, "no voice", exit.Stderr)
}

func TestExtractMissingBinary(t *testing.T) {
	e := newTestExtractor("/nonexistent/piper_phonemize", time.Second)
	_, err := e.Extract(context.Background(), "hello", "")
	assert.ErrorIs(t, err, ErrExtractionProcessFailed)
}

func TestExtractParseFailed(t *testing.T) {
	dir := t.TempDir()
	bin := testutil.FakePhonemizer(t, dir, `[1, 2, 3]`)

	e := newTestExtractor(bin, 5*time.Second)
	_, err := e.Extract(context.Background(), "hello", "")
	assert.ErrorIs(t, err, ErrExtractionParseFailed)
}

func TestExtractCanceled(t *testing.T) {
	dir := t.TempDir()
	bin := testutil.WriteScript(t, dir, "piper_phonemize", "exec sleep 30")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newTestExtractor(bin, 5*time.Second)
	_, err := e.Extract(ctx, "hello", "")
	assert.ErrorIs(t, err, context.Canceled)
}
