package tts

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

// newTestSynthesizer returns a synthesizer using binary and a fake model file.
func newTestSynthesizer(t *testing.T, binary string, timeout time.Duration) (*PiperSynthesizer, string) {
	t.Helper()
	dir := t.TempDir()
	models := filepath.Join(dir, "voices")
	require.NoError(t, os.MkdirAll(models, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(models, "en_US-amy-medium.onnx"), []byte("onnx"), 0o644))

	out := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(out, 0o755))

	return NewPiperSynthesizer(zerolog.Nop(), &Config{
		BinaryPath: binary,
		ModelsDir:  models,
		Voice:      "en_US-amy-medium",
		OutputDir:  out,
		Timeout:    timeout,
	}), out
}

func assertNoWAVFiles(t *testing.T, dir string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.wav"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temporary WAV files left behind")
}

func TestDurationFromSize(t *testing.T) {
	assert.Equal(t, 0.0, DurationFromSize(0))
	assert.Equal(t, 0.0, DurationFromSize(44))
	assert.InDelta(t, 1.0, DurationFromSize(44+44100), 1e-12)
	assert.InDelta(t, 0.5, DurationFromSize(44+22050), 1e-12)
}

func TestLengthScale(t *testing.T) {
	_, ok := VoiceConfig{Speed: 1.0}.LengthScale()
	assert.False(t, ok)

	_, ok = VoiceConfig{}.LengthScale()
	assert.False(t, ok)

	scale, ok := VoiceConfig{Speed: 2.0}.LengthScale()
	assert.True(t, ok)
	assert.Equal(t, 0.5, scale)
}

func TestSynthesize(t *testing.T) {
	binDir := t.TempDir()
	bin := testutil.FakePiper(t, binDir, 44100)
	synth, out := newTestSynthesizer(t, bin, 5*time.Second)

	asset, err := synth.Synthesize(context.Background(), "abc", "Hello there.", VoiceConfig{Speed: 1.0})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(out, "talkinghead-abc.wav"), asset.Path)
	assert.Equal(t, int64(44+44100), asset.Size)
	assert.InDelta(t, 1.0, asset.Duration, 1e-9)
	assert.Equal(t, SampleRate, asset.SampleRate)

	args, err := os.ReadFile(filepath.Join(binDir, "piper.args"))
	require.NoError(t, err)
	assert.NotContains(t, string(args), "--length_scale")
	assert.Contains(t, string(args), "--model "+synth.ModelPath(""))

	require.NoError(t, asset.Release())
	require.NoError(t, asset.Release())
	assertNoWAVFiles(t, out)
}

func TestSynthesizeLengthScale(t *testing.T) {
	binDir := t.TempDir()
	bin := testutil.FakePiper(t, binDir, 100)
	synth, _ := newTestSynthesizer(t, bin, 5*time.Second)

	asset, err := synth.Synthesize(context.Background(), "", "Fast.", VoiceConfig{Speed: 2.0})
	require.NoError(t, err)
	defer asset.Release()

	args, err := os.ReadFile(filepath.Join(binDir, "piper.args"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(string(args)), "--length_scale 0.5"), string(args))
}

func TestSynthesizeMissingModel(t *testing.T) {
	binDir := t.TempDir()
	bin := testutil.FakePiper(t, binDir, 100)
	synth, out := newTestSynthesizer(t, bin, 5*time.Second)

	_, err := synth.Synthesize(context.Background(), "s1", "Hello.", VoiceConfig{Voice: "missing-voice"})
	require.ErrorIs(t, err, ErrSynthesisFailed)

	var missing *errs.ResourceMissingError
	require.True(t, errors.As(err, &missing))
	assert.True(t, strings.HasSuffix(missing.Path, "missing-voice.onnx"))
	assertNoWAVFiles(t, out)
}

func TestSynthesizeExitFailure(t *testing.T) {
	binDir := t.TempDir()
	bin := testutil.WriteScript(t, binDir, "piper", `while [ $# -gt 0 ]; do
  if [ "$1" = "--output_file" ]; then out="$2"; fi
  shift
done
cat >/dev/null
head -c 100 /dev/zero > "$out"
echo "onnx runtime error" >&2
exit 1`)
	synth, out := newTestSynthesizer(t, bin, 5*time.Second)

	_, err := synth.Synthesize(context.Background(), "s1", "Hello.", VoiceConfig{})
	require.ErrorIs(t, err, ErrSynthesisFailed)

	var exit *errs.ExitError
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, 1, exit.Code)
	assertNoWAVFiles(t, out)
}

func TestSynthesizeMissingOutput(t *testing.T) {
	binDir := t.TempDir()
	bin := testutil.WriteScript(t, binDir, "piper", "cat >/dev/null")
	synth, out := newTestSynthesizer(t, bin, 5*time.Second)

	_, err := synth.Synthesize(context.Background(), "s1", "Hello.", VoiceConfig{})
	require.ErrorIs(t, err, ErrSynthesisFailed)

	var missing *errs.ResourceMissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, filepath.Join(out, "talkinghead-s1.wav"), missing.Path)
}

func TestSynthesizeTimeout(t *testing.T) {
	binDir := t.TempDir()
	bin := testutil.WriteScript(t, binDir, "piper", "exec sleep 30")
	synth, out := newTestSynthesizer(t, bin, 200*time.Millisecond)

	_, err := synth.Synthesize(context.Background(), "s1", "Hello.", VoiceConfig{})
	assert.ErrorIs(t, err, ErrSynthesisTimeout)
	assertNoWAVFiles(t, out)
}

func TestListVoices(t *testing.T) {
	synth, _ := newTestSynthesizer(t, "piper", time.Second)
	require.NoError(t, os.WriteFile(filepath.Join(synth.config.ModelsDir, "de_DE-thorsten-low.onnx"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(synth.config.ModelsDir, "de_DE-thorsten-low.onnx.json"), nil, 0o644))

	voices, err := synth.ListVoices()
	require.NoError(t, err)
	require.Len(t, voices, 2)
	assert.Equal(t, "de_DE-thorsten-low", voices[0].ID)
	assert.Equal(t, "en_US-amy-medium", voices[1].ID)
}

func TestModelPath(t *testing.T) {
	synth := NewPiperSynthesizer(zerolog.Nop(), &Config{ModelsDir: "/voices", Voice: "amy"})
	assert.Equal(t, filepath.Join("/voices", "amy.onnx"), synth.ModelPath(""))
	assert.Equal(t, filepath.Join("/voices", "lessac.onnx"), synth.ModelPath("lessac"))
	assert.Equal(t, "/models/custom.onnx", synth.ModelPath("/models/custom.onnx"))
}

func TestSanitize(t *testing.T) {
	in := "**Hello** there!\n\n- first *point*\n1. see [docs](http://x)\n```go\ncode\n```\nUse `fmt`."
	assert.Equal(t, "Hello there! first point see docs Use .", Sanitize(in))
	assert.Equal(t, "", Sanitize("   \n\t"))
}
