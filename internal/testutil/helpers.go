// Package testutil holds fixtures shared by package tests: WAV payloads and
// fake external programs.
package testutil

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"
)

// WAVHeaderSize is the size of the canonical PCM header written by GenerateWAV.
const WAVHeaderSize = 44

// GenerateWAV builds a silent mono 16-bit PCM WAV of the given duration.
func GenerateWAV(t *testing.T, sampleRate int, duration time.Duration) []byte {
	t.Helper()

	const (
		channels      = 1
		bitsPerSample = 16
	)
	blockAlign := channels * bitsPerSample / 8
	numSamples := int(duration.Seconds() * float64(sampleRate))
	dataSize := numSamples * blockAlign

	buf := make([]byte, WAVHeaderSize+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(WAVHeaderSize+dataSize-8))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	return buf
}

// WriteWAV writes a silent WAV into dir and returns its path.
func WriteWAV(t *testing.T, dir string, sampleRate int, duration time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, "fixture.wav")
	if err := os.WriteFile(path, GenerateWAV(t, sampleRate, duration), 0o644); err != nil {
		t.Fatalf("write wav fixture: %v", err)
	}
	return path
}

// RequireShell skips tests that drive fake programs written as sh scripts.
func RequireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake programs are POSIX shell scripts")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

// WriteScript writes an executable sh script named name into dir.
func WriteScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	RequireShell(t)

	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script %s: %v", name, err)
	}
	return path
}

// FakePhonemizer returns a script that swallows stdin and prints output.
func FakePhonemizer(t *testing.T, dir, output string) string {
	t.Helper()
	return WriteScript(t, dir, "piper_phonemize", "cat >/dev/null\ncat <<'JSON'\n"+output+"\nJSON")
}

// FakePiper returns a script that behaves like the piper CLI: it reads text
// from stdin and writes a silent WAV of dataBytes PCM bytes to the path given
// by --output_file. Its arguments are recorded in <dir>/piper.args.
func FakePiper(t *testing.T, dir string, dataBytes int) string {
	t.Helper()
	body := `out=""
echo "$@" > "` + filepath.Join(dir, "piper.args") + `"
while [ $# -gt 0 ]; do
  if [ "$1" = "--output_file" ]; then out="$2"; fi
  shift
done
cat >/dev/null
head -c ` + strconv.Itoa(WAVHeaderSize+dataBytes) + ` /dev/zero > "$out"`
	return WriteScript(t, dir, "piper", body)
}
