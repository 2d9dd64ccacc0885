package testutil

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vanderheijden86/breathwork/pkg/model"
)

// WriteWAV writes a silent 16-bit mono WAV file of the given length.
func WriteWAV(t testing.TB, path string, sampleRate int, seconds float64) {
	t.Helper()
	dataBytes := uint32(float64(sampleRate)*seconds) * 2

	buf := make([]byte, 44+int(dataBytes))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], 36+dataBytes)
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate)*2)
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], dataBytes)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("create wav dir: %v", err)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
}

// WriteRecording writes name.wav into dir together with its events sidecar
// and returns the recording path.
func WriteRecording(t testing.TB, dir, name string, events []model.Event) string {
	t.Helper()
	path := filepath.Join(dir, name+".wav")
	seconds := 1.0
	if len(events) > 0 {
		seconds = events[len(events)-1].End
	}
	WriteWAV(t, path, 8000, seconds)
	sidecar := strings.TrimSuffix(path, ".wav") + ".events.jsonl"
	if err := os.WriteFile(sidecar, []byte(ToJSONL(events)), 0644); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}
	return path
}
