package core

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"bkz/pkg/codec"
	"bkz/pkg/event"
)

const testBlockSize = codec.MinBlockSize

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTestFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func patterned(size int) []byte {
	content := make([]byte, size)
	for i := range content {
		content[i] = byte(i % 251)
	}
	return content
}

// decompressFile decodes a container with the codec reader.
func decompressFile(t *testing.T, path string) []byte {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open container %s: %v", path, err)
	}
	defer f.Close()
	return decompress(t, f)
}

func decompress(t *testing.T, r io.Reader) []byte {
	t.Helper()
	zr, err := codec.NewReader(r)
	if err != nil {
		t.Fatalf("failed to read container header: %v", err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("failed to decode container: %v", err)
	}
	return data
}

// chdirTemp moves into a fresh directory for tests using relative names.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change working directory: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

func taskConfig(input, output string) TaskConfig {
	return TaskConfig{
		Input:     input,
		Output:    output,
		Codec:     "LZ4",
		Transform: "DELTA",
		BlockSize: testBlockSize,
		Checksum:  true,
		Jobs:      1,
		Logger:    discardLogger(),
	}
}

// recorder counts file level events; it is shared by concurrent tasks.
type recorder struct {
	mu     sync.Mutex
	starts []string
	ends   map[string]int64
}

func newRecorder() *recorder {
	return &recorder{ends: make(map[string]int64)}
}

func (r *recorder) ProcessEvent(evt *event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch evt.Type {
	case event.CompressionStart:
		r.starts = append(r.starts, evt.Source)
	case event.CompressionEnd:
		if _, dup := r.ends[evt.Source]; dup {
			r.ends[evt.Source+"#dup"] = evt.Size
			return
		}
		r.ends[evt.Source] = evt.Size
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}

type failingReader struct {
	data []byte
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, errors.New("device error")
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

// panickingReader serves one chunk and then panics.
type panickingReader struct {
	served bool
}

func (r *panickingReader) Read(p []byte) (int, error) {
	if r.served {
		panic("reader exploded")
	}
	r.served = true
	return copy(p, patterned(100)), nil
}
