package testsupport

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// WritePattern fills path with size bytes of a repeating pattern, creating
// parent directories. A size <= 0 writes a single byte. It is safe to call
// from fake engines running off the test goroutine.
func WritePattern(path string, size int64) error {
	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", path, err)
	}
	return os.WriteFile(path, bytes.Repeat([]byte{0x42}, int(size)), 0o644)
}

// WriteFile is WritePattern that fails the test on error.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()
	if err := WritePattern(path, size); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
