package importer

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// ReadRoutineFile returns the contents of a routine file, transparently
// decompressing names ending in .gz.
func ReadRoutineFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if !strings.HasSuffix(strings.ToLower(path), ".gz") {
		return io.ReadAll(f)
	}

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("gzip header %s: %w", path, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gzip decode %s: %w", path, err)
	}
	return data, nil
}
