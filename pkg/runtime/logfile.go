package runtime

import (
	"io"
	"os"
	"path/filepath"
)

// openLogFile opens a container's combined stdout/stderr log for
// reading. Returns an empty reader rather than an error if the
// container has not produced a log yet.
func openLogFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return io.NopCloser(emptyReader{}), nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func ensureLogDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0700)
}

type emptyReader struct{}

func (emptyReader) Read(p []byte) (int, error) { return 0, io.EOF }
