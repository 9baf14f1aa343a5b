package api

import (
	"io"
	"os"
)

// exportFile streams a scratch export dump and removes it once the
// caller is done reading, so a GET /export never leaves stray files
// under the instance's volume.
type exportFile struct {
	f    *os.File
	path string
}

func newExportFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &exportFile{f: f, path: path}, nil
}

func (e *exportFile) Read(p []byte) (int, error) { return e.f.Read(p) }

func (e *exportFile) Close() error {
	closeErr := e.f.Close()
	if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return closeErr
}
