package attachments

import (
	"io"
	"os"
	"path/filepath"
)

// Storage reads and writes attachment bytes. The production implementation is
// a directory on local disk.
type Storage interface {
	Save(name string, r io.Reader) (int64, error)
	Open(name string) (io.ReadCloser, error)
	Remove(name string) error
}

type diskStorage struct {
	dir string
}

// NewDiskStorage stores files under dir, creating it if needed.
func NewDiskStorage(dir string) (Storage, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	return &diskStorage{dir: dir}, nil
}

func (s *diskStorage) Save(name string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(f.Name())
		return 0, err
	}
	return written, nil
}

func (s *diskStorage) Open(name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.dir, name))
}

func (s *diskStorage) Remove(name string) error {
	return os.Remove(filepath.Join(s.dir, name))
}
