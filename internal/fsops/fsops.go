package fsops

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// FS is the abstract filesystem shared by the session store and the dataset
// cache, so tests can run against an in-memory implementation.
type FS interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	Append(name string, data []byte, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
	Stat(name string) (fs.FileInfo, error)

	Join(elem ...string) string
}

// ---------- OS-backed implementation ----------

type OS struct{}

func NewOS() OS { return OS{} }

func (OS) ReadFile(name string) ([]byte, error) { return os.ReadFile(filepath.Clean(name)) }
func (OS) WriteFile(name string, b []byte, p os.FileMode) error {
	return os.WriteFile(filepath.Clean(name), b, p)
}
func (OS) Append(name string, b []byte, p os.FileMode) error {
	handle, err := os.OpenFile(filepath.Clean(name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, p)
	if err != nil {
		return err
	}
	if _, writeErr := handle.Write(b); writeErr != nil {
		_ = handle.Close()
		return writeErr
	}
	return handle.Close()
}
func (OS) MkdirAll(path string, p os.FileMode) error { return os.MkdirAll(filepath.Clean(path), p) }
func (OS) Stat(name string) (fs.FileInfo, error)     { return os.Stat(filepath.Clean(name)) }
func (OS) Join(elem ...string) string                { return filepath.Join(elem...) }

// ---------- In-memory implementation (for tests) ----------

type Mem struct{ Fs afero.Fs }

func NewMem() Mem { return Mem{Fs: afero.NewMemMapFs()} }

func (m Mem) ReadFile(name string) ([]byte, error) { return afero.ReadFile(m.Fs, filepath.Clean(name)) }
func (m Mem) WriteFile(name string, b []byte, p os.FileMode) error {
	return afero.WriteFile(m.Fs, filepath.Clean(name), b, p)
}
func (m Mem) Append(name string, b []byte, p os.FileMode) error {
	handle, err := m.Fs.OpenFile(filepath.Clean(name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, p)
	if err != nil {
		return err
	}
	if _, writeErr := handle.Write(b); writeErr != nil {
		_ = handle.Close()
		return writeErr
	}
	return handle.Close()
}
func (m Mem) MkdirAll(path string, p os.FileMode) error {
	return m.Fs.MkdirAll(filepath.Clean(path), p)
}
func (m Mem) Stat(name string) (fs.FileInfo, error) { return m.Fs.Stat(filepath.Clean(name)) }
func (Mem) Join(elem ...string) string              { return filepath.Join(elem...) }
