package fsops

import (
	"errors"
	"io/fs"
	"os"
)

// OSDeleter implements Deleter using real os package calls
type OSDeleter struct{}

func (OSDeleter) Remove(path string) error {
	return os.Remove(path)
}

// Exists reports whether anything is present at path. Errors other than
// "not exist" (for example EACCES on a parent) count as present, so a
// deletion is never reported successful when the file may still be there.
func (OSDeleter) Exists(path string) bool {
	_, err := os.Lstat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
