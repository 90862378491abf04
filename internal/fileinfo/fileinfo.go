package fileinfo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrorCode is the fixed code carried by every metadata query failure.
const ErrorCode = "FILE_INFO_ERROR"

// FileInfo is a point-in-time snapshot of a path's metadata.
// When Exists is false no other field is meaningful.
type FileInfo struct {
	Exists       bool   `json:"exists"`
	Path         string `json:"path,omitempty"`
	Name         string `json:"name,omitempty"`
	Size         int64  `json:"size"`
	LastModified int64  `json:"lastModified"` // Unix epoch milliseconds
	CanRead      bool   `json:"canRead"`
	CanWrite     bool   `json:"canWrite"`
	CanExecute   bool   `json:"canExecute"`
}

// MarshalJSON emits only {"exists":false} for a missing path.
func (fi FileInfo) MarshalJSON() ([]byte, error) {
	if !fi.Exists {
		return []byte(`{"exists":false}`), nil
	}
	type plain FileInfo
	return json.Marshal(plain(fi))
}

// Error is the rejection returned when the metadata query itself fails.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

func newError(err error) *Error {
	return &Error{Code: ErrorCode, Message: err.Error(), err: err}
}

// Stat returns the metadata for path. A missing path is a normal result with
// Exists=false; any other failure is returned as *Error.
func Stat(path string) (FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, unix.ENOTDIR) {
			return FileInfo{Exists: false}, nil
		}
		return FileInfo{}, newError(err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, newError(err)
	}

	return FileInfo{
		Exists:       true,
		Path:         abs,
		Name:         filepath.Base(abs),
		Size:         info.Size(),
		LastModified: info.ModTime().UnixMilli(),
		CanRead:      unix.Access(abs, unix.R_OK) == nil,
		CanWrite:     unix.Access(abs, unix.W_OK) == nil,
		CanExecute:   unix.Access(abs, unix.X_OK) == nil,
	}, nil
}
