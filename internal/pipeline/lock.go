package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// LockFile guards a work directory against concurrent imports.
const LockFile = ".releve.lock"

// ErrLocked means another import holds the work directory.
var ErrLocked = errors.New("another import is running in this directory")

// Lock takes the work directory lock. The returned function releases it.
func Lock(workDir string) (func() error, error) {
	path := filepath.Join(workDir, LockFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w (remove %s if it is stale)", ErrLocked, path)
		}
		return nil, fmt.Errorf("creating lock file: %w", err)
	}
	_, werr := f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing lock file: %w", werr)
	}
	return func() error { return os.Remove(path) }, nil
}
