package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
)

// ErrLocked is returned when another run holds the workbook.
var ErrLocked = errors.New("workbook is locked by another run")

// Lock takes an advisory lock on the workbook at path by creating path+".lock"
// exclusively. The returned func removes it. A stale lock left by a crashed run has to
// be removed by hand; its content is the owning pid.
func Lock(path string) (func() error, error) {
	lockPath := path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			owner, _ := os.ReadFile(lockPath)
			return nil, fmt.Errorf("%w: %s (pid %s)", ErrLocked, lockPath, string(owner))
		}
		return nil, fmt.Errorf("create lock file: %w", err)
	}
	_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(lockPath)
		return nil, fmt.Errorf("write lock file: %w", errors.Join(werr, cerr))
	}
	return func() error { return os.Remove(lockPath) }, nil
}
