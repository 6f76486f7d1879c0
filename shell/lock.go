package shell

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/smarty/antikinst/contracts"
)

// FileLocker takes an exclusive, non-blocking advisory lock on a lock file.
// A second attempt fails immediately with contracts.ErrLockHeld.
type FileLocker struct{}

func NewFileLocker() *FileLocker {
	return &FileLocker{}
}

func (this *FileLocker) Lock(path string) (contracts.Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	err = tryLock(file)
	if errors.Is(err, errWouldBlock) {
		closeResource(file)
		return nil, fmt.Errorf("%w: %s", contracts.ErrLockHeld, path)
	}
	if err != nil {
		closeResource(file)
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	_ = file.Truncate(0)
	_, _ = file.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0)
	return &fileLock{file: file}, nil
}

type fileLock struct {
	file *os.File
}

func (this *fileLock) Release() error {
	if this.file == nil {
		return nil
	}
	err := unlock(this.file)
	if closeErr := this.file.Close(); err == nil {
		err = closeErr
	}
	this.file = nil
	return err
}

var errWouldBlock = errors.New("lock is held elsewhere")
