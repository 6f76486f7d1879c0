package core

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/smarty/antikinst/contracts"
	"github.com/smarty/antikinst/logging"
)

type BackupFileSystem interface {
	contracts.FileOpener
	contracts.FileChecker
	contracts.DirectoryMaker
	contracts.Copier
	contracts.Deleter
}

// BackupStore is the backup/ directory of one installed application. It holds
// the container every repair and reset is rebuilt from.
type BackupStore struct {
	directory string
	files     BackupFileSystem
	logger    *zap.Logger
}

func NewBackupStore(installRoot string, files BackupFileSystem, logger *zap.Logger) *BackupStore {
	return &BackupStore{
		directory: filepath.Join(filepath.Clean(installRoot), contracts.BackupDirectory),
		files:     files,
		logger:    logging.OrNop(logger),
	}
}

func (this *BackupStore) Dir() string {
	return this.directory
}

func (this *BackupStore) Ensure() error {
	if err := this.files.MakeDirectory(this.directory); err != nil {
		return fmt.Errorf("%w: %w", contracts.ErrTargetNotWritable, err)
	}
	return nil
}

// Resolve picks the retained container. With several candidates the most
// recently modified wins; equal times fall back to the lexically first name.
func (this *BackupStore) Resolve() (string, error) {
	candidates, err := this.candidates()
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: %q", contracts.ErrBackupMissing, this.directory)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].modified.Equal(candidates[j].modified) {
			return candidates[i].modified.After(candidates[j].modified)
		}
		return candidates[i].path < candidates[j].path
	})
	if len(candidates) > 1 {
		this.logger.Warn("Multiple retained containers; using the most recent.",
			zap.String("directory", this.directory),
			zap.String("selected", candidates[0].path),
			zap.Int("candidates", len(candidates)))
	}
	return candidates[0].path, nil
}

// Retain copies container into the store, verifies the copy, and removes any
// other retained container. Retaining the retained copy is a no-op.
func (this *BackupStore) Retain(container string) (string, error) {
	if err := this.Ensure(); err != nil {
		return "", err
	}
	retained := filepath.Join(this.directory, filepath.Base(container))
	if filepath.Clean(container) != retained {
		if err := this.files.Copy(container, retained); err != nil {
			return "", fmt.Errorf("retain container: %w", err)
		}
		if err := this.verify(container, retained); err != nil {
			_ = this.files.Delete(retained)
			return "", err
		}
	}

	candidates, err := this.candidates()
	if err != nil {
		return "", err
	}
	for _, candidate := range candidates {
		if candidate.path == retained {
			continue
		}
		if err = this.files.Delete(candidate.path); err != nil {
			return "", fmt.Errorf("remove stale container %q: %w", candidate.path, err)
		}
		this.logger.Info("Removed stale retained container.", zap.String("path", candidate.path))
	}
	return retained, nil
}

func (this *BackupStore) verify(original, copied string) error {
	expected, err := Checksum(this.files, original, sha256.New)
	if err != nil {
		return fmt.Errorf("checksum %q: %w", original, err)
	}
	actual, err := Checksum(this.files, copied, sha256.New)
	if err != nil {
		return fmt.Errorf("checksum %q: %w", copied, err)
	}
	if !bytes.Equal(expected, actual) {
		return fmt.Errorf("retained container %q does not match %q", copied, original)
	}
	return nil
}

func (this *BackupStore) candidates() (candidates []retainedContainer, err error) {
	matches := FilesOnly(func(entry Entry) bool { return contracts.IsContainerName(entry.Relative) })
	for entry, err := range ListEntriesMatching(this.directory, matches, MaxDepth(1)) {
		if errors.Is(err, fs.ErrNotExist) && entry.Path == this.directory {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		info, err := this.files.Stat(entry.Path)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, retainedContainer{path: entry.Path, modified: info.ModTime()})
	}
	return candidates, nil
}

type retainedContainer struct {
	path     string
	modified time.Time
}
