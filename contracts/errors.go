package contracts

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidSource        = errors.New("main executable is not inside the source directory")
	ErrMissingManifestField = errors.New("missing manifest field")
	ErrManifestMissing      = errors.New("container has no manifest")
	ErrManifestCorrupt      = errors.New("manifest is corrupt")
	ErrContainerUnreadable  = errors.New("container is unreadable")
	ErrPathTraversal        = errors.New("archive entry escapes the target directory")
	ErrTargetNotWritable    = errors.New("target directory is not writable")
	ErrPartialDeletion      = errors.New("some entries could not be deleted")
	ErrBackupMissing        = errors.New("no retained container in backup directory")
	ErrConfigCorrupt        = errors.New("installed manifest is corrupt")
	ErrExtractionInProgress = errors.New("an extraction is already running for this target")
	ErrLockHeld             = errors.New("another operation holds the install lock")
	ErrInvalidTransition    = errors.New("operation not allowed in the current state")
	ErrNotConfirmed         = errors.New("operation requires confirmation")
)

// DeletionReport describes the outcome of a recursive delete that may have
// been partially blocked.
type DeletionReport struct {
	Root      string
	Removed   int
	Remaining int
	Failures  []string
}

func (this DeletionReport) Complete() bool {
	return this.Remaining == 0
}

func (this DeletionReport) Err() error {
	if this.Complete() {
		return nil
	}
	return fmt.Errorf("%w: %d entries remain under %q", ErrPartialDeletion, this.Remaining, this.Root)
}
