package core

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/smarty/antikinst/contracts"
	"github.com/smarty/antikinst/logging"
)

// FileListingIntegrityChecker confirms an extracted tree has an app/ directory
// and a regular main executable inside it.
type FileListingIntegrityChecker struct {
	fileSystem contracts.FileChecker
	logger     *zap.Logger
}

func NewFileListingIntegrityChecker(fileSystem contracts.FileChecker, logger *zap.Logger) *FileListingIntegrityChecker {
	return &FileListingIntegrityChecker{fileSystem: fileSystem, logger: logging.OrNop(logger)}
}

func (this *FileListingIntegrityChecker) Verify(manifest contracts.Manifest, localPath string) error {
	application, err := contracts.SecureJoin(localPath, contracts.AppPrefix)
	if err != nil {
		return err
	}
	info, err := this.fileSystem.Stat(application)
	if err != nil {
		return fmt.Errorf("%w: application directory not found at \"%s\"", contracts.ErrManifestCorrupt, application)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: \"%s\" is not a directory", contracts.ErrManifestCorrupt, application)
	}

	manifest = manifest.Normalize()
	if err = manifest.Validate(); err != nil {
		return err
	}
	executable, err := contracts.SecureJoin(localPath, manifest.MainExecutable)
	if err != nil {
		return err
	}
	info, err = this.fileSystem.Stat(executable)
	if err != nil {
		return fmt.Errorf("%w: main executable not found for \"%s\"", contracts.ErrManifestCorrupt, executable)
	}
	if info.IsDir() || info.Symlink() != "" {
		return fmt.Errorf("%w: main executable \"%s\" is not a regular file", contracts.ErrManifestCorrupt, executable)
	}
	this.logger.Debug("Listing integrity check passed.", zap.String("app", manifest.AppName), zap.String("root", localPath))
	return nil
}
