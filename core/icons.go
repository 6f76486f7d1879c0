package core

import (
	"path/filepath"

	"go.uber.org/zap"

	"github.com/smarty/antikinst/contracts"
)

// LocateIcon finds display icon bytes for an installed application, trying
// the extracted icon/ directory, then the retained container, then the
// root fallback icon. The returned source names where the bytes came from.
func (this *Engine) LocateIcon(install contracts.InstallContext) (content []byte, source string, found bool) {
	root := filepath.Clean(install.InstallRoot)
	lookups := []func(string) ([]byte, string, bool){
		this.iconFromDirectory,
		this.iconFromBackup,
		this.iconFromFallback,
	}
	for _, lookup := range lookups {
		if content, source, found = lookup(root); found {
			return content, source, true
		}
	}
	return nil, "", false
}

func (this *Engine) iconFromDirectory(root string) ([]byte, string, bool) {
	directory := filepath.Join(root, filepath.FromSlash(contracts.IconPrefix))
	for entry, err := range ListEntriesMatching(directory, FilesOnly(nil), MaxDepth(1)) {
		if err != nil {
			return nil, "", false
		}
		if content, ok := this.readIcon(entry.Path); ok {
			return content, entry.Path, true
		}
	}
	return nil, "", false
}

func (this *Engine) iconFromBackup(root string) ([]byte, string, bool) {
	container, err := NewBackupStore(root, this.files, this.logger).Resolve()
	if err != nil {
		return nil, "", false
	}
	content, found, err := this.codec.ReadIconBytes(container)
	if err != nil {
		this.logger.Debug("Unable to read icon from retained container.", zap.String("container", container), zap.Error(err))
		return nil, "", false
	}
	if !found || !this.isImage(content) {
		return nil, "", false
	}
	return content, container, true
}

func (this *Engine) iconFromFallback(root string) ([]byte, string, bool) {
	path := filepath.Join(root, contracts.FallbackIconName)
	content, ok := this.readIcon(path)
	return content, path, ok
}

func (this *Engine) readIcon(path string) ([]byte, bool) {
	content, err := this.files.ReadFile(path)
	if err != nil || len(content) == 0 || !this.isImage(content) {
		return nil, false
	}
	return content, true
}

func (this *Engine) isImage(content []byte) bool {
	return this.images == nil || this.images.IsImage(content)
}
