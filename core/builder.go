package core

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smarty/antikinst/contracts"
	"github.com/smarty/antikinst/logging"
)

type SourceFileSystem interface {
	contracts.PathLister
	contracts.FileOpener
	contracts.RootPath
}

// PackageBuilder writes one container: the source tree under app/, the
// manifest at the root, and any icons under icon/.
type PackageBuilder struct {
	storage  SourceFileSystem
	archive  contracts.ArchiveWriter
	manifest contracts.Manifest
	logger   *zap.Logger

	executableIcon     []byte
	executableIconName string
	exclude            func(path string) bool

	contents []contracts.ArchiveItem
	names    map[string]struct{}
	modTime  time.Time
}

func NewPackageBuilder(storage SourceFileSystem, archive contracts.ArchiveWriter, manifest contracts.Manifest, logger *zap.Logger) *PackageBuilder {
	return &PackageBuilder{
		storage:  storage,
		archive:  archive,
		manifest: manifest,
		logger:   logging.OrNop(logger),
		exclude:  func(string) bool { return false },
		names:    make(map[string]struct{}),
		modTime:  time.Now(),
	}
}

// WithExecutableIcon adds icon bytes taken from the main executable; they are
// written ahead of any other icon.
func (this *PackageBuilder) WithExecutableIcon(name string, content []byte) *PackageBuilder {
	this.executableIconName = name
	this.executableIcon = content
	return this
}

func (this *PackageBuilder) Excluding(exclude func(path string) bool) *PackageBuilder {
	this.exclude = exclude
	return this
}

func (this *PackageBuilder) Build(ctx context.Context) error {
	listing, err := this.storage.Listing()
	if err != nil {
		return fmt.Errorf("list source directory: %w", err)
	}
	files := this.applicationFiles(listing)

	progress := newArchiveProgressCounter(this.totalSize(files), 2*time.Second, func(archived, total string) {
		this.logger.Debug("Archiving.", zap.String("archived", archived), zap.String("total", total))
	})
	defer closeResource(progress)

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := this.addFile(contracts.AppPrefix+this.relative(file), file, progress); err != nil {
			return err
		}
	}
	if err := this.addManifest(); err != nil {
		return err
	}
	if err := this.addIcons(listing); err != nil {
		return err
	}
	return this.archive.Close()
}

func (this *PackageBuilder) applicationFiles(listing []contracts.FileInfo) (files []contracts.FileInfo) {
	for _, file := range listing {
		relative := this.relative(file)
		if relative == contracts.BackupDirectory || strings.HasPrefix(relative, contracts.BackupDirectory+"/") {
			continue
		}
		if this.exclude(file.Path()) {
			continue
		}
		files = append(files, file)
	}
	return files
}

func (this *PackageBuilder) addFile(name string, file contracts.FileInfo, progress io.Writer) error {
	this.logger.Debug("Adding file to container.", zap.String("name", name))
	header, err := this.buildHeader(name, file)
	if err != nil {
		return err
	}
	if err = this.archive.WriteHeader(header); err != nil {
		return err
	}
	if err = this.archiveContents(file, header.LinkName, progress); err != nil {
		return err
	}
	this.record(header)
	return nil
}

func (this *PackageBuilder) archiveContents(file contracts.FileInfo, symlinkSourcePath string, progress io.Writer) error {
	if symlinkSourcePath != "" {
		return nil
	}
	reader, err := this.storage.Open(file.Path())
	if err != nil {
		return err
	}
	defer closeResource(reader)
	_, err = io.Copy(io.MultiWriter(this.archive, progress), reader)
	return err
}

func (this *PackageBuilder) addContent(name string, content []byte) error {
	if _, duplicate := this.names[name]; duplicate {
		return nil
	}
	header := contracts.ArchiveHeader{Name: name, Size: int64(len(content)), ModTime: this.modTime}
	if err := this.archive.WriteHeader(header); err != nil {
		return err
	}
	if _, err := this.archive.Write(content); err != nil {
		return err
	}
	this.record(header)
	return nil
}

func (this *PackageBuilder) addManifest() error {
	raw, err := this.manifest.Marshal()
	if err != nil {
		return err
	}
	return this.addContent(contracts.ManifestFilename, raw)
}

func (this *PackageBuilder) addIcons(listing []contracts.FileInfo) error {
	if len(this.executableIcon) > 0 {
		if err := this.addContent(contracts.IconPrefix+this.executableIconName, this.executableIcon); err != nil {
			return err
		}
	}
	icons := this.iconFiles(listing)
	if len(icons) == 0 {
		icons = this.fallbackIcon(listing)
	}
	for _, icon := range icons {
		name := contracts.IconPrefix + path.Base(this.relative(icon))
		if _, duplicate := this.names[name]; duplicate {
			continue
		}
		if err := this.addFile(name, icon, io.Discard); err != nil {
			return err
		}
	}
	return nil
}

func (this *PackageBuilder) iconFiles(listing []contracts.FileInfo) (icons []contracts.FileInfo) {
	isIcon := MatchingGlob(iconPattern)
	for _, file := range listing {
		if file.Symlink() == "" && isIcon(Entry{Relative: this.relative(file)}) {
			icons = append(icons, file)
		}
	}
	return icons
}

func (this *PackageBuilder) fallbackIcon(listing []contracts.FileInfo) []contracts.FileInfo {
	for _, file := range listing {
		if this.relative(file) == contracts.FallbackIconName && file.Symlink() == "" {
			return []contracts.FileInfo{file}
		}
	}
	return nil
}

func (this *PackageBuilder) record(header contracts.ArchiveHeader) {
	this.names[header.Name] = struct{}{}
	this.contents = append(this.contents, contracts.ArchiveItem{Path: header.Name, Size: header.Size})
}

func (this *PackageBuilder) buildHeader(name string, file contracts.FileInfo) (header contracts.ArchiveHeader, err error) {
	header.Name = name
	header.Size = file.Size()
	header.ModTime = file.ModTime()
	header.Executable = contracts.IsExecutable(file.Mode())
	if file.Symlink() == "" {
		return header, nil
	}

	if this.outOfBounds(file) {
		return header, this.symlinkOutOfBoundError(file)
	}
	header.Size = 0
	header.LinkName, err = this.relativeLinkSourcePath(file)
	header.LinkName = filepath.ToSlash(header.LinkName)
	return header, err
}

func (this *PackageBuilder) relativeLinkSourcePath(file contracts.FileInfo) (string, error) {
	target := file.Symlink()
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(file.Path()), target)
	}
	return filepath.Rel(filepath.Dir(file.Path()), filepath.Clean(target))
}

func (this *PackageBuilder) symlinkOutOfBoundError(file contracts.FileInfo) error {
	return fmt.Errorf(
		"%w: the file \"%s\" is a symlink that refers to \"%s\" which is outside of the source directory: \"%s\"",
		contracts.ErrInvalidSource,
		file.Path(),
		file.Symlink(),
		this.storage.RootPath())
}

func (this *PackageBuilder) outOfBounds(file contracts.FileInfo) bool {
	target := file.Symlink()
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(file.Path()), target)
	}
	return !contracts.Contains(this.storage.RootPath(), target)
}

func (this *PackageBuilder) relative(file contracts.FileInfo) string {
	relative, err := filepath.Rel(this.storage.RootPath(), file.Path())
	if err != nil {
		return filepath.ToSlash(file.Path())
	}
	return filepath.ToSlash(relative)
}

func (this *PackageBuilder) totalSize(files []contracts.FileInfo) (total int64) {
	for _, file := range files {
		total += file.Size()
	}
	return total
}

func (this *PackageBuilder) Contents() []contracts.ArchiveItem {
	return this.contents
}

func closeResource(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

const iconPattern = "**/icon/*"
