package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smarty/antikinst/contracts"
	"github.com/smarty/antikinst/logging"
)

type SourceFactory func(root string) SourceFileSystem

type ArchiveWriterFactory func(writer io.Writer, compression contracts.Compression) (contracts.ArchiveWriter, error)

type ContainerBuild struct {
	SourceDir      string
	MainExecutable string // absolute, or relative to SourceDir
	Manifest       contracts.Manifest
	OutputPath     string
	Compression    contracts.Compression
	ExecutableIcon []byte
}

type ExtractionRequest struct {
	Container string
	Target    string
	Overwrite bool

	// Include and Exclude filter cleaned, slash-separated entry names. Nil
	// Include accepts everything; nil Exclude rejects nothing.
	Include func(name string) bool
	Exclude func(name string) bool

	// Key identifies the install root for in-flight accounting; it defaults
	// to Target.
	Key        string
	OnProgress func(contracts.Progress)
}

type ExtractionReport struct {
	Total     int
	Processed int
	Created   []string
}

type Extractor interface {
	Extract(ctx context.Context, request ExtractionRequest) (ExtractionReport, error)
}

type ContainerCodec struct {
	files   contracts.FileSystem
	sources SourceFactory
	writers ArchiveWriterFactory
	opener  contracts.ArchiveOpener
	finder  contracts.EntryFinder
	logger  *zap.Logger
}

func NewContainerCodec(
	files contracts.FileSystem,
	sources SourceFactory,
	writers ArchiveWriterFactory,
	opener contracts.ArchiveOpener,
	finder contracts.EntryFinder,
	logger *zap.Logger,
) *ContainerCodec {
	return &ContainerCodec{
		files:   files,
		sources: sources,
		writers: writers,
		opener:  opener,
		finder:  finder,
		logger:  logging.OrNop(logger),
	}
}

// Build writes a container for the source tree and returns the manifest as
// stored in it along with the archived items.
func (this *ContainerCodec) Build(ctx context.Context, build ContainerBuild) (contracts.Manifest, []contracts.ArchiveItem, error) {
	source := filepath.Clean(build.SourceDir)
	executable := build.MainExecutable
	if !filepath.IsAbs(executable) {
		executable = filepath.Join(source, executable)
	}
	relative, err := this.executableWithin(source, executable)
	if err != nil {
		return contracts.Manifest{}, nil, err
	}

	manifest := build.Manifest
	manifest.MainExecutable = contracts.AppPrefix + relative
	manifest = manifest.Normalize()
	if err = manifest.ValidateForBuild(); err != nil {
		return contracts.Manifest{}, nil, err
	}

	output := filepath.Clean(build.OutputPath)
	temp := output + ".tmp-" + uuid.NewString()
	contents, err := this.writeContainer(ctx, source, temp, output, manifest, build, executable)
	if err != nil {
		if deleteErr := this.files.Delete(temp); deleteErr != nil && !errors.Is(deleteErr, fs.ErrNotExist) {
			this.logger.Warn("Unable to remove partial container.", zap.String("path", temp), zap.Error(deleteErr))
		}
		return contracts.Manifest{}, nil, err
	}
	if err = this.files.Move(temp, output); err != nil {
		_ = this.files.Delete(temp)
		return contracts.Manifest{}, nil, fmt.Errorf("commit container %q: %w", output, err)
	}
	return manifest, contents, nil
}

func (this *ContainerCodec) writeContainer(
	ctx context.Context,
	source, temp, output string,
	manifest contracts.Manifest,
	build ContainerBuild,
	executable string,
) ([]contracts.ArchiveItem, error) {
	file, err := this.files.Create(temp, 0644)
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}
	defer closeResource(file)

	archive, err := this.writers(file, build.Compression)
	if err != nil {
		return nil, err
	}
	builder := NewPackageBuilder(this.sources(source), archive, manifest, this.logger).
		Excluding(func(path string) bool { return path == output || path == temp })
	if len(build.ExecutableIcon) > 0 {
		builder.WithExecutableIcon(iconName(executable), build.ExecutableIcon)
	}
	if err = builder.Build(ctx); err != nil {
		closeResource(archive)
		return nil, err
	}
	return builder.Contents(), file.Close()
}

func (this *ContainerCodec) executableWithin(source, executable string) (string, error) {
	executable = filepath.Clean(executable)
	if executable == source || !contracts.Contains(source, executable) {
		return "", fmt.Errorf("%w: %q is outside %q", contracts.ErrInvalidSource, executable, source)
	}
	info, err := this.files.Stat(executable)
	if err != nil {
		return "", fmt.Errorf("%w: %w", contracts.ErrInvalidSource, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %q is a directory", contracts.ErrInvalidSource, executable)
	}
	relative, err := filepath.Rel(source, executable)
	if err != nil {
		return "", fmt.Errorf("%w: %w", contracts.ErrInvalidSource, err)
	}
	return filepath.ToSlash(relative), nil
}

// Extract unpacks the container into the target. Every entry is validated
// before the first byte is written; a failure or cancellation afterwards
// removes whatever this call created.
func (this *ContainerCodec) Extract(ctx context.Context, request ExtractionRequest) (report ExtractionReport, err error) {
	target := filepath.Clean(request.Target)
	total, err := this.validateEntries(target, request)
	if err != nil {
		return report, err
	}
	report.Total = total

	extraction := &extraction{
		files:    this.files,
		target:   target,
		request:  request,
		progress: newEntryProgressCounter(total, request.OnProgress),
	}
	if err = extraction.prepareTarget(); err != nil {
		return report, err
	}
	defer func() {
		report.Processed = extraction.processed
		report.Created = extraction.created
		if err != nil {
			extraction.rollback(this.logger)
		}
	}()

	reader, err := this.opener.OpenArchive(request.Container)
	if err != nil {
		return report, err
	}
	defer closeResource(reader)

	for {
		if err = ctx.Err(); err != nil {
			return report, err
		}
		header, nextErr := reader.Next()
		if nextErr == io.EOF {
			break
		}
		if nextErr != nil {
			return report, nextErr
		}
		name, accepted := accept(header.Name, request)
		if !accepted {
			continue
		}
		if err = extraction.write(name, header, reader); err != nil {
			return report, err
		}
	}
	extraction.progress.Finish()
	this.logger.Debug("Container extracted.",
		zap.String("container", request.Container),
		zap.String("target", target),
		zap.Int("entries", extraction.processed))
	return report, nil
}

func (this *ContainerCodec) validateEntries(target string, request ExtractionRequest) (total int, err error) {
	reader, err := this.opener.OpenArchive(request.Container)
	if err != nil {
		return 0, err
	}
	defer closeResource(reader)

	for {
		header, err := reader.Next()
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return 0, err
		}
		if _, err = contracts.CleanEntryName(header.Name); err != nil {
			return 0, err
		}
		name, accepted := accept(header.Name, request)
		if !accepted {
			continue
		}
		if _, err = contracts.SecureJoin(target, name); err != nil {
			return 0, err
		}
		if header.LinkName != "" {
			if err = validateLink(name, header.LinkName); err != nil {
				return 0, err
			}
		}
		total++
	}
}

func validateLink(name, link string) error {
	link = strings.ReplaceAll(link, `\`, "/")
	if strings.HasPrefix(link, "/") || filepath.IsAbs(link) || hasVolume(link) {
		return fmt.Errorf("%w: %q links to %q", contracts.ErrPathTraversal, name, link)
	}
	if _, err := contracts.CleanEntryName(path.Join(path.Dir(name), link)); err != nil {
		return fmt.Errorf("%w: %q links to %q", contracts.ErrPathTraversal, name, link)
	}
	return nil
}

func hasVolume(name string) bool {
	return len(name) >= 2 && name[1] == ':'
}

func accept(raw string, request ExtractionRequest) (string, bool) {
	name, err := contracts.CleanEntryName(raw)
	if err != nil || name == "." {
		return "", false
	}
	if request.Include != nil && !request.Include(name) {
		return "", false
	}
	if request.Exclude != nil && request.Exclude(name) {
		return "", false
	}
	return name, true
}

// ReadManifest finds and parses the single root manifest entry.
func (this *ContainerCodec) ReadManifest(container string) (contracts.Manifest, error) {
	entries, err := this.finder.FindEntries(container, isManifestEntry, 2)
	if err != nil {
		return contracts.Manifest{}, err
	}
	switch len(entries) {
	case 0:
		return contracts.Manifest{}, fmt.Errorf("%w: %q", contracts.ErrManifestMissing, container)
	case 1:
	default:
		return contracts.Manifest{}, fmt.Errorf("%w: %q holds more than one manifest", contracts.ErrManifestCorrupt, container)
	}
	manifest, err := contracts.ParseManifest(entries[0].Content)
	if err != nil {
		return contracts.Manifest{}, err
	}
	if err = manifest.Validate(); err != nil {
		return contracts.Manifest{}, fmt.Errorf("%w: %w", contracts.ErrManifestCorrupt, err)
	}
	return manifest, nil
}

// ReadIconBytes returns the first regular file under icon/, if any.
func (this *ContainerCodec) ReadIconBytes(container string) ([]byte, bool, error) {
	entries, err := this.finder.FindEntries(container, isIconEntry, 1)
	if err != nil {
		return nil, false, err
	}
	if len(entries) == 0 {
		return nil, false, nil
	}
	return entries[0].Content, true, nil
}

func isManifestEntry(name string) bool {
	cleaned, err := contracts.CleanEntryName(name)
	return err == nil && cleaned == contracts.ManifestFilename
}

func isIconEntry(name string) bool {
	cleaned, err := contracts.CleanEntryName(name)
	return err == nil && strings.HasPrefix(cleaned, contracts.IconPrefix) && len(cleaned) > len(contracts.IconPrefix)
}

// ExcludingPrefix rejects the named directory and everything beneath it.
func ExcludingPrefix(directory string) func(name string) bool {
	directory = strings.TrimSuffix(directory, "/")
	return func(name string) bool {
		return name == directory || strings.HasPrefix(name, directory+"/")
	}
}

func OnlyEntry(entry string) func(name string) bool {
	return func(name string) bool { return name == entry }
}

func iconName(executable string) string {
	base := filepath.Base(executable)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".ico"
}

////////////////////////////////////////

type extraction struct {
	files     contracts.FileSystem
	target    string
	request   ExtractionRequest
	progress  *entryProgressCounter
	processed int
	created   []string
}

func (this *extraction) prepareTarget() error {
	if this.request.Overwrite {
		if err := this.files.DeleteAll(this.target); err != nil {
			return fmt.Errorf("%w: %w", contracts.ErrTargetNotWritable, err)
		}
	}
	if err := this.ensureDirectory(this.target); err != nil {
		return fmt.Errorf("%w: %w", contracts.ErrTargetNotWritable, err)
	}
	return nil
}

func (this *extraction) write(name string, header contracts.ArchiveHeader, content io.Reader) error {
	destination, err := contracts.SecureJoin(this.target, name)
	if err != nil {
		return err
	}
	if err = this.ensureParents(destination); err != nil {
		return err
	}

	switch {
	case header.Directory:
		err = this.ensureDirectory(destination)
	case header.LinkName != "":
		err = this.writeSymlink(destination, header.LinkName)
	default:
		err = this.writeFile(destination, header, content)
	}
	if err != nil {
		return err
	}
	this.processed++
	this.progress.Advance()
	return nil
}

// ensureParents creates missing directories between the target and
// destination, refusing to descend through a symlink.
func (this *extraction) ensureParents(destination string) error {
	relative, err := filepath.Rel(this.target, filepath.Dir(destination))
	if err != nil || relative == "." {
		return err
	}
	current := this.target
	for _, part := range strings.Split(relative, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		info, err := this.files.Stat(current)
		if err == nil && info.Symlink() != "" {
			return fmt.Errorf("%w: %q passes through a symlink", contracts.ErrPathTraversal, destination)
		}
		if err == nil && !info.IsDir() {
			return fmt.Errorf("%q is not a directory", current)
		}
		if err != nil {
			if err = this.ensureDirectory(current); err != nil {
				return err
			}
		}
	}
	return nil
}

func (this *extraction) ensureDirectory(directory string) error {
	if info, err := this.files.Stat(directory); err == nil {
		if info.IsDir() {
			return nil
		}
		return fmt.Errorf("%q is not a directory", directory)
	}
	if err := this.files.MakeDirectory(directory); err != nil {
		return err
	}
	this.created = append(this.created, directory)
	return nil
}

func (this *extraction) writeSymlink(destination, link string) error {
	existed := this.existing(destination)
	if err := this.files.CreateSymlink(filepath.FromSlash(link), destination); err != nil {
		return err
	}
	if !existed {
		this.created = append(this.created, destination)
	}
	return nil
}

// writeFile streams content into a sibling temp file and renames it over the
// destination, so an existing file is never left half written.
func (this *extraction) writeFile(destination string, header contracts.ArchiveHeader, content io.Reader) (err error) {
	existed := this.existing(destination)
	mode := os.FileMode(0644)
	if header.Executable {
		mode = 0755
	}
	temp := filepath.Join(filepath.Dir(destination), "."+filepath.Base(destination)+".antikinst-"+uuid.NewString())
	writer, err := this.files.Create(temp, mode)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = this.files.Delete(temp)
		}
	}()
	if _, err = io.Copy(writer, content); err != nil {
		closeResource(writer)
		return err
	}
	if err = writer.Close(); err != nil {
		return err
	}
	if err = this.files.Move(temp, destination); err != nil {
		return err
	}
	if !existed {
		this.created = append(this.created, destination)
	}
	return nil
}

func (this *extraction) existing(path string) bool {
	_, err := this.files.Stat(path)
	return err == nil
}

func (this *extraction) rollback(logger *zap.Logger) {
	if this.request.Overwrite {
		if err := this.files.DeleteAll(this.target); err != nil {
			logger.Warn("Unable to remove partial extraction.", zap.String("target", this.target), zap.Error(err))
		}
		return
	}
	for x := len(this.created) - 1; x >= 0; x-- {
		if err := this.files.Delete(this.created[x]); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Unable to remove extracted entry.", zap.String("path", this.created[x]), zap.Error(err))
		}
	}
}
