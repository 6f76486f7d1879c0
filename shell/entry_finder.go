package shell

import (
	"archive/tar"
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/mholt/archiver/v3"

	"github.com/smarty/antikinst/contracts"
)

// ArchiveEntryFinder pulls individual entries out of a container without
// extracting it.
type ArchiveEntryFinder struct{}

func NewArchiveEntryFinder() *ArchiveEntryFinder {
	return &ArchiveEntryFinder{}
}

func (this *ArchiveEntryFinder) FindEntries(container string, match func(name string) bool, limit int) (entries []contracts.ArchiveEntry, err error) {
	walker, err := this.walkerFor(container)
	if err != nil {
		return nil, err
	}
	err = walker.Walk(container, func(file archiver.File) error {
		header, ok := file.Header.(*tar.Header)
		if !ok || header.Typeflag != tar.TypeReg || !match(header.Name) {
			return nil
		}
		content, err := io.ReadAll(file)
		if err != nil {
			return err
		}
		entries = append(entries, contracts.ArchiveEntry{Name: header.Name, Content: content})
		if limit > 0 && len(entries) >= limit {
			return archiver.ErrStopWalk
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contracts.ErrContainerUnreadable, err)
	}
	return entries, nil
}

func (this *ArchiveEntryFinder) walkerFor(container string) (archiver.Walker, error) {
	file, err := os.Open(container)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contracts.ErrContainerUnreadable, err)
	}
	defer closeResource(file)

	switch DetectCompression(bufio.NewReader(file)) {
	case contracts.CompressionGzip:
		return archiver.NewTarGz(), nil
	case contracts.CompressionZstd:
		return archiver.NewTarZstd(), nil
	default:
		return archiver.NewTar(), nil
	}
}
