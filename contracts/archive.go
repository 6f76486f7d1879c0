package contracts

import (
	"io"
	"time"
)

type ArchiveHeader struct {
	Name       string
	Size       int64
	ModTime    time.Time
	Executable bool
	Directory  bool
	LinkName   string
}

type ArchiveWriter interface {
	io.WriteCloser
	WriteHeader(header ArchiveHeader) error
}

// ArchiveReader walks entries in order; Next returns io.EOF after the last one.
type ArchiveReader interface {
	io.ReadCloser
	Next() (ArchiveHeader, error)
}

type ArchiveOpener interface {
	OpenArchive(path string) (ArchiveReader, error)
}

type ArchiveEntry struct {
	Name    string
	Content []byte
}

// EntryFinder returns up to limit regular entries accepted by match, in
// archive order, without unpacking the rest of the container.
type EntryFinder interface {
	FindEntries(container string, match func(name string) bool, limit int) ([]ArchiveEntry, error)
}

type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

type ArchiveItem struct {
	Path string
	Size int64
}
