package contracts

import (
	"io"
	"os"
	"time"
)

type PathLister interface {
	Listing() ([]FileInfo, error)
}

type FileOpener interface {
	Open(path string) (io.ReadCloser, error)
}

type FileCreator interface {
	Create(path string, mode os.FileMode) (io.WriteCloser, error)
}

type SymlinkCreator interface {
	CreateSymlink(source, target string) error
}

type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

type FileWriter interface {
	WriteFile(path string, content []byte) error
}

type Deleter interface {
	Delete(path string) error
	DeleteAll(path string) error
}

type FileChecker interface {
	Stat(path string) (FileInfo, error)
}

type DirectoryMaker interface {
	MakeDirectory(path string) error
}

type DirectoryReader interface {
	ReadDirectory(path string) ([]FileInfo, error)
}

type Mover interface {
	Move(source, target string) error
}

// Copier copies a regular file; the target is replaced only once the copy is complete.
type Copier interface {
	Copy(source, target string) error
}

type FileInfo interface {
	Path() string
	Size() int64
	ModTime() time.Time
	Symlink() string
	Mode() os.FileMode
	IsDir() bool
}

type RootPath interface {
	RootPath() string
}

type Chmod interface {
	Chmod(name string, mode os.FileMode) error
}

type FileSystem interface {
	FileOpener
	FileCreator
	SymlinkCreator
	FileReader
	FileWriter
	Deleter
	FileChecker
	DirectoryMaker
	DirectoryReader
	Mover
	Copier
}

func IsExecutable(mode os.FileMode) bool {
	return mode.Perm()&0111 > 0
}
