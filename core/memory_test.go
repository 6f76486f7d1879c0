package core

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/smarty/antikinst/contracts"
)

type inMemoryFileSystem struct {
	fileSystem  map[string]*file
	Root        string
	errOpenFile map[string]error
	errListing  error
}

func newInMemoryFileSystem() *inMemoryFileSystem {
	return &inMemoryFileSystem{
		fileSystem:  make(map[string]*file),
		errOpenFile: make(map[string]error),
	}
}

func (this *inMemoryFileSystem) Chmod(name string, mode os.FileMode) error {
	this.fileSystem[name].mode = mode
	return nil
}

func (this *inMemoryFileSystem) Stat(path string) (contracts.FileInfo, error) {
	file, found := this.fileSystem[path]
	if !found {
		return nil, os.ErrNotExist
	}
	return file, nil
}

func (this *inMemoryFileSystem) Listing() (files []contracts.FileInfo, err error) {
	if this.errListing != nil {
		return nil, this.errListing
	}
	for _, file := range this.fileSystem {
		if !file.IsDir() {
			files = append(files, file)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path() < files[j].Path() })
	return files, nil
}

func (this *inMemoryFileSystem) Open(path string) (io.ReadCloser, error) {
	if err := this.errOpenFile[path]; err != nil {
		return nil, err
	}
	file, found := this.fileSystem[path]
	if !found {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(file.contents)), nil
}

func (this *inMemoryFileSystem) WriteFile(path string, content []byte) {
	this.fileSystem[path] = &file{
		path:     path,
		contents: content,
		mod:      InMemoryModTime,
		mode:     0644,
	}
}

func (this *inMemoryFileSystem) MakeDirectory(path string) {
	this.fileSystem[path] = &file{path: path, mod: InMemoryModTime, mode: os.ModeDir | 0755}
}

func (this *inMemoryFileSystem) CreateSymlink(source, target string) {
	this.fileSystem[target] = &file{
		path:    target,
		mod:     InMemoryModTime,
		symlink: source,
		mode:    os.ModeSymlink | 0777,
	}
}

func (this *inMemoryFileSystem) RootPath() string {
	return filepath.Clean(this.Root)
}

/////////////////////////////////////////////////

type file struct {
	path     string
	contents []byte
	mod      time.Time
	symlink  string
	mode     os.FileMode
}

var InMemoryModTime = time.Now()

func (this *file) ModTime() time.Time { return this.mod }
func (this *file) Symlink() string    { return this.symlink }
func (this *file) Path() string       { return this.path }
func (this *file) Size() int64        { return int64(len(this.contents)) }
func (this *file) Mode() os.FileMode  { return this.mode }
func (this *file) IsDir() bool        { return this.mode.IsDir() }
