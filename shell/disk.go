package shell

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"

	"github.com/smarty/antikinst/contracts"
)

type DiskFileSystem struct{ root string }

func NewDiskFileSystem(root string) *DiskFileSystem {
	return &DiskFileSystem{root: filepath.Clean(root)}
}

func (this *DiskFileSystem) RootPath() string {
	return this.root
}

// Listing returns every non-directory entry beneath the root, sorted by path.
func (this *DiskFileSystem) Listing() (listing []contracts.FileInfo, err error) {
	var mutex sync.Mutex
	config := &fastwalk.Config{Follow: false}
	err = fastwalk.Walk(config, this.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		info, err := this.Stat(path)
		if err != nil {
			return err
		}
		mutex.Lock()
		listing = append(listing, info)
		mutex.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(listing, func(i, j int) bool { return listing[i].Path() < listing[j].Path() })
	return listing, nil
}

func (this *DiskFileSystem) Stat(path string) (contracts.FileInfo, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	return newFileInfo(path, info)
}

func (this *DiskFileSystem) ReadDirectory(path string) (listing []contracts.FileInfo, err error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		info, err := this.Stat(filepath.Join(path, entry.Name()))
		if err != nil {
			return nil, err
		}
		listing = append(listing, info)
	}
	return listing, nil
}

func (this *DiskFileSystem) MakeDirectory(path string) error {
	return os.MkdirAll(path, 0755)
}

func (this *DiskFileSystem) CreateSymlink(source, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Symlink(source, target)
}

func (this *DiskFileSystem) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (this *DiskFileSystem) Create(path string, mode os.FileMode) (io.WriteCloser, error) {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
}

func (this *DiskFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (this *DiskFileSystem) WriteFile(path string, content []byte) error {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return err
	}
	return os.WriteFile(path, content, 0644)
}

func (this *DiskFileSystem) Delete(path string) error {
	return os.Remove(path)
}

func (this *DiskFileSystem) DeleteAll(path string) error {
	return os.RemoveAll(path)
}

// Copy writes to a temporary sibling of target and renames it into place.
func (this *DiskFileSystem) Copy(source, target string) (err error) {
	reader, err := os.Open(source)
	if err != nil {
		return err
	}
	defer closeResource(reader)

	info, err := reader.Stat()
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	temp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(temp.Name())
		}
	}()

	if _, err = io.Copy(temp, reader); err != nil {
		closeResource(temp)
		return err
	}
	if err = temp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(temp.Name(), info.Mode().Perm()); err != nil {
		return err
	}
	return os.Rename(temp.Name(), target)
}

// Move renames source to target, copying and deleting when a rename is not
// possible (for example across volumes).
func (this *DiskFileSystem) Move(source, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if err := os.Rename(source, target); err == nil {
		return nil
	}
	if err := this.copyTree(source, target); err != nil {
		return err
	}
	return os.RemoveAll(source)
}

func (this *DiskFileSystem) copyTree(source, target string) error {
	return filepath.WalkDir(source, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relative, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		destination := filepath.Join(target, relative)
		switch {
		case entry.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return this.CreateSymlink(link, destination)
		case entry.IsDir():
			return os.MkdirAll(destination, 0755)
		default:
			return this.Copy(path, destination)
		}
	})
}

////////////////////////////////////////

type FileInfo struct {
	path    string
	size    int64
	mod     time.Time
	symlink string
	mode    os.FileMode
}

func newFileInfo(path string, info os.FileInfo) (fileInfo FileInfo, err error) {
	fileInfo = FileInfo{
		path: path,
		size: info.Size(),
		mod:  info.ModTime(),
		mode: info.Mode(),
	}
	if info.Mode()&os.ModeSymlink == os.ModeSymlink {
		fileInfo.symlink, err = os.Readlink(path)
	}
	return fileInfo, err
}

func (this FileInfo) Path() string       { return this.path }
func (this FileInfo) Size() int64        { return this.size }
func (this FileInfo) ModTime() time.Time { return this.mod }
func (this FileInfo) Symlink() string    { return this.symlink }
func (this FileInfo) Mode() os.FileMode  { return this.mode }
func (this FileInfo) IsDir() bool        { return this.mode.IsDir() }

func closeResource(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
