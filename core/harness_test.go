package core

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/smarty/antikinst/contracts"
	"github.com/smarty/antikinst/shell"
)

func newDiskCodec(logger *zap.Logger) *ContainerCodec {
	return NewContainerCodec(
		shell.NewDiskFileSystem(string(filepath.Separator)),
		func(root string) SourceFileSystem { return shell.NewDiskFileSystem(root) },
		func(writer io.Writer, compression contracts.Compression) (contracts.ArchiveWriter, error) {
			archive, err := shell.NewTarArchiveWriter(writer, compression)
			if err != nil {
				return nil, err
			}
			return archive, nil
		},
		shell.NewTarArchiveOpener(),
		shell.NewArchiveEntryFinder(),
		logger,
	)
}

func writeTree(root string, files map[string]string) {
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		_ = os.MkdirAll(filepath.Dir(path), 0755)
		_ = os.WriteFile(path, []byte(content), 0644)
	}
}

// readTree returns every regular file beneath root keyed by slash-separated
// relative path.
func readTree(root string) map[string]string {
	tree := make(map[string]string)
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		relative, _ := filepath.Rel(root, path)
		content, _ := os.ReadFile(path)
		tree[filepath.ToSlash(relative)] = string(content)
		return nil
	})
	return tree
}

func treeNames(root string) (names []string) {
	for name := range readTree(root) {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

type rawEntry struct {
	name     string
	content  string
	linkName string
}

// writeRawTar builds a container by hand so entries can carry names the
// builder would never produce.
func writeRawTar(path string, entries ...rawEntry) {
	buffer := new(bytes.Buffer)
	writer := tar.NewWriter(buffer)
	for _, entry := range entries {
		header := &tar.Header{Name: entry.name, Mode: 0644, Size: int64(len(entry.content)), ModTime: time.Now(), Typeflag: tar.TypeReg}
		if entry.linkName != "" {
			header.Typeflag = tar.TypeSymlink
			header.Linkname = entry.linkName
			header.Size = 0
		}
		_ = writer.WriteHeader(header)
		if entry.linkName == "" {
			_, _ = writer.Write([]byte(entry.content))
		}
	}
	_ = writer.Close()
	_ = os.MkdirAll(filepath.Dir(path), 0755)
	_ = os.WriteFile(path, buffer.Bytes(), 0644)
}

const validManifest = `{"app_name":"Demo","默认解压路径":"/opt/demo","主程序目录":"app/demo.exe"}`
