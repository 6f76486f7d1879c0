package shell

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/smarty/antikinst/contracts"
)

// TarArchiveReader yields directories, regular files and symlinks; other
// entry types are skipped.
type TarArchiveReader struct {
	reader       *tar.Reader
	decompressor io.ReadCloser
	source       io.Closer
}

func NewTarArchiveReader(source io.ReadCloser) (*TarArchiveReader, error) {
	decompressor, _, err := NewDecompressor(source)
	if err != nil {
		closeResource(source)
		return nil, fmt.Errorf("%w: %w", contracts.ErrContainerUnreadable, err)
	}
	return &TarArchiveReader{
		reader:       tar.NewReader(decompressor),
		decompressor: decompressor,
		source:       source,
	}, nil
}

func (this *TarArchiveReader) Next() (contracts.ArchiveHeader, error) {
	for {
		header, err := this.reader.Next()
		if err == io.EOF {
			return contracts.ArchiveHeader{}, io.EOF
		}
		if err != nil {
			return contracts.ArchiveHeader{}, fmt.Errorf("%w: %w", contracts.ErrContainerUnreadable, err)
		}
		switch header.Typeflag {
		case tar.TypeReg, tar.TypeDir, tar.TypeSymlink:
			return contracts.ArchiveHeader{
				Name:       header.Name,
				Size:       header.Size,
				ModTime:    header.ModTime,
				Executable: contracts.IsExecutable(os.FileMode(header.Mode)),
				Directory:  header.Typeflag == tar.TypeDir,
				LinkName:   header.Linkname,
			}, nil
		}
	}
}

func (this *TarArchiveReader) Read(buffer []byte) (int, error) {
	return this.reader.Read(buffer)
}

func (this *TarArchiveReader) Close() error {
	return errors.Join(this.decompressor.Close(), this.source.Close())
}

////////////////////////////////////////

type TarArchiveOpener struct{}

func NewTarArchiveOpener() *TarArchiveOpener {
	return &TarArchiveOpener{}
}

func (this *TarArchiveOpener) OpenArchive(path string) (contracts.ArchiveReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contracts.ErrContainerUnreadable, err)
	}
	reader, err := NewTarArchiveReader(file)
	if err != nil {
		return nil, err
	}
	return reader, nil
}
