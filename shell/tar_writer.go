package shell

import (
	"archive/tar"
	"io"
	"strings"

	"github.com/smarty/antikinst/contracts"
)

type TarArchiveWriter struct {
	*tar.Writer
	compressor io.WriteCloser
}

func NewTarArchiveWriter(writer io.Writer, compression contracts.Compression) (*TarArchiveWriter, error) {
	compressor, err := NewCompressor(writer, compression)
	if err != nil {
		return nil, err
	}
	return &TarArchiveWriter{Writer: tar.NewWriter(compressor), compressor: compressor}, nil
}

func (this *TarArchiveWriter) WriteHeader(header contracts.ArchiveHeader) error {
	tarHeader := &tar.Header{
		Name:     header.Name,
		Size:     header.Size,
		ModTime:  header.ModTime,
		Mode:     0644,
		Typeflag: tar.TypeReg,
	}
	if header.Executable {
		tarHeader.Mode = 0755
	}
	if header.Directory {
		tarHeader.Typeflag = tar.TypeDir
		tarHeader.Mode = 0755
		tarHeader.Size = 0
		if !strings.HasSuffix(tarHeader.Name, "/") {
			tarHeader.Name += "/"
		}
	}
	if header.LinkName != "" {
		tarHeader.Typeflag = tar.TypeSymlink
		tarHeader.Linkname = header.LinkName
		tarHeader.Mode = 0777
		tarHeader.Size = 0
	}
	return this.Writer.WriteHeader(tarHeader)
}

func (this *TarArchiveWriter) Close() error {
	err := this.Writer.Close()
	if closeErr := this.compressor.Close(); err == nil {
		err = closeErr
	}
	return err
}
