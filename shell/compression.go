package shell

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/smarty/antikinst/contracts"
)

func ParseCompression(value string) (contracts.Compression, error) {
	switch compression := contracts.Compression(strings.ToLower(strings.TrimSpace(value))); compression {
	case "":
		return contracts.CompressionNone, nil
	case contracts.CompressionNone, contracts.CompressionGzip, contracts.CompressionZstd:
		return compression, nil
	default:
		return "", fmt.Errorf("%w: unsupported compression algorithm %q", contracts.ErrInvalidInput, value)
	}
}

func NewCompressor(writer io.Writer, compression contracts.Compression) (io.WriteCloser, error) {
	factory, found := compressors[compression]
	if !found {
		return nil, fmt.Errorf("%w: unsupported compression algorithm %q", contracts.ErrInvalidInput, compression)
	}
	return factory(writer)
}

var compressors = map[contracts.Compression]func(io.Writer) (io.WriteCloser, error){
	contracts.CompressionNone: func(writer io.Writer) (io.WriteCloser, error) {
		return nopWriteCloser{Writer: writer}, nil
	},
	contracts.CompressionGzip: func(writer io.Writer) (io.WriteCloser, error) {
		return gzip.NewWriterLevel(writer, gzip.DefaultCompression)
	},
	contracts.CompressionZstd: func(writer io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(writer, zstd.WithEncoderLevel(zstd.SpeedDefault))
	},
}

// DetectCompression inspects the leading bytes of a container stream.
func DetectCompression(reader *bufio.Reader) contracts.Compression {
	magic, _ := reader.Peek(len(zstdMagic))
	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		return contracts.CompressionGzip
	case bytes.HasPrefix(magic, zstdMagic):
		return contracts.CompressionZstd
	default:
		return contracts.CompressionNone
	}
}

func NewDecompressor(source io.Reader) (io.ReadCloser, contracts.Compression, error) {
	buffered := bufio.NewReader(source)
	compression := DetectCompression(buffered)
	switch compression {
	case contracts.CompressionGzip:
		reader, err := gzip.NewReader(buffered)
		if err != nil {
			return nil, compression, err
		}
		return reader, compression, nil
	case contracts.CompressionZstd:
		decoder, err := zstd.NewReader(buffered)
		if err != nil {
			return nil, compression, err
		}
		return decoder.IOReadCloser(), compression, nil
	default:
		return io.NopCloser(buffered), compression, nil
	}
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
