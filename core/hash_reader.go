package core

import (
	"hash"
	"io"

	"github.com/smarty/antikinst/contracts"
)

type HashReader struct {
	io.Reader
	hash.Hash
}

func NewHashReader(source io.Reader, target hash.Hash) *HashReader {
	return &HashReader{Reader: source, Hash: target}
}

func (this *HashReader) Read(buffer []byte) (int, error) {
	count, err := this.Reader.Read(buffer)
	_, _ = this.Hash.Write(buffer[0:count])
	return count, err
}

// Checksum hashes everything readable at path.
func Checksum(files contracts.FileOpener, path string, newHash func() hash.Hash) ([]byte, error) {
	reader, err := files.Open(path)
	if err != nil {
		return nil, err
	}
	defer closeResource(reader)
	hasher := NewHashReader(reader, newHash())
	if _, err = io.Copy(io.Discard, hasher); err != nil {
		return nil, err
	}
	return hasher.Sum(nil), nil
}
