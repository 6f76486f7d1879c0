package core

import (
	"errors"

	"github.com/smarty/antikinst/contracts"
)

type ArchiveItem struct {
	contracts.ArchiveHeader
	contents []byte
}

type FakeArchiveWriter struct {
	items       []*ArchiveItem
	current     *ArchiveItem
	closed      bool
	headerError error
	writeError  error
	closedError error
}

func NewFakeArchiveWriter() *FakeArchiveWriter { return &FakeArchiveWriter{} }

func (this *FakeArchiveWriter) WriteHeader(header contracts.ArchiveHeader) error {
	if this.closed {
		return errors.New("archive closed")
	}
	if this.headerError != nil {
		return this.headerError
	}
	this.current = &ArchiveItem{ArchiveHeader: header}
	this.items = append(this.items, this.current)
	return nil
}

func (this *FakeArchiveWriter) Write(p []byte) (int, error) {
	this.current.contents = append(this.current.contents, p...)
	return len(p), this.writeError
}

func (this *FakeArchiveWriter) Close() error {
	this.closed = true
	return this.closedError
}

func (this *FakeArchiveWriter) names() (names []string) {
	for _, item := range this.items {
		names = append(names, item.Name)
	}
	return names
}

var (
	writeErr = errors.New("write error")
	closeErr = errors.New("close error")
)
