package shell

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smarty/assertions/should"
	"github.com/smarty/gunit"

	"github.com/smarty/antikinst/contracts"
)

func TestArchiveEntryFinderFixture(t *testing.T) {
	gunit.Run(new(ArchiveEntryFinderFixture), t)
}

type ArchiveEntryFinderFixture struct {
	*gunit.Fixture
	workspace string
	finder    *ArchiveEntryFinder
}

func (this *ArchiveEntryFinderFixture) Setup() {
	this.workspace, _ = os.MkdirTemp("", "finder-")
	this.finder = NewArchiveEntryFinder()
}

func (this *ArchiveEntryFinderFixture) Teardown() {
	_ = os.RemoveAll(this.workspace)
}

func (this *ArchiveEntryFinderFixture) container(compression contracts.Compression) string {
	path := filepath.Join(this.workspace, string(compression)+".ANTIKINST")
	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	writer, _ := NewTarArchiveWriter(file, compression)
	entries := []struct{ name, content string }{
		{"app/demo.exe", "MZ"},
		{"icon/first.png", "first"},
		{"icon/second.png", "second"},
		{"config.json", "{}"},
	}
	_ = writer.WriteHeader(contracts.ArchiveHeader{Name: "icon", Directory: true, ModTime: time.Now()})
	for _, entry := range entries {
		_ = writer.WriteHeader(contracts.ArchiveHeader{Name: entry.name, Size: int64(len(entry.content)), ModTime: time.Now()})
		_, _ = writer.Write([]byte(entry.content))
	}
	_ = writer.Close()
	return path
}

func isIcon(name string) bool { return strings.HasPrefix(name, "icon") }

func (this *ArchiveEntryFinderFixture) TestFindsRegularEntriesInOrder() {
	for _, compression := range []contracts.Compression{contracts.CompressionNone, contracts.CompressionGzip, contracts.CompressionZstd} {
		entries, err := this.finder.FindEntries(this.container(compression), isIcon, 0)

		this.So(err, should.BeNil)
		this.So(entries, should.Resemble, []contracts.ArchiveEntry{
			{Name: "icon/first.png", Content: []byte("first")},
			{Name: "icon/second.png", Content: []byte("second")},
		})
	}
}

func (this *ArchiveEntryFinderFixture) TestLimitStopsEarly() {
	entries, err := this.finder.FindEntries(this.container(contracts.CompressionGzip), isIcon, 1)

	this.So(err, should.BeNil)
	this.So(entries, should.HaveLength, 1)
	this.So(entries[0].Name, should.Equal, "icon/first.png")
}

func (this *ArchiveEntryFinderFixture) TestNoMatches() {
	entries, err := this.finder.FindEntries(this.container(contracts.CompressionNone), func(string) bool { return false }, 0)

	this.So(err, should.BeNil)
	this.So(entries, should.BeEmpty)
}

func (this *ArchiveEntryFinderFixture) TestMissingContainer() {
	_, err := this.finder.FindEntries(filepath.Join(this.workspace, "missing.ANTIKINST"), isIcon, 0)

	this.So(errors.Is(err, contracts.ErrContainerUnreadable), should.BeTrue)
}
