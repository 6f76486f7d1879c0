package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smarty/assertions/should"
	"github.com/smarty/gunit"
	"go.uber.org/zap"

	"github.com/smarty/antikinst/contracts"
	"github.com/smarty/antikinst/shell"
)

func TestUninstallationFixture(t *testing.T) {
	gunit.Run(new(UninstallationFixture), t)
}

type UninstallationFixture struct {
	*gunit.Fixture
	workspace string
	root      string
	deleter   *RecordingDeleter
}

func (this *UninstallationFixture) Setup() {
	this.workspace, _ = os.MkdirTemp("", "uninstall-")
	this.root = filepath.Join(this.workspace, "Demo")
	writeTree(this.root, map[string]string{
		"config.json":       "{}",
		"app/demo.exe":      "MZ",
		"app/lib/helper.so": "helper",
		"backup/demo.tar":   "container",
	})
	this.deleter = &RecordingDeleter{inner: shell.NewDiskFileSystem(this.workspace)}
}

func (this *UninstallationFixture) Teardown() {
	_ = os.RemoveAll(this.workspace)
}

func (this *UninstallationFixture) TestRemoveTreeInOneStep() {
	report := RemoveTree(this.deleter, this.root, zap.NewNop())

	this.So(report.Complete(), should.BeTrue)
	this.So(report.Removed, should.Equal, 8)
	this.So(this.deleter.bulk, should.Resemble, []string{this.root})
	this.So(exists(this.root), should.BeFalse)
}

func (this *UninstallationFixture) TestRemoveTreeFallsBackLeafByLeaf() {
	this.deleter.refuseBulk = true

	report := RemoveTree(this.deleter, this.root, zap.NewNop())

	this.So(report.Complete(), should.BeTrue)
	this.So(report.Removed, should.Equal, 8)
	this.So(this.deleter.single, should.Resemble, []string{
		filepath.Join(this.root, "app", "lib", "helper.so"),
		filepath.Join(this.root, "app", "demo.exe"),
		filepath.Join(this.root, "backup", "demo.tar"),
		filepath.Join(this.root, "config.json"),
		filepath.Join(this.root, "app", "lib"),
		filepath.Join(this.root, "app"),
		filepath.Join(this.root, "backup"),
		this.root,
	})
	this.So(exists(this.root), should.BeFalse)
}

func (this *UninstallationFixture) TestUndeletableFilesAreReported() {
	this.deleter.refuseBulk = true
	blocked := filepath.Join(this.root, "app", "demo.exe")
	this.deleter.refuse = map[string]bool{blocked: true}

	report := RemoveTree(this.deleter, this.root, zap.NewNop())

	this.So(report.Complete(), should.BeFalse)
	this.So(report.Remaining, should.Equal, 3)
	this.So(report.Removed, should.Equal, 5)
	this.So(report.Failures, should.Resemble, []string{blocked, filepath.Join(this.root, "app"), this.root})
	this.So(errors.Is(report.Err(), contracts.ErrPartialDeletion), should.BeTrue)
	this.So(treeNames(this.root), should.Resemble, []string{"app/demo.exe"})
}

func (this *UninstallationFixture) TestClearTreeKeepsRoot() {
	report := ClearTree(this.deleter, this.root, zap.NewNop())

	this.So(report.Complete(), should.BeTrue)
	this.So(report.Removed, should.Equal, 7)
	this.So(this.deleter.bulk, should.Resemble, []string{
		filepath.Join(this.root, "app"),
		filepath.Join(this.root, "backup"),
		filepath.Join(this.root, "config.json"),
	})
	this.So(exists(this.root), should.BeTrue)
	this.So(treeNames(this.root), should.BeEmpty)
}

func (this *UninstallationFixture) TestAlreadyMissingCountsAsRemoved() {
	report := RemoveTree(this.deleter, filepath.Join(this.workspace, "missing"), zap.NewNop())

	this.So(report.Complete(), should.BeTrue)
}

//////////////////////////////////////////////////////////////////////

type RecordingDeleter struct {
	inner      contracts.Deleter
	refuseBulk bool
	refuse     map[string]bool
	bulk       []string
	single     []string
}

func (this *RecordingDeleter) Delete(path string) error {
	this.single = append(this.single, path)
	if this.refuse[path] {
		return errBlocked
	}
	return this.inner.Delete(path)
}

func (this *RecordingDeleter) DeleteAll(path string) error {
	this.bulk = append(this.bulk, path)
	if this.refuseBulk {
		return errBlocked
	}
	return this.inner.DeleteAll(path)
}
