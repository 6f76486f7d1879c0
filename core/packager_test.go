package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smarty/assertions/should"
	"github.com/smarty/gunit"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/smarty/antikinst/contracts"
	"github.com/smarty/antikinst/shell"
)

func TestBuilderFixture(t *testing.T) {
	gunit.Run(new(BuilderFixture), t)
}

type BuilderFixture struct {
	*gunit.Fixture
	workspace string
	source    string
	icons     *FakeIconExtractor
	images    *FakeImageDetector
	logs      *observer.ObservedLogs
	builder   *Builder
	codec     *ContainerCodec
}

func (this *BuilderFixture) Setup() {
	this.workspace, _ = os.MkdirTemp("", "builder-")
	this.source = filepath.Join(this.workspace, "source")
	writeTree(this.source, map[string]string{
		"demo.exe":      "MZ demo",
		"lib/helper.so": "helper",
		"notes.txt":     "notes",
	})
	core, logs := observer.New(zapcore.DebugLevel)
	this.logs = logs
	this.icons = &FakeIconExtractor{}
	this.images = &FakeImageDetector{image: true}
	this.codec = newDiskCodec(nil)
	this.builder = NewBuilder(this.codec, shell.NewDiskFileSystem(this.workspace), this.icons, this.images, zap.New(core))
}

func (this *BuilderFixture) Teardown() {
	_ = os.RemoveAll(this.workspace)
}

func (this *BuilderFixture) request() BuildRequest {
	return BuildRequest{
		SourceDir:          this.source,
		MainExecutable:     filepath.Join(this.source, "demo.exe"),
		DefaultExtractPath: "/opt/demo",
		AppName:            "Demo",
		OutputPath:         filepath.Join(this.workspace, "demo"),
	}
}

func (this *BuilderFixture) TestPackageApplication() {
	result, err := this.builder.PackageApplication(context.Background(), this.request())

	this.So(err, should.BeNil)
	this.So(result.ContainerPath, should.Equal, filepath.Join(this.workspace, "demo.ANTIKINST"))
	this.So(exists(result.ContainerPath), should.BeTrue)
	this.So(result.Manifest.MainExecutable, should.Equal, "app/demo.exe")
	this.So(result.Size, should.BeGreaterThan, 0)
	this.So(result.Entries, should.HaveLength, 4)
}

func (this *BuilderFixture) TestOutputExtensionRecased() {
	request := this.request()
	request.OutputPath = filepath.Join(this.workspace, "demo.antikinst")

	result, err := this.builder.PackageApplication(context.Background(), request)

	this.So(err, should.BeNil)
	this.So(filepath.Base(result.ContainerPath), should.Equal, "demo.ANTIKINST")
}

func (this *BuilderFixture) TestRelativeExecutableResolvedAgainstSource() {
	request := this.request()
	request.MainExecutable = "demo.exe"

	result, err := this.builder.PackageApplication(context.Background(), request)

	this.So(err, should.BeNil)
	this.So(result.Manifest.MainExecutable, should.Equal, "app/demo.exe")
}

func (this *BuilderFixture) TestExecutableIconIncluded() {
	this.icons.content = []byte("icon bytes")

	result, err := this.builder.PackageApplication(context.Background(), this.request())

	this.So(err, should.BeNil)
	content, found, _ := this.codec.ReadIconBytes(result.ContainerPath)
	this.So(found, should.BeTrue)
	this.So(string(content), should.Equal, "icon bytes")
	this.So(this.icons.executable, should.Equal, filepath.Join(this.source, "demo.exe"))
}

func (this *BuilderFixture) TestIconFailureIsLoggedAndBuildContinues() {
	this.icons.err = errors.New("no icon resource")

	result, err := this.builder.PackageApplication(context.Background(), this.request())

	this.So(err, should.BeNil)
	this.So(exists(result.ContainerPath), should.BeTrue)
	this.So(this.logs.FilterMessage("Executable icon unavailable.").Len(), should.Equal, 1)
}

func (this *BuilderFixture) TestNonImageIconDropped() {
	this.icons.content = []byte("garbage")
	this.images.image = false

	result, err := this.builder.PackageApplication(context.Background(), this.request())

	this.So(err, should.BeNil)
	_, found, _ := this.codec.ReadIconBytes(result.ContainerPath)
	this.So(found, should.BeFalse)
}

func (this *BuilderFixture) TestBlankFieldsAreInvalidInput() {
	request := this.request()
	request.AppName = " "
	_, err := this.builder.PackageApplication(context.Background(), request)
	this.So(errors.Is(err, contracts.ErrInvalidInput), should.BeTrue)
	this.So(errors.Is(err, errBlankAppName), should.BeTrue)

	request = this.request()
	request.DefaultExtractPath = ""
	_, err = this.builder.PackageApplication(context.Background(), request)
	this.So(errors.Is(err, contracts.ErrInvalidInput), should.BeTrue)
	this.So(errors.Is(err, errBlankDefaultExtractPath), should.BeTrue)
}

func (this *BuilderFixture) TestSourceMustBeDirectory() {
	request := this.request()
	request.SourceDir = filepath.Join(this.source, "notes.txt")

	_, err := this.builder.PackageApplication(context.Background(), request)

	this.So(errors.Is(err, contracts.ErrInvalidInput), should.BeTrue)
}

func (this *BuilderFixture) TestExecutableMustBeFileInsideSource() {
	writeTree(this.workspace, map[string]string{"outside.exe": "MZ"})
	request := this.request()
	request.MainExecutable = filepath.Join(this.workspace, "outside.exe")

	_, err := this.builder.PackageApplication(context.Background(), request)

	this.So(errors.Is(err, contracts.ErrInvalidInput), should.BeTrue)
	this.So(errors.Is(err, contracts.ErrInvalidSource), should.BeTrue)
	this.So(exists(filepath.Join(this.workspace, "demo.ANTIKINST")), should.BeFalse)
}

func (this *BuilderFixture) TestMissingExecutableIsInvalidInput() {
	request := this.request()
	request.MainExecutable = filepath.Join(this.source, "missing.exe")

	_, err := this.builder.PackageApplication(context.Background(), request)

	this.So(errors.Is(err, contracts.ErrInvalidInput), should.BeTrue)
}

/////////////////////////

type FakeIconExtractor struct {
	executable string
	content    []byte
	err        error
}

func (this *FakeIconExtractor) ExtractIcon(executable string) ([]byte, error) {
	this.executable = executable
	return this.content, this.err
}

type FakeImageDetector struct{ image bool }

func (this *FakeImageDetector) IsImage([]byte) bool { return this.image }
