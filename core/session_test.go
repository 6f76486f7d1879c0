package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smarty/assertions/should"
	"github.com/smarty/gunit"

	"github.com/smarty/antikinst/contracts"
)

func TestSessionFixture(t *testing.T) {
	gunit.Run(new(SessionFixture), t)
}

type SessionFixture struct {
	*gunit.Fixture
	*installation
	session *Session
	target  string
}

func (this *SessionFixture) Setup() {
	this.installation = newInstallation()
	this.session = this.engine.NewSession(this.context, this.observer)
	this.target = filepath.Join(this.context.AppsRoot, "Demo")
}

func (this *SessionFixture) Teardown() {
	_ = this.session.Close()
	this.cleanup()
}

func (this *SessionFixture) extract() {
	this.So(this.session.SelectContainer(this.container), should.BeNil)
	this.So(this.session.SetTargetPath(this.target), should.BeNil)
	_, err := this.session.BeginExtraction(context.Background())
	this.So(err, should.BeNil)
	this.So(this.session.Await(context.Background()), should.BeNil)
}

func (this *SessionFixture) TestFreshInstall() {
	this.extract()

	result, err := this.session.Finish(context.Background(), contracts.FinishOptions{})

	this.So(err, should.BeNil)
	this.So(this.session.State(), should.Equal, contracts.StateFinalized)
	this.So(this.observer.states(), should.Resemble, []contracts.State{
		contracts.StateConfigurePath,
		contracts.StateExtracting,
		contracts.StateConfiguring,
		contracts.StateReady,
		contracts.StateFinalized,
	})
	this.So(result.BackupPath, should.Equal, filepath.Join(this.target, "backup", "demo.ANTIKINST"))
	this.So(result.ManifestPath, should.Equal, filepath.Join(this.target, contracts.ManifestFilename))
	this.So(result.Steps, should.Resemble, []StepReport{
		{Name: StepInstallerExecutable},
		{Name: StepRepairExecutable},
		{Name: StepShortcut, Skipped: true},
		{Name: StepLaunch, Skipped: true},
	})
	tree := readTree(this.target)
	this.So(tree["app/demo.exe"], should.Equal, "MZ demo")
	this.So(tree[installerExecutableName], should.Equal, "installer tool")
	this.So(tree[repairExecutableName], should.Equal, "repair tool")
	this.So(this.observer.manifests, should.HaveLength, 1)
	this.So(this.observer.progress, should.NotBeEmpty)
	this.So(this.session.Extraction().Processed, should.Equal, this.session.Extraction().Total)
}

func (this *SessionFixture) TestFinishTwiceKeepsOneRetainedContainer() {
	this.extract()

	first, err1 := this.session.Finish(context.Background(), contracts.FinishOptions{})
	second, err2 := this.session.Finish(context.Background(), contracts.FinishOptions{Launch: true})

	this.So(err1, should.BeNil)
	this.So(err2, should.BeNil)
	this.So(second, should.Resemble, first)
	this.So(treeNames(filepath.Join(this.target, "backup")), should.Resemble, []string{"demo.ANTIKINST"})
	this.So(this.launcher.executables, should.BeEmpty)
}

func (this *SessionFixture) TestSuggestedTarget() {
	this.So(this.session.SuggestedTarget(), should.BeBlank)

	_ = this.session.SelectContainer(this.container)

	this.So(this.session.SuggestedTarget(), should.Equal, filepath.Join(this.workspace, "default", "Demo"))
}

func (this *SessionFixture) TestDotNamedApplicationStaysUnderAppsRoot() {
	container := filepath.Join(this.workspace, "dots.ANTIKINST")
	writeRawTar(container,
		rawEntry{name: contracts.ManifestFilename, content: `{"app_name":"..","主程序目录":"app/demo.exe"}`},
		rawEntry{name: "app/demo.exe", content: "MZ"},
	)

	err := this.session.SelectContainer(container)

	this.So(err, should.BeNil)
	this.So(this.session.SuggestedTarget(), should.Equal, filepath.Join(this.context.AppsRoot, contracts.DefaultAppName))
}

func (this *SessionFixture) TestEmptyTargetTakesSuggestion() {
	_ = this.session.SelectContainer(this.container)

	err := this.session.SetTargetPath("")

	this.So(err, should.BeNil)
	this.So(this.session.Target(), should.Equal, filepath.Join(this.workspace, "default", "Demo"))
}

func (this *SessionFixture) TestOutOfOrderCallsAreInvalidTransitions() {
	_, err := this.session.BeginExtraction(context.Background())
	this.So(errors.Is(err, contracts.ErrInvalidTransition), should.BeTrue)

	this.So(errors.Is(this.session.SetTargetPath(this.target), contracts.ErrInvalidTransition), should.BeTrue)

	_, err = this.session.Finish(context.Background(), contracts.FinishOptions{})
	this.So(errors.Is(err, contracts.ErrInvalidTransition), should.BeTrue)

	this.So(errors.Is(this.session.Await(context.Background()), contracts.ErrInvalidTransition), should.BeTrue)
	this.So(this.session.State(), should.Equal, contracts.StateSelectPackage)
}

func (this *SessionFixture) TestBeginWithoutTargetIsInvalid() {
	_ = this.session.SelectContainer(this.container)

	_, err := this.session.BeginExtraction(context.Background())

	this.So(errors.Is(err, contracts.ErrInvalidTransition), should.BeTrue)
}

func (this *SessionFixture) TestSelectAfterFinishIsInvalid() {
	this.extract()
	_, _ = this.session.Finish(context.Background(), contracts.FinishOptions{})

	err := this.session.SelectContainer(this.container)

	this.So(errors.Is(err, contracts.ErrInvalidTransition), should.BeTrue)
}

func (this *SessionFixture) TestCorruptContainerStaysInSelectPackage() {
	corrupt := filepath.Join(this.workspace, "corrupt.ANTIKINST")
	writeRawTar(corrupt, rawEntry{name: "config.json", content: "{not json"})

	err := this.session.SelectContainer(corrupt)

	this.So(errors.Is(err, contracts.ErrManifestCorrupt), should.BeTrue)
	this.So(this.session.State(), should.Equal, contracts.StateSelectPackage)
	this.So(this.observer.failures, should.HaveLength, 1)
}

func (this *SessionFixture) TestReselectingReplacesManifest() {
	other := filepath.Join(this.workspace, "other.ANTIKINST")
	writeRawTar(other,
		rawEntry{name: "config.json", content: `{"app_name":"Other","默认解压路径":"/opt/other","主程序目录":"app/other.exe"}`},
		rawEntry{name: "app/other.exe", content: "MZ"},
	)
	_ = this.session.SelectContainer(this.container)

	err := this.session.SelectContainer(other)

	this.So(err, should.BeNil)
	this.So(this.session.Manifest().AppName, should.Equal, "Other")
	this.So(this.session.State(), should.Equal, contracts.StateConfigurePath)
}

func (this *SessionFixture) TestUnwritableTargetRefused() {
	writeTree(this.workspace, map[string]string{"plain.txt": "file"})
	_ = this.session.SelectContainer(this.container)

	err := this.session.SetTargetPath(filepath.Join(this.workspace, "plain.txt", "Demo"))

	this.So(errors.Is(err, contracts.ErrTargetNotWritable), should.BeTrue)
	this.So(this.session.State(), should.Equal, contracts.StateConfigurePath)
}

func (this *SessionFixture) TestMergeKeepsUnrelatedFiles() {
	writeTree(this.target, map[string]string{"saves/slot1": "progress", "app/readme.txt": "stale"})

	this.extract()

	tree := readTree(this.target)
	this.So(tree["saves/slot1"], should.Equal, "progress")
	this.So(tree["app/readme.txt"], should.Equal, "hello")
}

func (this *SessionFixture) TestFailedExtractionReturnsToConfigurePath() {
	broken := filepath.Join(this.workspace, "broken.ANTIKINST")
	writeRawTar(broken,
		rawEntry{name: "config.json", content: validManifest},
		rawEntry{name: "app/readme.txt", content: "no executable"},
	)
	_ = this.session.SelectContainer(broken)
	_ = this.session.SetTargetPath(this.target)
	_, _ = this.session.BeginExtraction(context.Background())

	err := this.session.Await(context.Background())

	this.So(errors.Is(err, contracts.ErrManifestCorrupt), should.BeTrue)
	this.So(this.session.State(), should.Equal, contracts.StateConfigurePath)
	this.So(this.observer.failures, should.HaveLength, 1)
}

func (this *SessionFixture) TestUnreadableContainerFailsFinish() {
	this.extract()
	_ = os.WriteFile(this.container, []byte("truncated"), 0644)

	_, err := this.session.Finish(context.Background(), contracts.FinishOptions{})

	this.So(err, should.NotBeNil)
	this.So(this.session.State(), should.Equal, contracts.StateReady)
}

func (this *SessionFixture) TestPostStepsRunWhenRequested() {
	this.extract()

	result, err := this.session.Finish(context.Background(), contracts.FinishOptions{CreateShortcut: true, Launch: true})

	this.So(err, should.BeNil)
	executable := filepath.Join(this.target, "app", "demo.exe")
	this.So(this.shortcuts.requests, should.Resemble, []contracts.ShortcutRequest{{
		Name:       "Demo",
		Executable: executable,
		WorkingDir: filepath.Join(this.target, "app"),
		Icon:       []byte("png bytes"),
	}})
	this.So(this.launcher.executables, should.Resemble, []string{executable})
	this.So(result.Steps[2:], should.Resemble, []StepReport{{Name: StepShortcut}, {Name: StepLaunch}})
}

func (this *SessionFixture) TestPostStepFailuresDoNotFailFinish() {
	this.shortcuts.err = errors.New("desktop unavailable")
	this.launcher.err = errors.New("exec format error")
	this.extract()

	result, err := this.session.Finish(context.Background(), contracts.FinishOptions{CreateShortcut: true, Launch: true})

	this.So(err, should.BeNil)
	this.So(this.session.State(), should.Equal, contracts.StateFinalized)
	this.So(result.Steps[2].Err, should.Equal, this.shortcuts.err)
	this.So(result.Steps[3].Err, should.Equal, this.launcher.err)
}

func (this *SessionFixture) TestMissingRecoveryExecutablesAreSkipped() {
	this.context.RepairExecutable = filepath.Join(this.workspace, "missing.exe")
	this.context.InstallerExecutable = ""
	this.session = this.engine.NewSession(this.context, this.observer)
	this.extract()

	result, err := this.session.Finish(context.Background(), contracts.FinishOptions{})

	this.So(err, should.BeNil)
	this.So(result.Steps[:2], should.Resemble, []StepReport{
		{Name: StepInstallerExecutable, Skipped: true},
		{Name: StepRepairExecutable, Skipped: true},
	})
}

func (this *SessionFixture) TestCancelledExtractionReturnsToConfigurePath() {
	_ = this.session.SelectContainer(this.container)
	_ = this.session.SetTargetPath(this.target)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _ = this.session.BeginExtraction(ctx)

	err := this.session.Await(context.Background())

	this.So(errors.Is(err, context.Canceled), should.BeTrue)
	this.So(this.session.State(), should.Equal, contracts.StateConfigurePath)
	this.So(this.session.Close(), should.BeNil)
}

func (this *SessionFixture) TestRepairSessionStagesUntilFinish() {
	root := this.install(this.T())
	_ = os.Remove(filepath.Join(root, "app", "readme.txt"))
	writeTree(root, map[string]string{"saves/slot1": "progress", "app/stray.txt": "stray"})
	session, err := this.engine.NewRepairSession(context.Background(), this.context.WithInstallRoot(root), this.observer)
	this.So(err, should.BeNil)
	defer func() { _ = session.Close() }()

	this.So(session.Mode(), should.Equal, contracts.ModeRepair)
	this.So(session.SelectContainer(""), should.BeNil)
	this.So(session.SuggestedTarget(), should.Equal, root)
	this.So(session.SetTargetPath(""), should.BeNil)
	_, err = session.BeginExtraction(context.Background())
	this.So(err, should.BeNil)
	this.So(session.Await(context.Background()), should.BeNil)
	this.So(exists(filepath.Join(root, "app", "readme.txt")), should.BeFalse)

	_, err = session.Finish(context.Background(), contracts.FinishOptions{})

	this.So(err, should.BeNil)
	tree := readTree(root)
	this.So(tree["app/readme.txt"], should.Equal, "hello")
	this.So(tree["saves/slot1"], should.Equal, "progress")
	this.So(tree, should.NotContainKey, "app/stray.txt")
	this.So(treeNames(filepath.Join(root, "backup")), should.Resemble, []string{"demo.ANTIKINST"})
	this.So(this.stagingEntries(), should.BeEmpty)
}

func (this *SessionFixture) TestRepairSessionRefusesOtherContainersAndTargets() {
	root := this.install(this.T())
	session, err := this.engine.NewRepairSession(context.Background(), this.context.WithInstallRoot(root), nil)
	this.So(err, should.BeNil)
	defer func() { _ = session.Close() }()

	err = session.SelectContainer(this.container)
	this.So(errors.Is(err, contracts.ErrInvalidTransition), should.BeTrue)

	this.So(session.SelectContainer(filepath.Join(root, "backup", "demo.ANTIKINST")), should.BeNil)
	err = session.SetTargetPath(filepath.Join(this.workspace, "elsewhere"))
	this.So(errors.Is(err, contracts.ErrInvalidTransition), should.BeTrue)
}

func (this *SessionFixture) TestRepairSessionWithoutBackupFails() {
	root := this.install(this.T())
	_ = os.RemoveAll(filepath.Join(root, "backup"))

	_, err := this.engine.NewRepairSession(context.Background(), this.context.WithInstallRoot(root), nil)

	this.So(errors.Is(err, contracts.ErrBackupMissing), should.BeTrue)
	this.So(this.stagingEntries(), should.BeEmpty)
}

func (this *SessionFixture) TestClosingRepairSessionRemovesStaging() {
	root := this.install(this.T())
	session, _ := this.engine.NewRepairSession(context.Background(), this.context.WithInstallRoot(root), nil)
	this.So(this.stagingEntries(), should.HaveLength, 1)

	this.So(session.Close(), should.BeNil)

	this.So(this.stagingEntries(), should.BeEmpty)
}
