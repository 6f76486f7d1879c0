package core

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smarty/antikinst/contracts"
)

type FinishResult struct {
	BackupPath   string
	ManifestPath string
	Steps        []StepReport
}

// Session walks one container through SelectPackage, ConfigurePath,
// Extracting, Configuring, Ready and Finalized. Observer callbacks other than
// Progressed run while the session is locked and must not call back into it;
// Progressed runs on the extraction goroutine.
type Session struct {
	engine   *Engine
	install  contracts.InstallContext
	observer contracts.Observer
	mode     contracts.Mode

	mutex      sync.Mutex
	state      contracts.State
	container  string
	original   string
	manifest   contracts.Manifest
	target     string
	staging    string
	task       *ExtractionTask
	settled    chan struct{}
	settleErr  error
	extraction ExtractionReport
	result     *FinishResult
}

func (this *Engine) NewSession(install contracts.InstallContext, observer contracts.Observer) *Session {
	return &Session{
		engine:   this,
		install:  install,
		observer: observerOrNop(observer),
		mode:     contracts.ModeInstall,
		state:    contracts.StateSelectPackage,
	}
}

// NewRepairSession fixes the container to a staged copy of the retained
// container and the target to the install root.
func (this *Engine) NewRepairSession(_ context.Context, install contracts.InstallContext, observer contracts.Observer) (*Session, error) {
	root, err := installedRoot(install)
	if err != nil {
		return nil, err
	}
	install = install.WithInstallRoot(root)
	release, err := this.lock(root)
	if err != nil {
		return nil, err
	}
	defer release()

	original, err := NewBackupStore(root, this.files, this.logger).Resolve()
	if err != nil {
		return nil, err
	}
	staging, err := this.newStaging(install, "reinstall")
	if err != nil {
		return nil, err
	}
	staged, err := this.stage(original, staging)
	if err != nil {
		this.removeStaging(staging)
		return nil, err
	}
	return &Session{
		engine:    this,
		install:   install,
		observer:  observerOrNop(observer),
		mode:      contracts.ModeRepair,
		state:     contracts.StateSelectPackage,
		container: staged,
		original:  original,
		target:    root,
		staging:   staging,
	}, nil
}

func (this *Session) SelectContainer(path string) error {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	if this.state != contracts.StateSelectPackage && this.state != contracts.StateConfigurePath {
		return this.invalid("select a container")
	}
	container, err := this.selectable(path)
	if err != nil {
		return err
	}
	manifest, err := this.engine.codec.ReadManifest(container)
	if err != nil {
		this.observer.Failed(this.state, err)
		return err
	}
	this.container = container
	this.manifest = manifest
	this.observer.ManifestResolved(manifest)
	if this.state != contracts.StateConfigurePath {
		this.transition(contracts.StateConfigurePath)
	}
	return nil
}

func (this *Session) selectable(path string) (string, error) {
	if this.mode == contracts.ModeRepair {
		if path == "" || sameFile(path, this.container) || sameFile(path, this.original) {
			return this.container, nil
		}
		return "", this.invalid("choose a container in repair mode")
	}
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: container path is required", contracts.ErrInvalidInput)
	}
	absolute, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", contracts.ErrInvalidInput, err)
	}
	return absolute, nil
}

// SuggestedTarget is the manifest's default path, or a directory named after
// the application under the apps root.
func (this *Session) SuggestedTarget() string {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	return this.suggestedTarget()
}

func (this *Session) suggestedTarget() string {
	if this.mode == contracts.ModeRepair {
		return this.target
	}
	if this.state == contracts.StateSelectPackage {
		return ""
	}
	if this.manifest.DefaultExtractPath != "" {
		return this.manifest.DefaultExtractPath
	}
	if this.install.AppsRoot == "" {
		return ""
	}
	return filepath.Join(this.install.AppsRoot, this.manifest.Key())
}

// SetTargetPath accepts a target that exists or can be created and written.
// An empty path takes the suggested target.
func (this *Session) SetTargetPath(path string) error {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	if this.state != contracts.StateConfigurePath {
		return this.invalid("set the target path")
	}
	target, err := this.targetFor(path)
	if err != nil {
		return err
	}
	if err = this.probe(target); err != nil {
		this.observer.Failed(this.state, err)
		return err
	}
	this.target = target
	return nil
}

func (this *Session) targetFor(path string) (string, error) {
	if this.mode == contracts.ModeRepair {
		if path == "" || sameFile(path, this.install.InstallRoot) {
			return this.install.InstallRoot, nil
		}
		return "", this.invalid("choose a target in repair mode")
	}
	if strings.TrimSpace(path) == "" {
		path = this.suggestedTarget()
	}
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: target path is required", contracts.ErrInvalidInput)
	}
	absolute, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", contracts.ErrInvalidInput, err)
	}
	return absolute, nil
}

func (this *Session) probe(target string) error {
	files := this.engine.files
	if err := files.MakeDirectory(target); err != nil {
		return fmt.Errorf("%w: %w", contracts.ErrTargetNotWritable, err)
	}
	probe := filepath.Join(target, ".antikinst-probe-"+uuid.NewString())
	if err := files.WriteFile(probe, nil); err != nil {
		return fmt.Errorf("%w: %w", contracts.ErrTargetNotWritable, err)
	}
	return files.Delete(probe)
}

// BeginExtraction starts unpacking. A fresh install merges into the target;
// repair mode replaces a private staging directory instead and leaves the
// live install alone until Finish.
func (this *Session) BeginExtraction(ctx context.Context) (*ExtractionTask, error) {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	if this.state != contracts.StateConfigurePath || this.target == "" {
		return nil, this.invalid("begin extraction")
	}
	request, root := this.extractionRequest()
	task, err := StartExtraction(ctx, this.engine.codec, request)
	if err != nil {
		this.observer.Failed(this.state, err)
		return nil, err
	}
	this.task = task
	this.settled = make(chan struct{})
	this.settleErr = nil
	this.transition(contracts.StateExtracting)
	go this.settle(task, root, this.settled)
	return task, nil
}

func (this *Session) extractionRequest() (ExtractionRequest, string) {
	request := ExtractionRequest{
		Container:  this.container,
		Target:     this.target,
		OnProgress: this.observer.Progressed,
	}
	if this.mode == contracts.ModeRepair {
		request.Target = this.stagedTree()
		request.Overwrite = true
		request.Key = this.target
		request.Exclude = ExcludingPrefix(contracts.BackupDirectory)
	}
	return request, request.Target
}

func (this *Session) stagedTree() string {
	return filepath.Join(this.staging, "extract")
}

func (this *Session) settle(task *ExtractionTask, root string, settled chan struct{}) {
	defer close(settled)
	report, err := task.Wait()
	if err == nil && report.Processed != report.Total {
		err = fmt.Errorf("extraction incomplete: %d of %d entries", report.Processed, report.Total)
	}

	this.mutex.Lock()
	defer this.mutex.Unlock()
	if err == nil {
		err = this.engine.integrity.Verify(this.manifest, root)
	}
	this.task = nil
	this.extraction = report
	this.settleErr = err
	if err != nil {
		this.engine.logger.Warn("Extraction failed.", zap.String("target", root), zap.Error(err))
		this.transition(contracts.StateConfigurePath)
		this.observer.Failed(contracts.StateExtracting, err)
		return
	}
	this.transition(contracts.StateConfiguring)
}

// Await blocks until the running extraction settles and returns its outcome.
func (this *Session) Await(ctx context.Context) error {
	this.mutex.Lock()
	settled := this.settled
	this.mutex.Unlock()
	if settled == nil {
		return this.invalid("await extraction")
	}
	select {
	case <-settled:
	case <-ctx.Done():
		return ctx.Err()
	}
	this.mutex.Lock()
	defer this.mutex.Unlock()
	return this.settleErr
}

// Finish commits the install. Once finalized, later calls return the first
// result without repeating any step.
func (this *Session) Finish(ctx context.Context, options contracts.FinishOptions) (FinishResult, error) {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	switch this.state {
	case contracts.StateFinalized:
		return *this.result, nil
	case contracts.StateConfiguring:
		this.transition(contracts.StateReady)
	case contracts.StateReady:
	default:
		return FinishResult{}, this.invalid("finish")
	}

	result, installed, err := this.commit(ctx)
	if err != nil {
		this.observer.Failed(this.state, err)
		return FinishResult{}, err
	}
	this.transition(contracts.StateFinalized)
	result.Steps = append(result.Steps, this.postSteps(ctx, installed, options)...)
	this.result = &result
	return result, nil
}

func (this *Session) commit(ctx context.Context) (result FinishResult, installed contracts.Manifest, err error) {
	release, err := this.engine.lock(this.target)
	if err != nil {
		return result, installed, err
	}
	defer release()

	store := NewBackupStore(this.target, this.engine.files, this.engine.logger)
	if err = store.Ensure(); err != nil {
		return result, installed, err
	}
	if result.BackupPath, err = store.Retain(this.container); err != nil {
		return result, installed, err
	}
	if result.ManifestPath, installed, err = this.installManifest(ctx); err != nil {
		return result, installed, err
	}

	result.Steps = this.engine.copyRecoveryExecutables(this.install, this.target)

	if this.mode == contracts.ModeRepair {
		if err = this.commitStaging(); err != nil {
			return result, installed, err
		}
		this.engine.removeStaging(this.staging)
		this.staging = ""
	}
	this.engine.logger.Info("Install finalized.",
		zap.String("target", this.target),
		zap.String("mode", this.mode.String()),
		zap.String("backup", result.BackupPath))
	return result, installed, nil
}

func (this *Session) installManifest(ctx context.Context) (string, contracts.Manifest, error) {
	_, err := this.engine.codec.Extract(ctx, ExtractionRequest{
		Container: this.container,
		Target:    this.target,
		Include:   OnlyEntry(contracts.ManifestFilename),
	})
	if err != nil {
		return "", contracts.Manifest{}, err
	}
	path := filepath.Join(this.target, contracts.ManifestFilename)
	raw, err := this.engine.files.ReadFile(path)
	if err != nil {
		return "", contracts.Manifest{}, fmt.Errorf("%w: %w", contracts.ErrConfigCorrupt, err)
	}
	manifest, err := contracts.ParseManifest(raw)
	if err != nil {
		return "", contracts.Manifest{}, fmt.Errorf("%w: %w", contracts.ErrConfigCorrupt, err)
	}
	if err = manifest.Validate(); err != nil {
		return "", contracts.Manifest{}, fmt.Errorf("%w: %w", contracts.ErrConfigCorrupt, err)
	}
	return path, manifest, nil
}

// commitStaging moves every staged top-level entry into the live install.
// Colliding directories are deleted first; colliding files are overwritten.
func (this *Session) commitStaging() error {
	files := this.engine.files
	entries, err := files.ReadDirectory(this.stagedTree())
	if err != nil {
		return fmt.Errorf("read staging: %w", err)
	}
	for _, entry := range entries {
		destination := filepath.Join(this.target, filepath.Base(entry.Path()))
		if existing, err := files.Stat(destination); err == nil && (existing.IsDir() || entry.IsDir()) {
			if err = files.DeleteAll(destination); err != nil {
				return fmt.Errorf("replace %q: %w", destination, err)
			}
		}
		if err = files.Move(entry.Path(), destination); err != nil {
			return fmt.Errorf("replace %q: %w", destination, err)
		}
	}
	return nil
}

func (this *Session) postSteps(ctx context.Context, installed contracts.Manifest, options contracts.FinishOptions) []StepReport {
	executable, err := installed.ResolveExecutable(this.target)
	return []StepReport{
		this.shortcutStep(ctx, installed, executable, err, options.CreateShortcut),
		this.launchStep(ctx, executable, err, options.Launch),
	}
}

func (this *Session) shortcutStep(ctx context.Context, installed contracts.Manifest, executable string, resolveErr error, requested bool) StepReport {
	if !requested || this.engine.shortcuts == nil {
		return StepReport{Name: StepShortcut, Skipped: true}
	}
	if resolveErr != nil {
		return this.failedStep(StepShortcut, resolveErr)
	}
	icon, _, _ := this.engine.LocateIcon(this.install.WithInstallRoot(this.target))
	err := this.engine.shortcuts.CreateShortcut(ctx, contracts.ShortcutRequest{
		Name:       installed.AppName,
		Executable: executable,
		WorkingDir: filepath.Dir(executable),
		Icon:       icon,
	})
	if err != nil {
		return this.failedStep(StepShortcut, err)
	}
	return StepReport{Name: StepShortcut}
}

func (this *Session) launchStep(ctx context.Context, executable string, resolveErr error, requested bool) StepReport {
	if !requested || this.engine.launcher == nil {
		return StepReport{Name: StepLaunch, Skipped: true}
	}
	if resolveErr != nil {
		return this.failedStep(StepLaunch, resolveErr)
	}
	if err := this.engine.launcher.Launch(ctx, executable, filepath.Dir(executable)); err != nil {
		return this.failedStep(StepLaunch, err)
	}
	return StepReport{Name: StepLaunch}
}

func (this *Session) failedStep(step string, err error) StepReport {
	this.engine.logger.Warn("Post-install step failed.", zap.String("step", step), zap.Error(err))
	return StepReport{Name: step, Err: err}
}

// Close cancels any running extraction and removes staging.
func (this *Session) Close() error {
	this.mutex.Lock()
	task, settled := this.task, this.settled
	this.mutex.Unlock()
	if task != nil {
		task.Cancel()
		<-settled
	}

	this.mutex.Lock()
	defer this.mutex.Unlock()
	this.engine.removeStaging(this.staging)
	this.staging = ""
	return nil
}

func (this *Session) State() contracts.State {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	return this.state
}

func (this *Session) Mode() contracts.Mode {
	return this.mode
}

func (this *Session) Manifest() contracts.Manifest {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	return this.manifest
}

func (this *Session) Target() string {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	return this.target
}

func (this *Session) Extraction() ExtractionReport {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	return this.extraction
}

func (this *Session) transition(to contracts.State) {
	from := this.state
	this.state = to
	this.engine.logger.Debug("Session transition.", zap.Stringer("from", from), zap.Stringer("to", to))
	this.observer.Transitioned(from, to)
}

func (this *Session) invalid(action string) error {
	return fmt.Errorf("%w: cannot %s while %s", contracts.ErrInvalidTransition, action, this.state)
}

func sameFile(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	left, err1 := filepath.Abs(a)
	right, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && left == right
}
