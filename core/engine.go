package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smarty/antikinst/contracts"
	"github.com/smarty/antikinst/logging"
)

type ContainerReader interface {
	Extractor
	ReadManifest(container string) (contracts.Manifest, error)
	ReadIconBytes(container string) ([]byte, bool, error)
}

// Dependencies wires an Engine. Shortcuts, Launcher and Images are optional;
// the post-steps they serve are reported as skipped when nil.
type Dependencies struct {
	Codec      ContainerReader
	Files      contracts.FileSystem
	Locker     contracts.Locker
	Shortcuts  contracts.ShortcutCreator
	Launcher   contracts.Launcher
	Images     contracts.ImageDetector
	Integrity  contracts.IntegrityCheck
	Logger     *zap.Logger
	OnProgress func(contracts.Progress)
}

type Engine struct {
	codec      ContainerReader
	files      contracts.FileSystem
	locker     contracts.Locker
	shortcuts  contracts.ShortcutCreator
	launcher   contracts.Launcher
	images     contracts.ImageDetector
	integrity  contracts.IntegrityCheck
	logger     *zap.Logger
	onProgress func(contracts.Progress)
}

func NewEngine(dependencies Dependencies) *Engine {
	logger := logging.OrNop(dependencies.Logger)
	integrity := dependencies.Integrity
	if integrity == nil {
		integrity = NewCompoundIntegrityCheck(NewFileListingIntegrityChecker(dependencies.Files, logger))
	}
	return &Engine{
		codec:      dependencies.Codec,
		files:      dependencies.Files,
		locker:     dependencies.Locker,
		shortcuts:  dependencies.Shortcuts,
		launcher:   dependencies.Launcher,
		images:     dependencies.Images,
		integrity:  integrity,
		logger:     logger,
		onProgress: dependencies.OnProgress,
	}
}

type StepReport struct {
	Name    string
	Err     error
	Skipped bool
}

type MaintenanceResult struct {
	Container  string
	Manifest   contracts.Manifest
	Extraction ExtractionReport
	Deletion   contracts.DeletionReport
	Steps      []StepReport
}

const (
	StepInstallerExecutable = "copy-installer-executable"
	StepRepairExecutable    = "copy-repair-executable"
	StepShortcut            = "create-shortcut"
	StepLaunch              = "launch"
)

// Repair overlays the retained container onto the install without deleting
// anything the container does not name. backup/ is never touched.
func (this *Engine) Repair(ctx context.Context, install contracts.InstallContext) (result MaintenanceResult, err error) {
	root, err := installedRoot(install)
	if err != nil {
		return result, err
	}
	release, err := this.lock(root)
	if err != nil {
		return result, err
	}
	defer release()

	maintenance, err := this.prepareMaintenance(install.WithInstallRoot(root), "repair")
	if err != nil {
		return result, err
	}
	defer maintenance.cleanup()
	result.Container = maintenance.original
	result.Manifest = maintenance.manifest

	result.Extraction, err = this.extractInto(ctx, maintenance, root)
	if err != nil {
		return result, err
	}
	result.Steps = append(result.Steps, maintenance.restoreRepairExecutable(root))
	this.logger.Info("Repair complete.", zap.String("root", root), zap.Int("entries", result.Extraction.Processed))
	return result, nil
}

// ResetData wipes the install and rebuilds it from the retained container,
// which is staged outside the install before anything is deleted and put back
// into backup/ before extraction starts.
func (this *Engine) ResetData(ctx context.Context, install contracts.InstallContext) (result MaintenanceResult, err error) {
	root, err := installedRoot(install)
	if err != nil {
		return result, err
	}
	release, err := this.lock(root)
	if err != nil {
		return result, err
	}
	defer release()

	maintenance, err := this.prepareMaintenance(install.WithInstallRoot(root), "reset")
	if err != nil {
		return result, err
	}
	defer maintenance.cleanup()
	result.Container = maintenance.original
	result.Manifest = maintenance.manifest

	result.Deletion = ClearTree(this.files, root, this.logger)
	if err = this.files.MakeDirectory(root); err != nil {
		maintenance.keepStaging()
		return result, fmt.Errorf("%w: %w", contracts.ErrTargetNotWritable, err)
	}
	store := NewBackupStore(root, this.files, this.logger)
	if result.Container, err = store.Retain(maintenance.staged); err != nil {
		maintenance.keepStaging()
		return result, err
	}
	result.Extraction, err = this.extractInto(ctx, maintenance, root)
	if err != nil {
		return result, err
	}
	result.Steps = append(result.Steps, maintenance.restoreRepairExecutable(root))
	this.logger.Info("Reset complete.",
		zap.String("root", root),
		zap.Int("entries", result.Extraction.Processed),
		zap.Int("undeleted", result.Deletion.Remaining))
	return result, nil
}

// Uninstall removes the install root. Without confirmation nothing is touched.
// A partially blocked delete is reported, not returned as an error.
func (this *Engine) Uninstall(_ context.Context, install contracts.InstallContext, confirmed bool) (contracts.DeletionReport, error) {
	if !confirmed {
		return contracts.DeletionReport{}, contracts.ErrNotConfirmed
	}
	root, err := installedRoot(install)
	if err != nil {
		return contracts.DeletionReport{}, err
	}
	if _, err = this.files.Stat(root); err != nil {
		return contracts.DeletionReport{}, fmt.Errorf("%w: %q is not installed: %w", contracts.ErrInvalidInput, root, err)
	}
	release, err := this.lock(root)
	if err != nil {
		return contracts.DeletionReport{}, err
	}
	report := RemoveTree(this.files, root, this.logger)
	release()
	if err = this.files.Delete(LockPath(root)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		this.logger.Warn("Unable to remove lock file.", zap.String("path", LockPath(root)), zap.Error(err))
	}
	this.logger.Info("Uninstall complete.",
		zap.String("root", root),
		zap.Int("removed", report.Removed),
		zap.Int("remaining", report.Remaining))
	return report, nil
}

func (this *Engine) extractInto(ctx context.Context, maintenance *maintenanceRun, root string) (ExtractionReport, error) {
	task, err := StartExtraction(ctx, this.codec, ExtractionRequest{
		Container:  maintenance.staged,
		Target:     root,
		Exclude:    ExcludingPrefix(contracts.BackupDirectory),
		OnProgress: this.onProgress,
	})
	if err != nil {
		return ExtractionReport{}, err
	}
	report, err := task.Wait()
	if err != nil {
		return report, err
	}
	if err = this.integrity.Verify(maintenance.manifest, root); err != nil {
		return report, err
	}
	return report, nil
}

func (this *Engine) prepareMaintenance(install contracts.InstallContext, purpose string) (*maintenanceRun, error) {
	store := NewBackupStore(install.InstallRoot, this.files, this.logger)
	original, err := store.Resolve()
	if err != nil {
		return nil, err
	}
	staging, err := this.newStaging(install, purpose)
	if err != nil {
		return nil, err
	}
	maintenance := &maintenanceRun{engine: this, original: original, staging: staging}
	if maintenance.staged, err = this.stage(original, staging); err != nil {
		maintenance.cleanup()
		return nil, err
	}
	if maintenance.manifest, err = this.codec.ReadManifest(maintenance.staged); err != nil {
		maintenance.cleanup()
		return nil, err
	}
	maintenance.repairExecutable = this.stageRecoveryExecutable(install.RepairExecutable, staging)
	return maintenance, nil
}

func (this *Engine) stageRecoveryExecutable(source, staging string) string {
	if source == "" {
		return ""
	}
	if _, err := this.files.Stat(source); err != nil {
		this.logger.Debug("Recovery executable unavailable.", zap.String("path", source), zap.Error(err))
		return ""
	}
	staged, err := this.stage(source, filepath.Join(staging, "recovery"))
	if err != nil {
		this.logger.Warn("Unable to stage recovery executable.", zap.String("path", source), zap.Error(err))
		return ""
	}
	return staged
}

// copyRecoveryExecutables places the installer and repair executables at the
// install root. Missing sources are skipped.
func (this *Engine) copyRecoveryExecutables(install contracts.InstallContext, root string) []StepReport {
	return []StepReport{
		this.copyRecoveryExecutable(StepInstallerExecutable, install.InstallerExecutable, root),
		this.copyRecoveryExecutable(StepRepairExecutable, install.RepairExecutable, root),
	}
}

func (this *Engine) copyRecoveryExecutable(step, source, root string) StepReport {
	if source == "" {
		return StepReport{Name: step, Skipped: true}
	}
	if _, err := this.files.Stat(source); err != nil {
		this.logger.Info("Recovery executable not found; skipping.", zap.String("step", step), zap.String("path", source))
		return StepReport{Name: step, Skipped: true}
	}
	target := filepath.Join(root, filepath.Base(source))
	if filepath.Clean(source) == target {
		return StepReport{Name: step, Skipped: true}
	}
	if err := this.files.Copy(source, target); err != nil {
		this.logger.Warn("Unable to copy recovery executable.", zap.String("step", step), zap.Error(err))
		return StepReport{Name: step, Err: err}
	}
	return StepReport{Name: step}
}

// LockPath is the advisory lock file for an install root. It sits beside the
// root so deleting the root never deletes a held lock.
func LockPath(root string) string {
	root = filepath.Clean(root)
	return filepath.Join(filepath.Dir(root), "."+filepath.Base(root)+".lock")
}

func (this *Engine) lock(root string) (func(), error) {
	if this.locker == nil {
		return func() {}, nil
	}
	if err := this.files.MakeDirectory(filepath.Dir(LockPath(root))); err != nil {
		return nil, fmt.Errorf("%w: %w", contracts.ErrTargetNotWritable, err)
	}
	lock, err := this.locker.Lock(LockPath(root))
	if err != nil {
		return nil, err
	}
	return func() {
		if err := lock.Release(); err != nil {
			this.logger.Warn("Unable to release install lock.", zap.String("root", root), zap.Error(err))
		}
	}, nil
}

// newStaging creates a private directory that must not lie inside the
// install root.
func (this *Engine) newStaging(install contracts.InstallContext, purpose string) (string, error) {
	parent := install.StagingRoot
	if parent == "" {
		parent = filepath.Dir(filepath.Clean(install.InstallRoot))
	}
	parent, err := filepath.Abs(parent)
	if err != nil {
		return "", fmt.Errorf("%w: %w", contracts.ErrInvalidInput, err)
	}
	if install.InstallRoot != "" && contracts.Contains(install.InstallRoot, parent) {
		return "", fmt.Errorf("%w: staging root %q lies inside %q", contracts.ErrInvalidInput, parent, install.InstallRoot)
	}
	staging := filepath.Join(parent, "antikinst-"+purpose+"-"+uuid.NewString())
	if err = this.files.MakeDirectory(staging); err != nil {
		return "", fmt.Errorf("%w: %w", contracts.ErrTargetNotWritable, err)
	}
	return staging, nil
}

func (this *Engine) stage(source, directory string) (string, error) {
	staged := filepath.Join(directory, filepath.Base(source))
	if err := this.files.Copy(source, staged); err != nil {
		return "", fmt.Errorf("stage %q: %w", source, err)
	}
	return staged, nil
}

func (this *Engine) removeStaging(staging string) {
	if staging == "" {
		return
	}
	if err := this.files.DeleteAll(staging); err != nil {
		this.logger.Warn("Unable to remove staging directory.", zap.String("path", staging), zap.Error(err))
	}
}

func installedRoot(install contracts.InstallContext) (string, error) {
	if strings.TrimSpace(install.InstallRoot) == "" {
		return "", fmt.Errorf("%w: install root is required", contracts.ErrInvalidInput)
	}
	root, err := filepath.Abs(install.InstallRoot)
	if err != nil {
		return "", fmt.Errorf("%w: %w", contracts.ErrInvalidInput, err)
	}
	if filepath.Dir(root) == root {
		return "", fmt.Errorf("%w: refusing to operate on %q", contracts.ErrInvalidInput, root)
	}
	return root, nil
}

////////////////////////////////////////

type maintenanceRun struct {
	engine           *Engine
	original         string
	staging          string
	staged           string
	repairExecutable string
	manifest         contracts.Manifest
}

func (this *maintenanceRun) restoreRepairExecutable(root string) StepReport {
	if this.repairExecutable == "" {
		return StepReport{Name: StepRepairExecutable, Skipped: true}
	}
	target := filepath.Join(root, filepath.Base(this.repairExecutable))
	if err := this.engine.files.Copy(this.repairExecutable, target); err != nil {
		this.engine.logger.Warn("Unable to restore repair executable.", zap.String("path", target), zap.Error(err))
		return StepReport{Name: StepRepairExecutable, Err: err}
	}
	return StepReport{Name: StepRepairExecutable}
}

// keepStaging leaves the staged container on disk when it is the only copy left.
func (this *maintenanceRun) keepStaging() {
	this.engine.logger.Error("Retained container could not be restored; staging kept.",
		zap.String("staging", this.staging))
	this.staging = ""
}

func (this *maintenanceRun) cleanup() {
	this.engine.removeStaging(this.staging)
}
