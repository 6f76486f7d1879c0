package contracts

import (
	"context"
	"path/filepath"
)

// InstallContext carries every path an engine operation needs. It is built
// once at startup and passed explicitly.
type InstallContext struct {
	AppsRoot            string
	InstallRoot         string
	StagingRoot         string
	RepairExecutable    string
	InstallerExecutable string
}

func (this InstallContext) BackupDirectory() string {
	return filepath.Join(this.InstallRoot, BackupDirectory)
}

func (this InstallContext) WithInstallRoot(root string) InstallContext {
	this.InstallRoot = root
	return this
}

type Mode int

const (
	ModeInstall Mode = iota
	ModeRepair
)

func (this Mode) String() string {
	if this == ModeRepair {
		return "repair"
	}
	return "install"
}

type State int

const (
	StateSelectPackage State = iota
	StateConfigurePath
	StateExtracting
	StateConfiguring
	StateReady
	StateFinalized
)

func (this State) String() string {
	switch this {
	case StateSelectPackage:
		return "SelectPackage"
	case StateConfigurePath:
		return "ConfigurePath"
	case StateExtracting:
		return "Extracting"
	case StateConfiguring:
		return "Configuring"
	case StateReady:
		return "Ready"
	case StateFinalized:
		return "Finalized"
	default:
		return "Unknown"
	}
}

type Progress struct {
	Processed int
	Total     int
	Percent   int
}

type FinishOptions struct {
	CreateShortcut bool
	Launch         bool
}

// Observer receives engine events; implementations must not block.
type Observer interface {
	Transitioned(from, to State)
	ManifestResolved(manifest Manifest)
	Progressed(progress Progress)
	Failed(state State, err error)
}

type IntegrityCheck interface {
	Verify(manifest Manifest, localPath string) error
}

type Locker interface {
	Lock(path string) (Lock, error)
}

type Lock interface {
	Release() error
}

type ShortcutRequest struct {
	Name       string
	Executable string
	WorkingDir string
	Icon       []byte
}

type ShortcutCreator interface {
	CreateShortcut(ctx context.Context, request ShortcutRequest) error
}

type Launcher interface {
	Launch(ctx context.Context, executable, workingDir string) error
}

type IconExtractor interface {
	ExtractIcon(executable string) ([]byte, error)
}

type ImageDetector interface {
	IsImage(content []byte) bool
}
