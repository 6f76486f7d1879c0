package shell

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/smarty/antikinst/contracts"
)

// ProcessLauncher starts an installed application detached from this process.
type ProcessLauncher struct{}

func NewProcessLauncher() *ProcessLauncher {
	return &ProcessLauncher{}
}

func (this *ProcessLauncher) Launch(_ context.Context, executable, workingDir string) error {
	command := exec.Command(executable)
	command.Dir = workingDir
	if err := command.Start(); err != nil {
		return err
	}
	return command.Process.Release()
}

////////////////////////////////////////

// DesktopEntryCreator writes freedesktop.org launcher files.
type DesktopEntryCreator struct {
	directory string
}

func NewDesktopEntryCreator(directory string) *DesktopEntryCreator {
	return &DesktopEntryCreator{directory: directory}
}

func (this *DesktopEntryCreator) CreateShortcut(_ context.Context, request contracts.ShortcutRequest) error {
	if err := os.MkdirAll(this.directory, 0755); err != nil {
		return err
	}
	name := contracts.Manifest{AppName: request.Name}.Key()
	var icon string
	if len(request.Icon) > 0 {
		icon = filepath.Join(this.directory, name+".icon")
		if err := os.WriteFile(icon, request.Icon, 0644); err != nil {
			return err
		}
	}
	entry := strings.Join([]string{
		"[Desktop Entry]",
		"Type=Application",
		"Name=" + request.Name,
		fmt.Sprintf("Exec=%q", request.Executable),
		"Path=" + request.WorkingDir,
		"Icon=" + icon,
		"Terminal=false",
		"",
	}, "\n")
	return os.WriteFile(filepath.Join(this.directory, name+".desktop"), []byte(entry), 0755)
}
