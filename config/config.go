package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"

	"github.com/smarty/antikinst/contracts"
)

const Prefix = "ANTIKINST"

type Config struct {
	AppsRoot            string `envconfig:"APPS_ROOT" validate:"required"`
	StagingRoot         string `envconfig:"STAGING_ROOT"`
	ShortcutDirectory   string `envconfig:"SHORTCUT_DIR"`
	LogLevel            string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogDevelopment      bool   `envconfig:"LOG_DEVELOPMENT" default:"true"`
	Compression         string `envconfig:"COMPRESSION" default:"none" validate:"oneof=none gzip zstd"`
	RepairExecutable    string `envconfig:"REPAIR_EXECUTABLE" default:"修复_卸载.exe" validate:"required"`
	InstallerExecutable string `envconfig:"INSTALLER_EXECUTABLE" default:"修复程序.exe" validate:"required"`

	// ExecutableDirectory is where the running binary lives; recovery
	// executables are copied from here.
	ExecutableDirectory string `ignored:"true"`
}

// Load reads the environment, filling path defaults relative to executableDir.
func Load(executableDir string) (Config, error) {
	var config Config
	if err := envconfig.Process(Prefix, &config); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	config.ExecutableDirectory = executableDir
	if config.AppsRoot == "" && executableDir != "" {
		config.AppsRoot = filepath.Join(executableDir, "apps")
	}
	if config.StagingRoot == "" {
		config.StagingRoot = os.TempDir()
	}
	if err := validate.Struct(config); err != nil {
		return Config{}, fmt.Errorf("%w: %w", contracts.ErrInvalidInput, err)
	}
	return config, nil
}

// InstallContext describes the application installed at root.
func (this Config) InstallContext(root string) contracts.InstallContext {
	if root != "" {
		root, _ = filepath.Abs(root)
	}
	return contracts.InstallContext{
		AppsRoot:            this.AppsRoot,
		InstallRoot:         root,
		StagingRoot:         this.StagingRoot,
		RepairExecutable:    this.recoveryExecutable(this.RepairExecutable),
		InstallerExecutable: this.recoveryExecutable(this.InstallerExecutable),
	}
}

func (this Config) recoveryExecutable(name string) string {
	if filepath.IsAbs(name) || this.ExecutableDirectory == "" {
		return name
	}
	return filepath.Join(this.ExecutableDirectory, name)
}

// Usage writes the table of recognized environment variables.
func (this Config) Usage(out io.Writer) error {
	return envconfig.Usagef(Prefix, &this, out, envconfig.DefaultTableFormat)
}

// ExecutableDirectory reports the directory of the running binary.
func ExecutableDirectory() (string, error) {
	executable, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(executable); err == nil {
		executable = resolved
	}
	return filepath.Dir(executable), nil
}

var validate = validator.New()
