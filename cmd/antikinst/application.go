package main

import (
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smarty/antikinst/config"
	"github.com/smarty/antikinst/contracts"
	"github.com/smarty/antikinst/core"
	"github.com/smarty/antikinst/logging"
	"github.com/smarty/antikinst/shell"
)

type overrides struct {
	AppsRoot    string
	StagingRoot string
	LogLevel    string
}

type application struct {
	stdin     io.Reader
	overrides overrides

	config   config.Config
	logger   *zap.Logger
	files    *shell.DiskFileSystem
	codec    *core.ContainerCodec
	engine   *core.Engine
	builder  *core.Builder
	registry *core.Registry
}

func newApplication(stdin io.Reader) *application {
	return &application{stdin: stdin, logger: zap.NewNop()}
}

func (this *application) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "antikinst",
		Short:         "Build, install, repair and remove self-contained application containers.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return this.initialize()
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&this.overrides.AppsRoot, "apps-root", "", "Parent directory of installed applications (default <binary dir>/apps).")
	flags.StringVar(&this.overrides.StagingRoot, "staging-root", "", "Parent directory for temporary staging (default the OS temp dir).")
	flags.StringVar(&this.overrides.LogLevel, "log-level", "", "One of debug, info, warn, error.")

	root.AddCommand(
		this.buildCommand(),
		this.installCommand(),
		this.reinstallCommand(),
		this.repairCommand(),
		this.resetCommand(),
		this.uninstallCommand(),
		this.listCommand(),
		this.infoCommand(),
		this.environmentCommand(),
		this.versionCommand(),
	)
	return root
}

func (this *application) initialize() error {
	executableDir, err := config.ExecutableDirectory()
	if err != nil {
		return err
	}
	loaded, err := config.Load(executableDir)
	if err != nil {
		return err
	}
	this.config = this.override(loaded)

	logger, err := logging.New(logging.Config{Level: this.config.LogLevel, Development: this.config.LogDevelopment})
	if err != nil {
		return err
	}
	this.logger = logger
	this.wire()
	return nil
}

func (this *application) override(loaded config.Config) config.Config {
	if this.overrides.AppsRoot != "" {
		loaded.AppsRoot = this.overrides.AppsRoot
	}
	if this.overrides.StagingRoot != "" {
		loaded.StagingRoot = this.overrides.StagingRoot
	}
	if this.overrides.LogLevel != "" {
		loaded.LogLevel = this.overrides.LogLevel
	}
	return loaded
}

func (this *application) wire() {
	files := shell.NewDiskFileSystem(this.config.AppsRoot)
	this.files = files
	images := shell.NewImageSniffer()
	this.codec = core.NewContainerCodec(
		files,
		func(root string) core.SourceFileSystem { return shell.NewDiskFileSystem(root) },
		newTarArchiveWriter,
		shell.NewTarArchiveOpener(),
		shell.NewArchiveEntryFinder(),
		this.logger,
	)
	this.builder = core.NewBuilder(this.codec, files, shell.NewPEIconExtractor(), images, this.logger)
	this.registry = core.NewRegistry(files, this.logger)

	dependencies := core.Dependencies{
		Codec:    this.codec,
		Files:    files,
		Locker:   shell.NewFileLocker(),
		Launcher: shell.NewProcessLauncher(),
		Images:   images,
		Logger:   this.logger,
	}
	if this.config.ShortcutDirectory != "" {
		dependencies.Shortcuts = shell.NewDesktopEntryCreator(this.config.ShortcutDirectory)
	}
	this.engine = core.NewEngine(dependencies)
}

func newTarArchiveWriter(writer io.Writer, compression contracts.Compression) (contracts.ArchiveWriter, error) {
	archive, err := shell.NewTarArchiveWriter(writer, compression)
	if err != nil {
		return nil, err
	}
	return archive, nil
}

// install describes the application at root; an empty root means the
// directory holding this binary.
func (this *application) install(root string) contracts.InstallContext {
	if root == "" {
		root = this.config.ExecutableDirectory
	}
	return this.config.InstallContext(filepath.Clean(root))
}

func (this *application) close() {
	_ = this.logger.Sync()
}
