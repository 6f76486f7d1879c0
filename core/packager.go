package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/smarty/antikinst/contracts"
	"github.com/smarty/antikinst/logging"
)

type BuildRequest struct {
	SourceDir          string
	MainExecutable     string
	DefaultExtractPath string
	AppName            string
	OutputPath         string
	Compression        contracts.Compression
}

type BuildResult struct {
	ContainerPath string
	Manifest      contracts.Manifest
	Entries       []contracts.ArchiveItem
	Size          int64
}

type Builder struct {
	codec  *ContainerCodec
	files  contracts.FileChecker
	icons  contracts.IconExtractor
	images contracts.ImageDetector
	logger *zap.Logger
}

// NewBuilder accepts nil icons and images; the executable icon is then skipped
// or kept unchecked, respectively.
func NewBuilder(codec *ContainerCodec, files contracts.FileChecker, icons contracts.IconExtractor, images contracts.ImageDetector, logger *zap.Logger) *Builder {
	return &Builder{codec: codec, files: files, icons: icons, images: images, logger: logging.OrNop(logger)}
}

func (this *Builder) PackageApplication(ctx context.Context, request BuildRequest) (BuildResult, error) {
	source, executable, err := this.validate(request)
	if err != nil {
		return BuildResult{}, err
	}
	output := contracts.NormalizeContainerPath(request.OutputPath)
	if absolute, err := filepath.Abs(output); err == nil {
		output = absolute
	}

	manifest, contents, err := this.codec.Build(ctx, ContainerBuild{
		SourceDir:      source,
		MainExecutable: executable,
		Manifest: contracts.Manifest{
			AppName:            request.AppName,
			DefaultExtractPath: request.DefaultExtractPath,
		},
		OutputPath:     output,
		Compression:    request.Compression,
		ExecutableIcon: this.executableIcon(executable),
	})
	if err != nil {
		return BuildResult{}, fmt.Errorf("%w: %w", contracts.ErrInvalidInput, err)
	}

	result := BuildResult{ContainerPath: output, Manifest: manifest, Entries: contents}
	if info, err := this.files.Stat(output); err == nil {
		result.Size = info.Size()
	}
	this.logger.Info("Container built.",
		zap.String("path", output),
		zap.String("app", manifest.AppName),
		zap.Int("entries", len(contents)),
		zap.String("size", humanFileSize(float64(result.Size))))
	return result, nil
}

func (this *Builder) validate(request BuildRequest) (source, executable string, err error) {
	if strings.TrimSpace(request.AppName) == "" {
		return "", "", fmt.Errorf("%w: %w", contracts.ErrInvalidInput, errBlankAppName)
	}
	if strings.TrimSpace(request.DefaultExtractPath) == "" {
		return "", "", fmt.Errorf("%w: %w", contracts.ErrInvalidInput, errBlankDefaultExtractPath)
	}
	if strings.TrimSpace(request.OutputPath) == "" {
		return "", "", fmt.Errorf("%w: %w", contracts.ErrInvalidInput, errBlankOutputPath)
	}

	source, err = filepath.Abs(request.SourceDir)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", contracts.ErrInvalidInput, err)
	}
	info, err := this.files.Stat(source)
	if err != nil || !info.IsDir() {
		return "", "", fmt.Errorf("%w: source %q is not a directory", contracts.ErrInvalidInput, request.SourceDir)
	}

	executable = request.MainExecutable
	if !filepath.IsAbs(executable) {
		executable = filepath.Join(source, executable)
	}
	info, err = this.files.Stat(executable)
	if err != nil || info.IsDir() {
		return "", "", fmt.Errorf("%w: main executable %q is not a file", contracts.ErrInvalidInput, request.MainExecutable)
	}
	if !contracts.Contains(source, executable) {
		return "", "", fmt.Errorf("%w: %w: %q", contracts.ErrInvalidInput, contracts.ErrInvalidSource, request.MainExecutable)
	}
	return source, filepath.Clean(executable), nil
}

func (this *Builder) executableIcon(executable string) []byte {
	if this.icons == nil {
		return nil
	}
	content, err := this.icons.ExtractIcon(executable)
	if err != nil {
		this.logger.Warn("Executable icon unavailable.", zap.String("executable", executable), zap.Error(err))
		return nil
	}
	if len(content) == 0 {
		return nil
	}
	if this.images != nil && !this.images.IsImage(content) {
		this.logger.Warn("Executable icon is not an image.", zap.String("executable", executable))
		return nil
	}
	return content
}

var (
	errBlankAppName            = errors.New("app name is required")
	errBlankDefaultExtractPath = errors.New("default extract path is required")
	errBlankOutputPath         = errors.New("output path is required")
)
