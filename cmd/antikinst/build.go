package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smarty/antikinst/core"
	"github.com/smarty/antikinst/shell"
)

func (this *application) buildCommand() *cobra.Command {
	var request core.BuildRequest
	var compression string

	command := &cobra.Command{
		Use:   "build",
		Short: "Package an application directory into a container.",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			if compression == "" {
				compression = this.config.Compression
			}
			parsed, err := shell.ParseCompression(compression)
			if err != nil {
				return err
			}
			request.Compression = parsed

			result, err := this.builder.PackageApplication(command.Context(), request)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(command.OutOrStdout(), "Built %s (%d entries, %d bytes)\n", result.ContainerPath, len(result.Entries), result.Size)
			return nil
		},
	}

	flags := command.Flags()
	flags.StringVar(&request.SourceDir, "source", "", "Directory holding the application files.")
	flags.StringVar(&request.MainExecutable, "main", "", "Main executable, absolute or relative to --source.")
	flags.StringVar(&request.DefaultExtractPath, "default-path", "", "Suggested install directory recorded in the manifest.")
	flags.StringVar(&request.AppName, "name", "", "Application name.")
	flags.StringVar(&request.OutputPath, "output", "", "Container file to write; the extension is added when missing.")
	flags.StringVar(&compression, "compression", "", "One of none, gzip, zstd.")
	for _, name := range []string{"source", "main", "default-path", "name", "output"} {
		_ = command.MarkFlagRequired(name)
	}
	return command
}
