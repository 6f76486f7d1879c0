package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/smarty/antikinst/contracts"
	"github.com/smarty/antikinst/core"
)

func (this *application) installCommand() *cobra.Command {
	var target string
	var options contracts.FinishOptions

	command := &cobra.Command{
		Use:   "install CONTAINER",
		Short: "Install a container into a target directory.",
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, args []string) error {
			session := this.engine.NewSession(this.config.InstallContext(""), core.NewLoggingObserver(this.logger))
			defer func() { _ = session.Close() }()

			if err := session.SelectContainer(args[0]); err != nil {
				return err
			}
			out := command.OutOrStdout()
			describe(out, session.Manifest())
			if err := session.SetTargetPath(target); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out, "Installing to", session.Target())
			return complete(command.Context(), out, session, options)
		},
	}
	flags := command.Flags()
	flags.StringVar(&target, "target", "", "Install directory (default from the manifest).")
	addFinishFlags(command, &options)
	return command
}

func (this *application) reinstallCommand() *cobra.Command {
	var root string
	var options contracts.FinishOptions

	command := &cobra.Command{
		Use:   "reinstall",
		Short: "Replace the installed files with a fresh copy of the retained container.",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			observer := core.NewLoggingObserver(this.logger)
			session, err := this.engine.NewRepairSession(command.Context(), this.install(root), observer)
			if err != nil {
				return err
			}
			defer func() { _ = session.Close() }()

			if err = session.SelectContainer(""); err != nil {
				return err
			}
			if err = session.SetTargetPath(""); err != nil {
				return err
			}
			out := command.OutOrStdout()
			describe(out, session.Manifest())
			return complete(command.Context(), out, session, options)
		},
	}
	addRootFlag(command, &root)
	addFinishFlags(command, &options)
	return command
}

func complete(ctx context.Context, out io.Writer, session *core.Session, options contracts.FinishOptions) error {
	task, err := session.BeginExtraction(ctx)
	if err != nil {
		return err
	}
	showProgress(out, task)
	if err = session.Await(ctx); err != nil {
		return err
	}
	result, err := session.Finish(ctx, options)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, "Retained container:", result.BackupPath)
	reportSteps(out, result.Steps)
	return nil
}

func showProgress(out io.Writer, task *core.ExtractionTask) {
	for progress := range task.Progress() {
		_, _ = fmt.Fprintf(out, "\rExtracting... %3d%%", progress.Percent)
	}
	_, _ = fmt.Fprintln(out)
}

func describe(out io.Writer, manifest contracts.Manifest) {
	_, _ = fmt.Fprintf(out, "%s (%s)\n", manifest.AppName, manifest.MainExecutable)
}

func reportSteps(out io.Writer, steps []core.StepReport) {
	for _, step := range steps {
		switch {
		case step.Skipped:
			_, _ = fmt.Fprintf(out, "  %-26s skipped\n", step.Name)
		case step.Err != nil:
			_, _ = fmt.Fprintf(out, "  %-26s failed: %v\n", step.Name, step.Err)
		default:
			_, _ = fmt.Fprintf(out, "  %-26s ok\n", step.Name)
		}
	}
}

func addFinishFlags(command *cobra.Command, options *contracts.FinishOptions) {
	command.Flags().BoolVar(&options.CreateShortcut, "shortcut", false, "Create a desktop shortcut (needs ANTIKINST_SHORTCUT_DIR).")
	command.Flags().BoolVar(&options.Launch, "launch", false, "Start the application when done.")
}

func addRootFlag(command *cobra.Command, root *string) {
	command.Flags().StringVar(root, "root", "", "Install root (default the directory holding this binary).")
}
