package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smarty/antikinst/contracts"
)

func (this *application) repairCommand() *cobra.Command {
	var root string
	command := &cobra.Command{
		Use:   "repair",
		Short: "Restore missing or modified application files from the retained container.",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			result, err := this.engine.Repair(command.Context(), this.install(root))
			if err != nil {
				return err
			}
			out := command.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Repaired %s from %s (%d entries)\n", result.Manifest.AppName, result.Container, result.Extraction.Processed)
			reportSteps(out, result.Steps)
			return nil
		},
	}
	addRootFlag(command, &root)
	return command
}

func (this *application) resetCommand() *cobra.Command {
	var root string
	var yes bool
	command := &cobra.Command{
		Use:   "reset",
		Short: "Delete everything under the install root and reinstall from the retained container.",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			install := this.install(root)
			out := command.OutOrStdout()
			if !yes && !confirm(this.stdin, out, fmt.Sprintf("Reset all data under %s?", install.InstallRoot)) {
				return contracts.ErrNotConfirmed
			}
			result, err := this.engine.ResetData(command.Context(), install)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "Reset %s (%d entries restored)\n", result.Manifest.AppName, result.Extraction.Processed)
			reportSteps(out, result.Steps)
			return reportDeletion(out, result.Deletion)
		},
	}
	addRootFlag(command, &root)
	command.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt.")
	return command
}

func (this *application) uninstallCommand() *cobra.Command {
	var root string
	var yes bool
	command := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the install root and everything beneath it.",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			install := this.install(root)
			out := command.OutOrStdout()
			confirmed := yes || confirm(this.stdin, out, fmt.Sprintf("Remove %s and everything in it?", install.InstallRoot))
			report, err := this.engine.Uninstall(command.Context(), install, confirmed)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "Removed %d entries\n", report.Removed)
			return reportDeletion(out, report)
		},
	}
	addRootFlag(command, &root)
	command.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt.")
	return command
}

func reportDeletion(out io.Writer, report contracts.DeletionReport) error {
	if report.Complete() {
		return nil
	}
	_, _ = fmt.Fprintf(out, "%d entries could not be deleted:\n", report.Remaining)
	for _, path := range report.Failures {
		_, _ = fmt.Fprintln(out, "  "+path)
	}
	return report.Err()
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	_, _ = fmt.Fprintf(out, "%s [y/N]: ", prompt)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
