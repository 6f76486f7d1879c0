package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smarty/antikinst/config"
	"github.com/smarty/antikinst/contracts"
	"github.com/smarty/antikinst/core"
)

func (this *application) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list [NAMES...]",
		Short: "List applications installed under the apps root.",
		RunE: func(command *cobra.Command, names []string) error {
			applications, err := this.registry.Discover(this.config.AppsRoot)
			if err != nil {
				return err
			}
			applications = core.Filter(applications, names)

			writer := tabwriter.NewWriter(command.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(writer, "KEY\tNAME\tEXECUTABLE\tROOT")
			for _, application := range applications {
				_, _ = fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
					application.Key, application.DisplayName, application.Manifest.MainExecutable, application.Root)
			}
			return writer.Flush()
		},
	}
}

func (this *application) infoCommand() *cobra.Command {
	var root string
	command := &cobra.Command{
		Use:   "info",
		Short: "Describe the application installed at the install root.",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, _ []string) error {
			install := this.install(root)
			manifest, err := this.installedManifest(install.InstallRoot)
			if err != nil {
				return err
			}
			out := command.OutOrStdout()
			_, _ = fmt.Fprintln(out, "Name:       ", manifest.AppName)
			_, _ = fmt.Fprintln(out, "Root:       ", install.InstallRoot)
			_, _ = fmt.Fprintln(out, "Executable: ", manifest.MainExecutable)

			container, err := core.NewBackupStore(install.InstallRoot, this.files, this.logger).Resolve()
			if err != nil {
				container = "none"
			}
			_, _ = fmt.Fprintln(out, "Container:  ", container)

			_, source, found := this.engine.LocateIcon(install)
			if !found {
				source = "none"
			}
			_, _ = fmt.Fprintln(out, "Icon:       ", source)
			return nil
		},
	}
	addRootFlag(command, &root)
	return command
}

func (this *application) installedManifest(root string) (contracts.Manifest, error) {
	applications, err := this.registry.Discover(filepath.Dir(root))
	if err != nil {
		return contracts.Manifest{}, err
	}
	for _, application := range applications {
		if application.Root == root {
			return application.Manifest, nil
		}
	}
	return contracts.Manifest{}, fmt.Errorf("%w: no application installed at %q", contracts.ErrManifestMissing, root)
}

func (this *application) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version.",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(command *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(command.OutOrStdout(), "antikinst [%s]\n", ldflagsSoftwareVersion)
		},
	}
}

func (this *application) environmentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List the environment variables that configure antikinst.",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		RunE: func(command *cobra.Command, _ []string) error {
			return config.Config{}.Usage(command.OutOrStdout())
		},
	}
}
