package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/errors"
)

func newLibrariesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "libraries",
		Aliases: []string{"lib"},
		Short:   "Manage the library list",
	}
	cmd.AddCommand(newLibrariesListCommand(ctx))
	cmd.AddCommand(newLibrariesAddCommand(ctx))
	cmd.AddCommand(newLibrariesRemoveCommand(ctx))
	return cmd
}

func newLibrariesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show every library in the list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := ctx.libraries()
			if err != nil {
				return err
			}
			libs := list.All()
			if ctx.jsonOut {
				if libs == nil {
					libs = []domain.LibraryConfig{}
				}
				return writeJSON(cmd, libs)
			}
			if len(libs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No libraries in %s\n", list.Path())
				return nil
			}
			rows := make([][]string, 0, len(libs))
			for _, l := range libs {
				rows = append(rows, []string{l.ID, l.Name, l.RootPath(), strings.Join(l.Plugins, ",")})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Path", "Plugins"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newLibrariesAddCommand(ctx *commandContext) *cobra.Command {
	var (
		name        string
		libraryType string
		plugins     []string
	)
	cmd := &cobra.Command{
		Use:   "add <id> <path>",
		Short: "Add a library to the list, or replace the entry with the same id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := ctx.libraries()
			if err != nil {
				return err
			}
			cfg := domain.LibraryConfig{
				ID:      args[0],
				Name:    name,
				Type:    libraryType,
				Path:    args[1],
				Plugins: plugins,
			}
			if cfg.Name == "" {
				cfg.Name = cfg.ID
			}
			if err := list.Upsert(cfg); err != nil {
				return err
			}
			if err := list.Save(); err != nil {
				return err
			}
			if ctx.jsonOut {
				return writeJSON(cmd, cfg)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved library %s (%s)\n", cfg.ID, cfg.Path)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name (default: the id)")
	cmd.Flags().StringVar(&libraryType, "type", "", "Library type")
	cmd.Flags().StringSliceVar(&plugins, "plugin", nil, "Plugin to load with this library (repeatable)")
	return cmd
}

func newLibrariesRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a library from the list; its files are left untouched",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := ctx.libraries()
			if err != nil {
				return err
			}
			if !list.Remove(args[0]) {
				return errors.NotFoundf("library %s not found", args[0])
			}
			if err := list.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed library %s\n", args[0])
			return nil
		},
	}
}
