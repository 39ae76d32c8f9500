package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lumenlib/lumen-server/internal/config"
	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/library"
	"github.com/lumenlib/lumen-server/internal/librarylist"
	"github.com/lumenlib/lumen-server/internal/logger"
	"github.com/lumenlib/lumen-server/internal/plugins"
)

type commandContext struct {
	listFlag  string
	jsonOut   bool
	verbose   bool
	listCache *librarylist.List
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "lumenctl",
		Short:         "Lumen library administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&ctx.listFlag, "library-list", "", "Path to the library list (default: server configuration)")
	rootCmd.PersistentFlags().BoolVar(&ctx.jsonOut, "json", false, "Write JSON instead of tables")
	rootCmd.PersistentFlags().BoolVarP(&ctx.verbose, "verbose", "v", false, "Log library activity to stderr")

	rootCmd.AddCommand(newLibrariesCommand(ctx))
	rootCmd.AddCommand(newFilesCommand(ctx))
	rootCmd.AddCommand(newImportCommand(ctx))
	rootCmd.AddCommand(newSearchCommand(ctx))
	rootCmd.AddCommand(newReindexCommand(ctx))

	return rootCmd
}

// libraries loads the library list once per invocation.
func (c *commandContext) libraries() (*librarylist.List, error) {
	if c.listCache != nil {
		return c.listCache, nil
	}
	path := c.listFlag
	if path == "" {
		cfg, err := config.Load(nil)
		if err != nil {
			return nil, err
		}
		path = cfg.Data.LibraryList
	}
	list, err := librarylist.Load(path)
	if err != nil {
		return nil, err
	}
	c.listCache = list
	return list, nil
}

func (c *commandContext) logger() *slog.Logger {
	if !c.verbose {
		return logger.Discard()
	}
	return logger.New(logger.Config{Level: slog.LevelDebug, Writer: os.Stderr}).Logger
}

// openSession opens id in this process with only the named plugins loaded.
// A running server holds the library lock, so this fails with a conflict then.
func (c *commandContext) openSession(ctx context.Context, id string, pluginNames ...string) (*library.Session, error) {
	list, err := c.libraries()
	if err != nil {
		return nil, err
	}
	cfg, err := list.Find(id)
	if err != nil {
		return nil, err
	}
	cfg.Plugins = pluginNames
	return library.NewSession(ctx, cfg, library.SessionOptions{
		Factories: plugins.Builtin(),
		Logger:    c.logger(),
	})
}

func closeSession(s *library.Session) {
	_ = s.Close(context.Background())
}

func entityPtr(id string) *domain.EntityID {
	if id == "" {
		return nil
	}
	e := domain.EntityID(id)
	return &e
}
