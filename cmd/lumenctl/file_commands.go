package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/errors"
	"github.com/lumenlib/lumen-server/internal/plugins/search"
	"github.com/lumenlib/lumen-server/internal/plugins/thumbnail"
)

func newFilesCommand(ctx *commandContext) *cobra.Command {
	var (
		name     string
		folder   string
		tags     []string
		recycled bool
		sortBy   string
		order    string
		limit    int
		offset   int
	)
	cmd := &cobra.Command{
		Use:   "files <library-id>",
		Short: "List files in a library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.openSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer closeSession(sess)

			filter := domain.FileFilter{
				Name:   name,
				Folder: domain.EntityID(folder),
				Sort:   sortBy,
				Order:  order,
				Limit:  limit,
				Offset: offset,
			}
			for _, t := range tags {
				filter.Tags = append(filter.Tags, domain.EntityID(t))
			}
			if recycled {
				flag := domain.Flag(true)
				filter.Recycled = &flag
			}

			page, err := sess.GetFiles(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if ctx.jsonOut {
				return writeJSON(cmd, page)
			}
			printFiles(cmd, page.Result)
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d files\n", len(page.Result), page.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Substring of the file name")
	cmd.Flags().StringVar(&folder, "folder", "", "Folder id")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag id the file must carry (repeatable)")
	cmd.Flags().BoolVar(&recycled, "recycled", false, "List the recycle bin instead")
	cmd.Flags().StringVar(&sortBy, "sort", "", "Sort column")
	cmd.Flags().StringVar(&order, "order", "", "Sort order (asc, desc)")
	cmd.Flags().IntVar(&limit, "limit", domain.DefaultLimit, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")
	return cmd
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	var (
		importType string
		folder     string
		thumbnails bool
	)
	cmd := &cobra.Command{
		Use:   "import <library-id> <path>...",
		Short: "Import files into a library",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := domain.ImportOptions{ImportType: domain.ImportType(importType), Folder: entityPtr(folder)}
			if !opts.ImportType.Valid() {
				return errors.Validationf("import type must be link, copy or move, got %q", importType)
			}

			var loaded []string
			if thumbnails {
				loaded = append(loaded, thumbnail.Name)
			}
			sess, err := ctx.openSession(cmd.Context(), args[0], loaded...)
			if err != nil {
				return err
			}
			defer closeSession(sess)

			var overrides *domain.FileInput
			if id := entityPtr(folder); id != nil {
				overrides = &domain.FileInput{FolderID: id}
			}

			imported := make([]*domain.File, 0, len(args)-1)
			for _, src := range args[1:] {
				f, err := sess.ImportFile(cmd.Context(), src, overrides, opts)
				if err != nil {
					return fmt.Errorf("import %s: %w", src, err)
				}
				imported = append(imported, f)
			}
			if ctx.jsonOut {
				return writeJSON(cmd, imported)
			}
			printFiles(cmd, imported)
			return nil
		},
	}
	cmd.Flags().StringVar(&importType, "type", string(domain.ImportCopy), "Import strategy: link, copy or move")
	cmd.Flags().StringVar(&folder, "folder", "", "Destination folder id")
	cmd.Flags().BoolVar(&thumbnails, "thumbnails", true, "Render thumbnails for imported images")
	return cmd
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <library-id> <query>",
		Short: "Run a full-text query against a library",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.openSession(cmd.Context(), args[0], search.Name)
			if err != nil {
				return err
			}
			defer closeSession(sess)

			hits, total, err := sess.Search(cmd.Context(), args[1], limit)
			if err != nil {
				return err
			}
			if ctx.jsonOut {
				return writeJSON(cmd, map[string]any{"hits": hits, "total": total})
			}

			rows := make([][]string, 0, len(hits))
			for _, h := range hits {
				name := ""
				if f, err := sess.GetFile(cmd.Context(), h.FileID); err == nil {
					name = f.Name
				}
				rows = append(rows, []string{
					strconv.FormatInt(h.FileID, 10),
					name,
					strconv.FormatFloat(h.Score, 'f', 3, 64),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Score"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight},
			))
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d hits\n", len(hits), total)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum hits")
	return cmd
}

func newReindexCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex <library-id>",
		Short: "Rebuild a library's search index from its catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.openSession(cmd.Context(), args[0], search.Name)
			if err != nil {
				return err
			}
			defer closeSession(sess)

			p, err := sess.Plugins().Get(search.Name)
			if err != nil {
				return errors.NotFound("search plugin failed to load")
			}
			indexer, ok := p.(*search.Plugin)
			if !ok {
				return errors.Internalf("plugin %s is not the search index", p.Name())
			}
			start := time.Now()
			if err := indexer.Rebuild(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt search index for %s in %s\n", args[0], time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

func printFiles(cmd *cobra.Command, files []*domain.File) {
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		folder := ""
		if f.FolderID != nil {
			folder = string(*f.FolderID)
		}
		rows = append(rows, []string{
			strconv.FormatInt(f.ID, 10),
			f.Name,
			folder,
			formatSize(f.Size),
			strconv.Itoa(f.Stars),
			time.UnixMilli(f.CreatedAt).Format(time.DateTime),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"ID", "Name", "Folder", "Size", "Stars", "Created"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
