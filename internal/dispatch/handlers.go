package dispatch

import (
	"context"

	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/errors"
	"github.com/lumenlib/lumen-server/internal/library"
	"github.com/lumenlib/lumen-server/internal/plugin"
)

func (d *Dispatcher) registerLibrary() {
	d.on("library", "open", func(ctx context.Context, d *Dispatcher, msg Message) (any, error) {
		if msg.LibraryID == "" {
			return nil, errors.Validation("libraryId is required")
		}
		in, err := decode[OpenLibraryData](d, msg)
		if err != nil {
			return nil, err
		}
		if in.Config != nil {
			if err := d.register(msg.LibraryID, *in.Config); err != nil {
				return nil, err
			}
		}
		s, err := d.registry.Open(ctx, msg.LibraryID)
		if err != nil {
			return nil, err
		}
		return s.Connect(ctx, ClientFrom(ctx))
	})

	d.on("library", "close", func(ctx context.Context, d *Dispatcher, msg Message) (any, error) {
		if msg.LibraryID == "" {
			return nil, errors.Validation("libraryId is required")
		}
		if err := d.registry.Close(ctx, msg.LibraryID); err != nil {
			return nil, err
		}
		return StatusResult{LibraryID: msg.LibraryID, Status: string(library.StateClosed)}, nil
	})

	d.on("library", "list", func(context.Context, *Dispatcher, Message) (any, error) {
		return d.registry.List(), nil
	})
}

// register adds or replaces a library in the persisted list. The id in the
// message wins over the one in the config.
func (d *Dispatcher) register(id string, cfg domain.LibraryConfig) error {
	list := d.registry.Libraries()
	if list == nil {
		return errors.Validation("this server has no library list")
	}
	if d.registry.Exists(id) {
		return errors.Conflictf("library %s is open; close it before changing its config", id)
	}
	cfg.ID = id
	if err := list.Upsert(cfg); err != nil {
		return err
	}
	return list.Save()
}

func (d *Dispatcher) registerFiles() {
	d.on("file", "create", withSession(func(ctx context.Context, s *library.Session, in domain.FileInput) (any, error) {
		return s.CreateFile(ctx, &in)
	}))

	d.on("file", "update", withSession(func(ctx context.Context, s *library.Session, in UpdateFileData) (any, error) {
		ok, err := s.UpdateFile(ctx, in.ID, in.Patch)
		return ChangedResult{Changed: ok}, err
	}))

	d.on("file", "delete", withSession(func(ctx context.Context, s *library.Session, in DeleteFileData) (any, error) {
		ok, err := s.DeleteFile(ctx, in.ID, domain.DeleteOptions{MoveToRecycleBin: in.MoveToRecycleBin})
		return ChangedResult{Changed: ok}, err
	}))

	d.on("file", "recover", withSession(func(ctx context.Context, s *library.Session, in FileIDData) (any, error) {
		ok, err := s.RecoverFile(ctx, in.ID)
		return ChangedResult{Changed: ok}, err
	}))

	d.on("file", "get", withSession(func(ctx context.Context, s *library.Session, in FileIDData) (any, error) {
		return s.GetFile(ctx, in.ID)
	}))

	d.on("file", "list", withSession(func(ctx context.Context, s *library.Session, in domain.FileFilter) (any, error) {
		return s.GetFiles(ctx, in)
	}))

	d.on("file", "import", withSession(func(ctx context.Context, s *library.Session, in ImportFileData) (any, error) {
		if err := d.checkImportSource(in.Path); err != nil {
			return nil, err
		}
		return s.ImportFile(ctx, in.Path, in.File, domain.ImportOptions{
			ImportType: domain.ImportType(in.ImportType),
			Folder:     in.Folder,
		})
	}))

	d.on("file", "move", withSession(func(ctx context.Context, s *library.Session, in PlaceFileData) (any, error) {
		return s.MoveFile(ctx, in.ID, in.Folder)
	}))

	d.on("file", "copy", withSession(func(ctx context.Context, s *library.Session, in PlaceFileData) (any, error) {
		return s.CopyFile(ctx, in.ID, in.Folder)
	}))

	d.on("file", "setTag", withSession(func(ctx context.Context, s *library.Session, in SetTagData) (any, error) {
		ok, err := s.SetFileTags(ctx, in.ID, in.Tags)
		return ChangedResult{Changed: ok}, err
	}))

	d.on("file", "path", withSession(func(ctx context.Context, s *library.Session, in FilePathData) (any, error) {
		f, err := s.GetFile(ctx, in.ID)
		if err != nil {
			return nil, err
		}
		opts := domain.PathOptions{AsPublicURL: in.AsPublicURL}
		var path string
		switch in.Kind {
		case PathKindThumb:
			path = s.ItemThumbPath(f, opts)
		case PathKindDir:
			path, err = s.ItemPath(ctx, f)
		default:
			path, err = s.ItemFilePath(ctx, f, opts)
		}
		if err != nil {
			return nil, err
		}
		return PathResult{Path: path}, nil
	}))

	d.on("search", "query", withSession(func(ctx context.Context, s *library.Session, in SearchData) (any, error) {
		hits, total, err := s.Search(ctx, in.Query, in.Limit)
		if err != nil {
			return nil, err
		}
		if hits == nil {
			hits = []plugin.SearchHit{}
		}
		return SearchResult{Hits: hits, Total: total}, nil
	}))
}

func (d *Dispatcher) registerNodes() {
	d.on("folder", "create", withSession(func(ctx context.Context, s *library.Session, in domain.Folder) (any, error) {
		return s.CreateFolder(ctx, &in)
	}))
	d.on("folder", "update", withSession(func(ctx context.Context, s *library.Session, in UpdateNodeData) (any, error) {
		ok, err := s.UpdateFolder(ctx, in.ID, in.Patch)
		return ChangedResult{Changed: ok}, err
	}))
	d.on("folder", "delete", withSession(func(ctx context.Context, s *library.Session, in NodeIDData) (any, error) {
		deleted, err := s.DeleteFolder(ctx, in.ID)
		return DeletedNodesResult{Deleted: deleted}, err
	}))
	d.on("folder", "get", withSession(func(ctx context.Context, s *library.Session, in NodeIDData) (any, error) {
		return s.GetFolder(ctx, in.ID)
	}))
	d.on("folder", "list", withSession(func(ctx context.Context, s *library.Session, in ListNodesData) (any, error) {
		return s.GetFolders(ctx, in.ParentID)
	}))
	d.on("folder", "find", withSession(func(ctx context.Context, s *library.Session, in FindNodeData) (any, error) {
		return s.FindFolderByName(ctx, in.Name, in.ParentID)
	}))

	d.on("tag", "create", withSession(func(ctx context.Context, s *library.Session, in domain.Tag) (any, error) {
		return s.CreateTag(ctx, &in)
	}))
	d.on("tag", "update", withSession(func(ctx context.Context, s *library.Session, in UpdateNodeData) (any, error) {
		ok, err := s.UpdateTag(ctx, in.ID, in.Patch)
		return ChangedResult{Changed: ok}, err
	}))
	d.on("tag", "delete", withSession(func(ctx context.Context, s *library.Session, in NodeIDData) (any, error) {
		deleted, err := s.DeleteTag(ctx, in.ID)
		return DeletedNodesResult{Deleted: deleted}, err
	}))
	d.on("tag", "get", withSession(func(ctx context.Context, s *library.Session, in NodeIDData) (any, error) {
		return s.GetTag(ctx, in.ID)
	}))
	d.on("tag", "list", withSession(func(ctx context.Context, s *library.Session, in ListNodesData) (any, error) {
		return s.GetTags(ctx, in.ParentID)
	}))
	d.on("tag", "find", withSession(func(ctx context.Context, s *library.Session, in FindNodeData) (any, error) {
		return s.FindTagByName(ctx, in.Name, in.ParentID)
	}))
}

func (d *Dispatcher) registerPlugins() {
	d.on("plugin", "list", withSession(func(_ context.Context, s *library.Session, _ struct{}) (any, error) {
		return s.Plugins().List(), nil
	}))
	d.on("plugin", "load", withSession(func(ctx context.Context, s *library.Session, in PluginData) (any, error) {
		if _, err := s.Plugins().Load(ctx, in.Name); err != nil {
			return nil, err
		}
		return plugin.Info{Name: in.Name, Loaded: true}, nil
	}))
	d.on("plugin", "unload", withSession(func(ctx context.Context, s *library.Session, in PluginData) (any, error) {
		if err := s.Plugins().Unload(ctx, in.Name); err != nil {
			return nil, err
		}
		return plugin.Info{Name: in.Name, Loaded: false}, nil
	}))
	d.on("plugin", "reload", withSession(func(ctx context.Context, s *library.Session, in PluginData) (any, error) {
		if _, err := s.Plugins().Reload(ctx, in.Name); err != nil {
			return nil, err
		}
		return plugin.Info{Name: in.Name, Loaded: true}, nil
	}))
}
