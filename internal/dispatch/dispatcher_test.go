package dispatch

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/errors"
	"github.com/lumenlib/lumen-server/internal/eventbus"
	"github.com/lumenlib/lumen-server/internal/library"
	"github.com/lumenlib/lumen-server/internal/librarylist"
	"github.com/lumenlib/lumen-server/internal/logger"
	"github.com/lumenlib/lumen-server/internal/plugin"
)

func newTestDispatcher(t *testing.T, opts ...Option) (*Dispatcher, *library.Registry) {
	t.Helper()
	list, err := librarylist.Load(filepath.Join(t.TempDir(), "libraries.json"))
	require.NoError(t, err)
	r := library.NewRegistry(list, library.SessionOptions{Logger: logger.Discard()})
	t.Cleanup(func() { _ = r.CloseAll(context.Background()) })
	return New(r, logger.Discard(), opts...), r
}

func msg(t *testing.T, lib, typ, action string, data any) Message {
	t.Helper()
	m := Message{Action: action, LibraryID: lib, Payload: Payload{Type: typ}}
	if data != nil {
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		m.Payload.Data = raw
	}
	return m
}

// openLibrary registers and opens a library rooted in a temp dir.
func openLibrary(t *testing.T, d *Dispatcher, id string) *domain.LibraryDescriptor {
	t.Helper()
	cfg := domain.LibraryConfig{Name: "Photos", Path: t.TempDir()}
	res, err := d.Dispatch(context.Background(), msg(t, id, "library", "open", OpenLibraryData{Config: &cfg}))
	require.NoError(t, err)
	desc, ok := res.(*domain.LibraryDescriptor)
	require.True(t, ok)
	return desc
}

func TestDecodeMessage(t *testing.T) {
	m, err := DecodeMessage([]byte(`{"action":"get","libraryId":"a","payload":{"type":"file","data":{"id":3}}}`))
	require.NoError(t, err)
	assert.Equal(t, "file.get", m.Route())
	assert.Equal(t, "a", m.LibraryID)
	assert.JSONEq(t, `{"id":3}`, string(m.Payload.Data))

	_, err = DecodeMessage([]byte(`{"action":`))
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestDispatch_Routes(t *testing.T) {
	d, _ := newTestDispatcher(t)
	routes := d.Routes()
	for _, want := range []string{
		"library.open", "library.close", "library.list",
		"file.create", "file.update", "file.delete", "file.recover", "file.get", "file.list",
		"file.import", "file.move", "file.copy", "file.setTag", "file.path",
		"folder.create", "folder.update", "folder.delete", "folder.get", "folder.list", "folder.find",
		"tag.create", "tag.update", "tag.delete", "tag.get", "tag.list", "tag.find",
		"plugin.list", "plugin.load", "plugin.unload", "plugin.reload",
		"search.query",
	} {
		assert.Contains(t, routes, want)
	}
	assert.IsNonDecreasing(t, routes)
}

func TestDispatch_RejectsBadMessages(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	tests := []struct {
		name string
		msg  Message
		want error
	}{
		{"missing action", Message{Payload: Payload{Type: "file"}}, errors.ErrValidation},
		{"missing type", Message{Action: "get"}, errors.ErrValidation},
		{"unknown route", msg(t, "a", "file", "explode", nil), errors.ErrNotFound},
		{"missing library id", msg(t, "", "file", "get", FileIDData{ID: 1}), errors.ErrValidation},
		{"library not open", msg(t, "nope", "file", "get", FileIDData{ID: 1}), errors.ErrNotFound},
		{"open unknown library", msg(t, "nope", "library", "open", nil), errors.ErrNotFound},
		{"close unknown library", msg(t, "nope", "library", "close", nil), errors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Dispatch(ctx, tt.msg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestDispatch_LibraryLifecycle(t *testing.T) {
	d, r := newTestDispatcher(t)
	ctx := context.Background()

	var connected []eventbus.ClientData
	desc := openLibrary(t, d, "photos")
	assert.Equal(t, "photos", desc.LibraryID)
	assert.Equal(t, library.StatusConnected, desc.Status)
	assert.Equal(t, "Photos", desc.Config.Name)

	_, err := r.Libraries().Find("photos")
	require.NoError(t, err, "config should be persisted")

	s, err := r.Get("photos")
	require.NoError(t, err)
	s.EventBus().Subscribe(eventbus.ClientConnected, func(_ context.Context, evt eventbus.Event) error {
		connected = append(connected, evt.Data.(eventbus.ClientData))
		return nil
	})

	// Reopening an active library reconnects.
	client := eventbus.ClientData{ClientID: "c1", Remote: "127.0.0.1"}
	_, err = d.Dispatch(WithClient(ctx, client), msg(t, "photos", "library", "open", nil))
	require.NoError(t, err)
	assert.Equal(t, []eventbus.ClientData{client}, connected)

	// Config changes are refused while the library is open.
	cfg := domain.LibraryConfig{Path: t.TempDir()}
	_, err = d.Dispatch(ctx, msg(t, "photos", "library", "open", OpenLibraryData{Config: &cfg}))
	assert.True(t, errors.Is(err, errors.ErrConflict))

	res, err := d.Dispatch(ctx, msg(t, "photos", "library", "list", nil))
	require.NoError(t, err)
	statuses := res.([]library.Status)
	require.Len(t, statuses, 1)
	assert.Equal(t, library.StateActive, statuses[0].State)

	res, err = d.Dispatch(ctx, msg(t, "photos", "library", "close", nil))
	require.NoError(t, err)
	assert.Equal(t, StatusResult{LibraryID: "photos", Status: "closed"}, res)

	_, err = d.Dispatch(ctx, msg(t, "photos", "file", "list", nil))
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestDispatch_Files(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()
	openLibrary(t, d, "lib")

	_, err := d.Dispatch(ctx, msg(t, "lib", "file", "create", domain.FileInput{}))
	assert.True(t, errors.Is(err, errors.ErrValidation), "name is required")

	res, err := d.Dispatch(ctx, msg(t, "lib", "file", "create", domain.FileInput{Name: "a.jpg", Path: "/x/a.jpg"}))
	require.NoError(t, err)
	f := res.(*domain.File)
	assert.Positive(t, f.ID)

	name := "b.jpg"
	res, err = d.Dispatch(ctx, msg(t, "lib", "file", "update", UpdateFileData{ID: f.ID, Patch: domain.FilePatch{Name: &name}}))
	require.NoError(t, err)
	assert.Equal(t, ChangedResult{Changed: true}, res)

	res, err = d.Dispatch(ctx, msg(t, "lib", "file", "get", FileIDData{ID: f.ID}))
	require.NoError(t, err)
	assert.Equal(t, "b.jpg", res.(*domain.File).Name)

	res, err = d.Dispatch(ctx, msg(t, "lib", "file", "setTag", SetTagData{ID: f.ID, Tags: []domain.EntityID{"t1"}}))
	require.NoError(t, err)
	assert.Equal(t, ChangedResult{Changed: true}, res)

	res, err = d.Dispatch(ctx, msg(t, "lib", "file", "delete", DeleteFileData{ID: f.ID, MoveToRecycleBin: true}))
	require.NoError(t, err)
	assert.Equal(t, ChangedResult{Changed: true}, res)

	res, err = d.Dispatch(ctx, msg(t, "lib", "file", "list", nil))
	require.NoError(t, err)
	assert.Equal(t, 0, res.(*domain.FileList).Total)

	res, err = d.Dispatch(ctx, msg(t, "lib", "file", "recover", FileIDData{ID: f.ID}))
	require.NoError(t, err)
	assert.Equal(t, ChangedResult{Changed: true}, res)

	res, err = d.Dispatch(ctx, msg(t, "lib", "file", "path", FilePathData{ID: f.ID, Kind: PathKindFile}))
	require.NoError(t, err)
	assert.Equal(t, PathResult{Path: "/x/a.jpg"}, res)

	_, err = d.Dispatch(ctx, msg(t, "lib", "file", "path", FilePathData{ID: f.ID, Kind: "video"}))
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = d.Dispatch(ctx, msg(t, "lib", "file", "get", FileIDData{ID: 0}))
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = d.Dispatch(ctx, msg(t, "lib", "file", "get", FileIDData{ID: 999}))
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	res, err = d.Dispatch(ctx, msg(t, "lib", "file", "delete", DeleteFileData{ID: f.ID}))
	require.NoError(t, err)
	assert.Equal(t, ChangedResult{Changed: true}, res)
}

func TestDispatch_ImportRoots(t *testing.T) {
	inbox := t.TempDir()
	outside := t.TempDir()
	d, _ := newTestDispatcher(t, WithImportRoots(inbox))
	openLibrary(t, d, "lib")
	ctx := context.Background()

	write := func(dir, name string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
		return path
	}

	res, err := d.Dispatch(ctx, msg(t, "lib", "file", "import", ImportFileData{Path: write(inbox, "a.txt"), ImportType: "copy"}))
	require.NoError(t, err)
	f, ok := res.(*domain.File)
	require.True(t, ok)
	assert.Equal(t, "a.txt", f.Name)

	secret := write(outside, "secret.txt")
	rejected := []string{
		secret,
		filepath.Join(inbox, "..", filepath.Base(outside), "secret.txt"),
	}
	link := filepath.Join(inbox, "link.txt")
	if err := os.Symlink(secret, link); err == nil {
		rejected = append(rejected, link)
	}
	for _, path := range rejected {
		_, err := d.Dispatch(ctx, msg(t, "lib", "file", "import", ImportFileData{Path: path, ImportType: "move"}))
		assert.True(t, errors.Is(err, errors.ErrValidation), "path %s: got %v", path, err)
	}
	assert.FileExists(t, secret)

	closed, _ := newTestDispatcher(t)
	openLibrary(t, closed, "lib2")
	_, err = closed.Dispatch(ctx, msg(t, "lib2", "file", "import", ImportFileData{Path: write(inbox, "b.txt")}))
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestDispatch_Nodes(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()
	openLibrary(t, d, "lib")

	root := domain.EntityID("trips")
	_, err := d.Dispatch(ctx, msg(t, "lib", "folder", "create", domain.Folder{ID: root, Title: "Trips"}))
	require.NoError(t, err)
	_, err = d.Dispatch(ctx, msg(t, "lib", "folder", "create", domain.Folder{ID: "rome", Title: "Rome", ParentID: &root}))
	require.NoError(t, err)

	_, err = d.Dispatch(ctx, msg(t, "lib", "folder", "create", domain.Folder{ID: "x"}))
	assert.True(t, errors.Is(err, errors.ErrValidation), "title is required")

	res, err := d.Dispatch(ctx, msg(t, "lib", "folder", "list", ListNodesData{ParentID: &root}))
	require.NoError(t, err)
	children := res.([]*domain.Folder)
	require.Len(t, children, 1)
	assert.Equal(t, domain.EntityID("rome"), children[0].ID)

	res, err = d.Dispatch(ctx, msg(t, "lib", "folder", "find", FindNodeData{Name: "Rome", ParentID: &root}))
	require.NoError(t, err)
	assert.Equal(t, domain.EntityID("rome"), res.(*domain.Folder).ID)

	title := "Holidays"
	res, err = d.Dispatch(ctx, msg(t, "lib", "folder", "update", UpdateNodeData{ID: root, Patch: domain.NodePatch{Title: &title}}))
	require.NoError(t, err)
	assert.Equal(t, ChangedResult{Changed: true}, res)

	res, err = d.Dispatch(ctx, msg(t, "lib", "folder", "delete", NodeIDData{ID: root}))
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.EntityID{"trips", "rome"}, res.(DeletedNodesResult).Deleted)

	_, err = d.Dispatch(ctx, msg(t, "lib", "folder", "get", NodeIDData{ID: "rome"}))
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = d.Dispatch(ctx, msg(t, "lib", "tag", "create", domain.Tag{ID: "sea", Title: "Sea"}))
	require.NoError(t, err)
	res, err = d.Dispatch(ctx, msg(t, "lib", "tag", "get", NodeIDData{ID: "sea"}))
	require.NoError(t, err)
	assert.Equal(t, "Sea", res.(*domain.Tag).Title)
	res, err = d.Dispatch(ctx, msg(t, "lib", "tag", "list", nil))
	require.NoError(t, err)
	assert.Len(t, res.([]*domain.Tag), 1)
}

func TestDispatch_PluginsAndSearch(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()
	openLibrary(t, d, "lib")

	res, err := d.Dispatch(ctx, msg(t, "lib", "plugin", "list", nil))
	require.NoError(t, err)
	assert.Empty(t, res.([]plugin.Info))

	_, err = d.Dispatch(ctx, msg(t, "lib", "plugin", "load", PluginData{Name: "missing"}))
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = d.Dispatch(ctx, msg(t, "lib", "plugin", "load", PluginData{}))
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = d.Dispatch(ctx, msg(t, "lib", "search", "query", SearchData{Query: "x"}))
	assert.True(t, errors.Is(err, errors.ErrNotFound), "search plugin is not loaded")
}

func TestClientContext(t *testing.T) {
	assert.Equal(t, eventbus.ClientData{}, ClientFrom(context.Background()))
	c := eventbus.ClientData{ClientID: "x"}
	assert.Equal(t, c, ClientFrom(WithClient(context.Background(), c)))
}
