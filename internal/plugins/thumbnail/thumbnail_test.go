package thumbnail

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/draw"

	"github.com/lumenlib/lumen-server/internal/domain"
	"github.com/lumenlib/lumen-server/internal/eventbus"
	"github.com/lumenlib/lumen-server/internal/library"
	"github.com/lumenlib/lumen-server/internal/logger"
	"github.com/lumenlib/lumen-server/internal/plugin"
)

func newSession(t *testing.T) *library.Session {
	t.Helper()
	cfg := domain.LibraryConfig{ID: "lib", Path: t.TempDir(), Plugins: []string{Name}}
	s, err := library.NewSession(context.Background(), cfg, library.SessionOptions{
		Factories: map[string]plugin.Factory{Name: Factory()},
		Logger:    logger.Discard(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "img.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestPlugin_GeneratesOnImport(t *testing.T) {
	s := newSession(t)
	ctx := context.Background()

	var (
		mu  sync.Mutex
		got []eventbus.ThumbCreatedData
	)
	s.EventBus().Subscribe(eventbus.ThumbCreated, func(_ context.Context, evt eventbus.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, evt.Data.(eventbus.ThumbCreatedData))
		return nil
	})

	f, err := s.ImportFile(ctx, writePNG(t, 400, 200), nil, domain.ImportOptions{ImportType: domain.ImportCopy})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	evt := got[0]
	mu.Unlock()
	assert.Equal(t, f.ID, evt.ID)
	assert.NotEmpty(t, evt.BlurHash)

	thumbPath := s.ItemThumbPath(f, domain.PathOptions{})
	assert.Equal(t, thumbPath, evt.Path)

	out, err := os.Open(thumbPath)
	require.NoError(t, err)
	defer out.Close()
	thumb, err := jpeg.Decode(out)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, MaxSize, MaxSize/2), thumb.Bounds())

	stored, err := s.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, stored.Thumb)
}

func TestPlugin_GenerateSkipsNonImages(t *testing.T) {
	s := newSession(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("plain text"), 0o644))
	f, err := s.CreateFile(ctx, &domain.FileInput{Name: "notes.txt", Path: src})
	require.NoError(t, err)

	p, err := s.Plugins().Get(Name)
	require.NoError(t, err)
	require.NoError(t, p.(*Plugin).Generate(ctx, f.ID))

	stored, err := s.GetFile(ctx, f.ID)
	require.NoError(t, err)
	assert.False(t, stored.Thumb)
	assert.NoFileExists(t, s.ItemThumbPath(f, domain.PathOptions{}))
}

func TestClassify(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, data []byte) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, data, 0o644))
		return path
	}

	tests := []struct {
		name string
		path string
		want Source
	}{
		{"png", writePNG(t, 4, 4), SourceImage},
		{"mp3 with id3 header", write("song.mp3", append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), make([]byte, 64)...)), SourceAudio},
		{"text named like an image", write("fake.jpg", []byte("not really a jpeg")), SourceNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Classify(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestPlugin_CloseIsSafeTwice(t *testing.T) {
	s := newSession(t)
	p, err := s.Plugins().Get(Name)
	require.NoError(t, err)

	require.NoError(t, p.Close(context.Background()))
	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, 0, s.EventBus().ListenerCount(eventbus.FileCreated))
}

func TestScale(t *testing.T) {
	small := image.NewRGBA(image.Rect(0, 0, 100, 50))
	assert.Same(t, small, scale(small, MaxSize, nil).(*image.RGBA))

	tall := image.NewRGBA(image.Rect(0, 0, 100, 1000))
	scaled := scale(tall, MaxSize, draw.ApproxBiLinear)
	assert.Equal(t, image.Rect(0, 0, 25, MaxSize), scaled.Bounds())
}
