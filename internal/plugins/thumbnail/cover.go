package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/simonhull/audiometa"
)

// errNoArtwork means an audio file carries no embedded cover.
var errNoArtwork = errors.New("no embedded artwork")

// RenderCover writes a thumbnail of the first artwork embedded in the audio file
// at src, typically the front cover.
func RenderCover(ctx context.Context, src, dst string) (string, error) {
	file, err := audiometa.OpenContext(ctx, src)
	if err != nil {
		return "", fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close() //nolint:errcheck // read-only handle

	artworks, err := file.ExtractArtwork()
	if err != nil {
		return "", fmt.Errorf("extract artwork: %w", err)
	}
	if len(artworks) == 0 {
		return "", errNoArtwork
	}
	return render(bytes.NewReader(artworks[0].Data), dst)
}
