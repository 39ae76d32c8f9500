package thumbnail

import (
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"io"
	"os"
	"path/filepath"

	"github.com/bbrks/go-blurhash"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	// MaxSize bounds the longer edge of a thumbnail.
	MaxSize = 256
	// blurHashSize is the edge used for BlurHash input; the hash is a placeholder
	// and gains nothing from more pixels.
	blurHashSize = 64
	jpegQuality  = 85
)

var (
	imageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}
	// audioTypes are containers whose embedded cover art becomes the thumbnail.
	audioTypes = []string{"audio/mpeg", "audio/mp4", "audio/x-m4a"}
)

// Source is what a file can be thumbnailed from.
type Source int

// Thumbnail sources.
const (
	SourceNone Source = iota
	SourceImage
	SourceAudio
)

// Classify sniffs the file content and reports its thumbnail source.
func Classify(path string) (Source, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return SourceNone, fmt.Errorf("detect type: %w", err)
	}
	switch {
	case mimetype.EqualsAny(mtype.String(), imageTypes...):
		return SourceImage, nil
	case mimetype.EqualsAny(mtype.String(), audioTypes...):
		return SourceAudio, nil
	}
	return SourceNone, nil
}

// Render writes a JPEG thumbnail of the image at src to dst and returns its BlurHash.
func Render(src, dst string) (string, error) {
	file, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer file.Close()
	return render(file, dst)
}

func render(r io.Reader, dst string) (string, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	thumb := scale(img, MaxSize, draw.CatmullRom)

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create thumbs directory: %w", err)
	}
	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create thumbnail: %w", err)
	}
	if err := jpeg.Encode(out, thumb, &jpeg.Options{Quality: jpegQuality}); err != nil {
		out.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close thumbnail: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("store thumbnail: %w", err)
	}

	// 4x3 components keep the hash short with enough detail for a placeholder.
	hash, err := blurhash.Encode(4, 3, scale(thumb, blurHashSize, draw.ApproxBiLinear))
	if err != nil {
		return "", fmt.Errorf("encode blurhash: %w", err)
	}
	return hash, nil
}

// scale fits img inside a max x max box, keeping the aspect ratio. Smaller images
// are returned as they are.
func scale(img image.Image, maxEdge int, interp draw.Interpolator) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxEdge && h <= maxEdge {
		return img
	}

	var dw, dh int
	if w >= h {
		dw = maxEdge
		dh = max(1, h*maxEdge/w)
	} else {
		dh = maxEdge
		dw = max(1, w*maxEdge/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	interp.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
