// Package imageio classifies media paths and decodes still images for the
// face mapping editor.
package imageio

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Kind is the media kind of a path, decided by file extension
type Kind int

const (
	KindUnknown Kind = iota
	KindImage
	KindVideo
)

var (
	imageExts = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
		".bmp": true, ".webp": true, ".tif": true, ".tiff": true,
	}
	videoExts = map[string]bool{
		".mp4": true, ".mkv": true, ".mov": true, ".avi": true, ".webm": true,
	}
)

// KindOf returns the media kind for path based on its extension
func KindOf(path string) Kind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case imageExts[ext]:
		return KindImage
	case videoExts[ext]:
		return KindVideo
	}
	return KindUnknown
}

// IsImage reports whether path has a still-image extension
func IsImage(path string) bool {
	return KindOf(path) == KindImage
}

// IsVideo reports whether path has a video extension
func IsVideo(path string) bool {
	return KindOf(path) == KindVideo
}

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	}
	return "unknown"
}

// Load decodes a still image from disk
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return img, nil
}

// Thumbnail scales img to exactly size x size, the fixed cell used by the
// mapping table preview.
func Thumbnail(img image.Image, size uint) image.Image {
	return resize.Resize(size, size, img, resize.Lanczos3)
}

// Save encodes img as PNG at path
func Save(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode image %s: %w", path, err)
	}
	return f.Close()
}
