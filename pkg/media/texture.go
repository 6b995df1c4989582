package media

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/vizrig/vizrig/pkg/asset"
	"github.com/vizrig/vizrig/pkg/gfx"
	"github.com/vizrig/vizrig/pkg/logger"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrNoImages = errors.New("no readable images")

// TextureSet is an ordered list of still images.
// Images are decoded on load and moved to the renderer on first use.
type TextureSet struct {
	desc     asset.Texture
	info     asset.TexInfo
	images   []image.Image
	textures []gfx.Texture
}

// TexturePaths is the union of all glob matches, pattern by pattern.
func TexturePaths(globs []string) (paths []string) {
	for _, g := range globs {
		if m, ok := asset.Glob(g); ok {
			paths = append(paths, m...)
		}
	}
	return paths
}

// LoadTextures reads every image matched by the descriptor.
// Unreadable files are skipped.
func LoadTextures(t asset.Texture, log *logger.Logger) (*TextureSet, error) {
	ts := &TextureSet{desc: t}
	for _, p := range TexturePaths(t.Globs) {
		img, err := decodeImage(p)
		if err != nil {
			log.Warn().Err(err).Msgf("skipping %v", p)
			continue
		}
		ts.images = append(ts.images, img)
	}
	if len(ts.images) == 0 {
		return nil, fmt.Errorf("%w: %v %v", ErrNoImages, t.Name, t.Globs)
	}
	b := ts.images[0].Bounds()
	ts.info = asset.TexInfo{Name: t.Name, Count: len(ts.images), Size: [2]uint32{uint32(b.Dx()), uint32(b.Dy())}}
	ts.textures = make([]gfx.Texture, len(ts.images))
	return ts, nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	img, _, err := image.Decode(f)
	return img, err
}

func (ts *TextureSet) Info() asset.TexInfo { return ts.info }

func (ts *TextureSet) Len() int { return len(ts.images) }

// Texture returns image i modulo the set size.
func (ts *TextureSet) Texture(i int, up Uploader) (gfx.Texture, error) {
	n := len(ts.images)
	i = ((i % n) + n) % n
	if ts.textures[i] != nil {
		return ts.textures[i], nil
	}
	b := ts.images[i].Bounds()
	tex, err := up.NewTexture(uint32(b.Dx()), uint32(b.Dy()))
	if err != nil {
		return nil, err
	}
	if err = up.Upload(tex, ts.images[i]); err != nil {
		_ = up.DeleteTexture(tex)
		return nil, err
	}
	ts.textures[i] = tex
	return tex, nil
}

// Release frees the renderer textures, the decoded images stay.
func (ts *TextureSet) Release(up Uploader) error {
	var result *multierror.Error
	for i, t := range ts.textures {
		if t != nil {
			result = multierror.Append(result, up.DeleteTexture(t))
			ts.textures[i] = nil
		}
	}
	return result.ErrorOrNil()
}

// Reload reads the files again, keeping the old content on failure.
func (ts *TextureSet) Reload(up Uploader, log *logger.Logger) error {
	fresh, err := LoadTextures(ts.desc, log)
	if err != nil {
		return err
	}
	err = ts.Release(up)
	*ts = *fresh
	return err
}
