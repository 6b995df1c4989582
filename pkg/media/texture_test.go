package media

import (
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/vizrig/vizrig/pkg/asset"
	"github.com/vizrig/vizrig/pkg/logger"
	"golang.org/x/image/bmp"
)

func writeImages(t *testing.T, dir string) {
	t.Helper()
	save := func(name string, w, h int, enc func(*os.File, image.Image) error) {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = f.Close() }()
		if err = enc(f, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
			t.Fatal(err)
		}
	}
	pngEnc := func(f *os.File, img image.Image) error { return png.Encode(f, img) }
	bmpEnc := func(f *os.File, img image.Image) error { return bmp.Encode(f, img) }
	save("b.png", 3, 2, pngEnc)
	save("a.png", 5, 4, pngEnc)
	save("c.bmp", 1, 1, bmpEnc)
	if err := os.WriteFile(filepath.Join(dir, "broken.png"), []byte("nope"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadTextures(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir)

	ts, err := LoadTextures(asset.Texture{Name: "tx", Globs: []string{
		filepath.Join(dir, "*.bmp"),
		filepath.Join(dir, "*.png"),
	}}, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	// bmp first as its glob comes first, the broken png is skipped
	if info := ts.Info(); info.Count != 3 || info.Size != [2]uint32{1, 1} {
		t.Errorf("info = %+v", info)
	}

	up := &uploader{}
	a, err := ts.Texture(1, up)
	if err != nil {
		t.Fatal(err)
	}
	if w, h := a.Size(); w != 5 || h != 4 {
		t.Errorf("texture 1 is %dx%d, want a.png", w, h)
	}
	again, _ := ts.Texture(4, up)
	if again != a || up.made != 1 {
		t.Errorf("index should wrap and reuse the upload")
	}
	if err = ts.Release(up); err != nil || up.deleted != 1 {
		t.Errorf("release: %v, deleted %d", err, up.deleted)
	}
}

func TestLoadTexturesEmpty(t *testing.T) {
	_, err := LoadTextures(asset.Texture{Name: "tx", Globs: []string{filepath.Join(t.TempDir(), "*.png")}}, logger.Nop())
	if !errors.Is(err, ErrNoImages) {
		t.Errorf("err = %v", err)
	}
}

func TestReloadTextures(t *testing.T) {
	dir := t.TempDir()
	writeImages(t, dir)
	ts, err := LoadTextures(asset.Texture{Name: "tx", Globs: []string{filepath.Join(dir, "*.png")}}, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err = os.Remove(filepath.Join(dir, "a.png")); err != nil {
		t.Fatal(err)
	}
	up := &uploader{}
	_, _ = ts.Texture(0, up)
	if err = ts.Reload(up, logger.Nop()); err != nil {
		t.Fatal(err)
	}
	if ts.Len() != 1 || up.deleted != 1 {
		t.Errorf("after reload: %d images, %d deleted", ts.Len(), up.deleted)
	}
}
