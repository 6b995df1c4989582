// Package fetch downloads remote asset paths into a local cache directory.
package fetch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/vizrig/vizrig/pkg/logger"
	vos "github.com/vizrig/vizrig/pkg/os"
)

var ErrScheme = errors.New("unsupported url scheme")

// Backend copies the object behind u into the file dest.
type Backend interface {
	Fetch(ctx context.Context, u *url.URL, dest string) error
}

type Fetcher struct {
	dir      string
	backends map[string]Backend
	log      *logger.Logger
}

func New(dir string, log *logger.Logger) *Fetcher {
	return &Fetcher{
		dir:      dir,
		backends: make(map[string]Backend),
		log:      log.Extend(log.With().Str("m", "Fetch")),
	}
}

// Register binds a backend to url schemes.
func (f *Fetcher) Register(b Backend, schemes ...string) *Fetcher {
	for _, s := range schemes {
		f.backends[s] = b
	}
	return f
}

// IsRemote tells whether the path looks like a url of a known kind.
func IsRemote(p string) bool {
	for _, s := range []string{"http://", "https://", "gs://", "s3://"} {
		if strings.HasPrefix(p, s) {
			return true
		}
	}
	return false
}

// CachePath is where the url is stored locally.
// The original file extension is kept for format probing.
func (f *Fetcher) CachePath(raw string) string {
	sum := sha1.Sum([]byte(raw))
	name := hex.EncodeToString(sum[:8])
	if u, err := url.Parse(raw); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" {
			name += "-" + base
		}
	}
	return filepath.Join(f.dir, name)
}

// Get returns a local path for p.
// Local paths are returned as they are, urls are downloaded once.
func (f *Fetcher) Get(ctx context.Context, p string) (string, error) {
	if !IsRemote(p) {
		return p, nil
	}
	u, err := url.Parse(p)
	if err != nil {
		return "", err
	}
	b, ok := f.backends[u.Scheme]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrScheme, u.Scheme)
	}

	dest := f.CachePath(p)
	if vos.Exists(dest) {
		return dest, nil
	}

	lock, err := vos.NewFileLock(dest + ".lock")
	if err != nil {
		return "", err
	}
	if err = lock.Lock(ctx); err != nil {
		return "", fmt.Errorf("cache lock: %w", err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			f.log.Warn().Err(err).Msgf("unlock %v", lock.Path())
		}
	}()
	// another process might have finished it while we waited
	if vos.Exists(dest) {
		return dest, nil
	}

	tmp := dest + ".part"
	if err = b.Fetch(ctx, u, tmp); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("fetch %v: %w", p, err)
	}
	if err = os.Rename(tmp, dest); err != nil {
		return "", err
	}
	f.log.Info().Msgf("Downloaded %v -> %v", p, dest)
	return dest, nil
}

// GetAll maps Get over paths, keeping the order.
func (f *Fetcher) GetAll(ctx context.Context, paths []string) ([]string, error) {
	out := make([]string, len(paths))
	for i, p := range paths {
		local, err := f.Get(ctx, p)
		if err != nil {
			return nil, err
		}
		out[i] = local
	}
	return out, nil
}
