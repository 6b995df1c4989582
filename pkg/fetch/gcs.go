package fetch

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
)

// Gcs downloads gs://bucket/object urls with the default credentials.
// The client is created on first use.
type Gcs struct {
	once   sync.Once
	client *storage.Client
	err    error
}

func NewGcs() *Gcs { return &Gcs{} }

func (g *Gcs) Fetch(ctx context.Context, u *url.URL, dest string) (err error) {
	g.once.Do(func() { g.client, g.err = storage.NewClient(context.Background()) })
	if g.err != nil {
		return g.err
	}

	rc, err := g.client.Bucket(u.Host).Object(strings.TrimPrefix(u.Path, "/")).NewReader(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err = io.Copy(f, rc); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (g *Gcs) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
