package fetch

import (
	"context"
	"net/url"

	"github.com/cavaliercoder/grab"
)

// Http downloads http and https urls.
type Http struct {
	client *grab.Client
}

func NewHttp() *Http { return &Http{client: grab.NewClient()} }

func (h *Http) Fetch(ctx context.Context, u *url.URL, dest string) error {
	req, err := grab.NewRequest(dest, u.String())
	if err != nil {
		return err
	}
	req.NoResume = true
	resp := h.client.Do(req.WithContext(ctx))
	return resp.Err()
}
