package fetch

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3 downloads s3://bucket/key urls from any S3 compatible endpoint.
type S3 struct {
	c *minio.Client
}

func NewS3(endpoint, key, secret, region string, secure bool) (*S3, error) {
	if endpoint == "" {
		return nil, errors.New("no s3 endpoint")
	}
	c, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(key, secret, ""),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, err
	}
	return &S3{c: c}, nil
}

func (s *S3) Fetch(ctx context.Context, u *url.URL, dest string) error {
	return s.c.FGetObject(ctx, u.Host, strings.TrimPrefix(u.Path, "/"), dest, minio.GetObjectOptions{})
}
