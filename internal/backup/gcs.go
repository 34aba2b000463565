package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSSink stores backups as objects under a prefix of one bucket.
type GCSSink struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSSink connects to Cloud Storage. With an empty credentialsFile the
// client uses Application Default Credentials.
func NewGCSSink(ctx context.Context, bucket, prefix, credentialsFile string) (*GCSSink, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSSink{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (g *GCSSink) object(name string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(path.Join(g.prefix, name))
}

func (g *GCSSink) Put(ctx context.Context, name string, r io.Reader) error {
	w := g.object(name).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("copy to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

func (g *GCSSink) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	r, err := g.object(name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	return r, nil
}

func (g *GCSSink) List(ctx context.Context) ([]string, error) {
	q := &storage.Query{}
	if g.prefix != "" {
		q.Prefix = g.prefix + "/"
	}
	it := g.client.Bucket(g.bucket).Objects(ctx, q)

	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		names = append(names, path.Base(attrs.Name))
	}
	return names, nil
}

func (g *GCSSink) Delete(ctx context.Context, name string) error {
	return g.object(name).Delete(ctx)
}

// Close releases the storage client.
func (g *GCSSink) Close() error {
	return g.client.Close()
}
