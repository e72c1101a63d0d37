// Package imagecache stores cover images in a gocloud.dev/blob bucket,
// keyed "<id>.png".
package imagecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"

	"github.com/jamesainslie/shelf/pkg/shelf/logging"
)

// ErrNotFound is returned by Get when no image is cached under the id.
var ErrNotFound = errors.New("image not cached")

// maxImageBytes bounds a single fetched image.
const maxImageBytes = 32 << 20

// Cache is a cover image store.
type Cache struct {
	bucket *blob.Bucket
	client *http.Client
	log    *logging.Logger
}

// Open opens the bucket at url (for example "file:///var/cache/shelf/images"
// or "mem://"). client is used by Fetch and may be nil.
func Open(ctx context.Context, url string, client *http.Client) (*Cache, error) {
	bkt, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("opening image bucket %s: %w", url, err)
	}
	return New(bkt, client), nil
}

// New wraps an already open bucket. The Cache takes ownership of it.
func New(bucket *blob.Bucket, client *http.Client) *Cache {
	if client == nil {
		client = http.DefaultClient
	}
	return &Cache{bucket: bucket, client: client, log: logging.Get("images")}
}

// Close closes the underlying bucket.
func (c *Cache) Close() error {
	return c.bucket.Close()
}

// Key returns the object key for an image id.
func Key(id string) string {
	return id + ".png"
}

func validID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("invalid image id %q", id)
	}
	return nil
}

// Get opens the cached image for id. The caller closes the reader.
func (c *Cache) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	r, err := c.bucket.NewReader(ctx, Key(id), nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%s: %w", Key(id), ErrNotFound)
		}
		return nil, fmt.Errorf("reading %s: %w", Key(id), err)
	}
	return r, nil
}

// Exists reports whether an image is cached for id.
func (c *Cache) Exists(ctx context.Context, id string) (bool, error) {
	if err := validID(id); err != nil {
		return false, err
	}
	return c.bucket.Exists(ctx, Key(id))
}

// Put stores the image read from r under id.
func (c *Cache) Put(ctx context.Context, id string, r io.Reader) error {
	if err := validID(id); err != nil {
		return err
	}

	w, err := c.bucket.NewWriter(ctx, Key(id), &blob.WriterOptions{ContentType: "image/png"})
	if err != nil {
		return fmt.Errorf("creating %s: %w", Key(id), err)
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("writing %s: %w", Key(id), err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("committing %s: %w", Key(id), err)
	}
	return nil
}

// Fetch downloads url and stores it under id.
func (c *Cache) Fetch(ctx context.Context, id, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("fetching %s: HTTP %d", url, resp.StatusCode)
	}

	if err := c.Put(ctx, id, io.LimitReader(resp.Body, maxImageBytes)); err != nil {
		return err
	}
	c.log.Debug("cached image", "id", id, "url", url)
	return nil
}
