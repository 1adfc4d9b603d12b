// Package storage routes a report destination URI to the blob store that serves it.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	gcsclient "cloud.google.com/go/storage"

	"github.com/JakeFAU/sitecrawler/internal/storage/gcs"
	"github.com/JakeFAU/sitecrawler/internal/storage/local"
	"github.com/JakeFAU/sitecrawler/internal/storage/memory"
)

// ErrEmptyURI is returned by Open for a blank destination.
var ErrEmptyURI = errors.New("destination uri is empty")

// BlobStore writes one object and returns the URI it landed at.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Destination is an opened blob store plus the object path the URI named.
type Destination struct {
	Store BlobStore
	Path  string

	closer io.Closer
}

// Close releases clients opened for the destination.
func (d *Destination) Close() error {
	if d.closer == nil {
		return nil
	}
	if err := d.closer.Close(); err != nil {
		return fmt.Errorf("close blob store: %w", err)
	}
	return nil
}

// Open resolves uri. Supported forms are gs://bucket/object, memory://object and a plain
// or file:// filesystem path.
func Open(ctx context.Context, uri string) (*Destination, error) {
	uri = strings.TrimSpace(uri)
	switch {
	case uri == "":
		return nil, ErrEmptyURI
	case strings.HasPrefix(uri, "gs://"):
		bucket, object, ok := strings.Cut(strings.TrimPrefix(uri, "gs://"), "/")
		if !ok || bucket == "" || object == "" {
			return nil, fmt.Errorf("gcs uri %q needs a bucket and an object", uri)
		}
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: bucket})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return &Destination{Store: store, Path: object, closer: client}, nil
	case strings.HasPrefix(uri, "memory://"):
		object := strings.TrimPrefix(uri, "memory://")
		if object == "" {
			return nil, fmt.Errorf("memory uri %q has no object", uri)
		}
		return &Destination{Store: memory.NewBlobStore(), Path: object}, nil
	default:
		path := strings.TrimPrefix(uri, "file://")
		store, err := local.New(local.Config{BaseDir: filepath.Dir(path)})
		if err != nil {
			return nil, err
		}
		return &Destination{Store: store, Path: filepath.Base(path)}, nil
	}
}
