package storage

import (
	"context"
	"fmt"
	"io"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"
)

// Local stores objects in a directory through a file-backed blob bucket.
// Objects have no public URL; they are served by the API after the
// caller's access to the photo has been checked.
type Local struct {
	bucket *blob.Bucket
}

func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("local storage directory required")
	}
	b, err := fileblob.OpenBucket(dir, &fileblob.Options{CreateDir: true})
	if err != nil {
		return nil, fmt.Errorf("open storage directory: %w", err)
	}
	return &Local{bucket: b}, nil
}

func (l *Local) Upload(ctx context.Context, key, contentType string, data []byte) error {
	clean, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := l.bucket.WriteAll(ctx, clean, data, &blob.WriterOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("store object: %w", err)
	}
	return nil
}

func (l *Local) PublicURL(_ context.Context, key string) (string, error) {
	if _, err := cleanKey(key); err != nil {
		return "", err
	}
	return "", ErrNoPublicURL
}

func (l *Local) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	r, err := l.bucket.NewReader(ctx, clean, nil)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	return r, nil
}

// Remove deletes the object; a missing object is not an error.
func (l *Local) Remove(ctx context.Context, key string) error {
	clean, err := cleanKey(key)
	if err != nil {
		return err
	}
	err = l.bucket.Delete(ctx, clean)
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

func (l *Local) Close() error {
	return l.bucket.Close()
}
