package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const gcsScheme = "gs://"

// GCSStore writes reports to a Cloud Storage bucket.
type GCSStore struct {
	client *gcs.Client
	bucket string
	prefix string
}

// NewGCSClient uses credentialsFile when set and application default
// credentials otherwise.
func NewGCSClient(ctx context.Context, credentialsFile string) (*gcs.Client, error) {
	if strings.TrimSpace(credentialsFile) != "" {
		return gcs.NewClient(ctx, option.WithCredentialsFile(credentialsFile))
	}
	return gcs.NewClient(ctx)
}

// NewGCSStore constructs a store for bucket with an optional key prefix.
func NewGCSStore(client *gcs.Client, bucket, prefix string) (*GCSStore, error) {
	if client == nil {
		return nil, errors.New("gcs store: nil client")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("gcs store: empty bucket")
	}
	return &GCSStore{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

// Put uploads body and returns its gs:// location.
func (s *GCSStore) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	object := cleaned
	if s.prefix != "" {
		object = path.Join(s.prefix, cleaned)
	}
	wc := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := wc.Write(body); err != nil {
		_ = wc.Close()
		return "", fmt.Errorf("gcs store: upload %s: %w", object, err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("gcs store: close writer: %w", err)
	}
	return gcsScheme + s.bucket + "/" + object, nil
}

// Get downloads a location previously returned by Put.
func (s *GCSStore) Get(ctx context.Context, location string) ([]byte, error) {
	object, err := s.objectName(location)
	if err != nil {
		return nil, err
	}
	rc, err := s.client.Bucket(s.bucket).Object(object).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, location)
	}
	if err != nil {
		return nil, fmt.Errorf("gcs store: open %s: %w", object, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Delete removes a location previously returned by Put.
func (s *GCSStore) Delete(ctx context.Context, location string) error {
	object, err := s.objectName(location)
	if err != nil {
		return err
	}
	err = s.client.Bucket(s.bucket).Object(object).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("gcs store: delete %s: %w", object, err)
	}
	return nil
}

func (s *GCSStore) objectName(location string) (string, error) {
	bucket, object, ok := strings.Cut(strings.TrimPrefix(location, gcsScheme), "/")
	if !strings.HasPrefix(location, gcsScheme) || !ok || bucket != s.bucket || object == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidKey, location)
	}
	return object, nil
}

// Close releases the client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
