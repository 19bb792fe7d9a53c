// Package gcs implements the blob store port on Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gcs "cloud.google.com/go/storage"

	"github.com/pitchpractice/pitchpractice/internal/domain"
)

// Store holds raw pitch audio in a single bucket. Playback uses V4 signed
// URLs so objects never need public ACLs.
type Store struct {
	client *gcs.Client
	bucket string
}

// New constructs a Store against the given bucket. Credentials come from the
// ambient environment (ADC).
func New(ctx context.Context, bucket string) (*Store, error) {
	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("op=gcs.new: %w", err)
	}
	return &Store{client: c, bucket: bucket}, nil
}

func (s *Store) Close() error { return s.client.Close() }

// Put writes the object, overwriting any existing content at that path.
func (s *Store) Put(ctx domain.Context, path, contentType string, data []byte) error {
	w := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("op=gcs.put: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("op=gcs.put: %w", err)
	}
	return nil
}

// Get reads the whole object into memory. Pitch recordings are capped at the
// upload limit so this stays small.
func (s *Store) Get(ctx domain.Context, path string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(path).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("op=gcs.get: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("op=gcs.get: %w", err)
	}
	defer func() { _ = r.Close() }()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("op=gcs.get: %w", err)
	}
	return b, nil
}

// SignedURL returns a time-limited GET URL for the object.
func (s *Store) SignedURL(path string, ttl time.Duration) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(path, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("op=gcs.signed_url: %w", err)
	}
	return url, nil
}

// Check verifies the bucket is reachable. Used by the readiness probe.
func (s *Store) Check(ctx domain.Context) error {
	_, err := s.client.Bucket(s.bucket).Attrs(ctx)
	if err != nil {
		return fmt.Errorf("op=gcs.check: %w", err)
	}
	return nil
}
