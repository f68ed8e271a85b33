package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// BucketStore uploads blobs through a storage service's object REST API
// and returns the public-object URL for each upload.
type BucketStore struct {
	endpoint string
	bucket   string
	apiKey   string
	client   *http.Client
}

func NewBucketStore(endpoint, bucket, apiKey string) *BucketStore {
	return &BucketStore{
		endpoint: strings.TrimRight(endpoint, "/"),
		bucket:   bucket,
		apiKey:   apiKey,
		client:   http.DefaultClient,
	}
}

func (s *BucketStore) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	uploadURL := fmt.Sprintf("%s/object/%s/%s", s.endpoint, s.bucket, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload blob: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("upload blob: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return fmt.Sprintf("%s/object/public/%s/%s", s.endpoint, s.bucket, path), nil
}
