package sink

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
)

// ObjectStore is everything GCSSink needs from Cloud Storage: a fresh writer
// for each archived record. The object exists only once Close returns nil, so
// the sink reports a failed Close as a failed save and the message is nacked.
// Tests substitute an in-memory store.
type ObjectStore interface {
	NewObjectWriter(ctx context.Context, bucket, object string) io.WriteCloser
}

// gcsObjectStore writes through a *storage.Client.
type gcsObjectStore struct {
	client *storage.Client
}

// NewGCSObjectStore wraps client. It returns nil for a nil client, which
// NewGCSSink rejects.
func NewGCSObjectStore(client *storage.Client) ObjectStore {
	if client == nil {
		return nil
	}
	return &gcsObjectStore{client: client}
}

// NewObjectWriter labels the object as gzipped JSON, matching what Save
// writes, so readers that honour Content-Encoding get plain JSON back.
func (s *gcsObjectStore) NewObjectWriter(ctx context.Context, bucket, object string) io.WriteCloser {
	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/json"
	w.ContentEncoding = "gzip"
	return w
}
