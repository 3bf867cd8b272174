package preview

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for previews that were never created, were
// revoked, or have expired.
var ErrNotFound = errors.New("preview not found")

// Blob is the content behind one preview URI.
type Blob struct {
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Store holds preview blobs by id.
type Store interface {
	Put(ctx context.Context, id string, blob Blob, ttl time.Duration) error
	Get(ctx context.Context, id string) (Blob, error)
	Delete(ctx context.Context, id string) error
}
