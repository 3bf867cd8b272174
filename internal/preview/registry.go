package preview

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"go.uber.org/zap"

	"github.com/example/leafcheck/internal/logging"
)

// URIPrefix is the path under which previews are served.
const URIPrefix = "/preview/"

const fallbackContentType = "application/octet-stream"

// Registry allocates and revokes preview URIs on top of a Store.
type Registry struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

// NewRegistry returns a registry whose previews live for at most ttl.
func NewRegistry(store Store, ttl time.Duration, logger *zap.Logger) *Registry {
	return &Registry{store: store, ttl: ttl, logger: logger.Named("preview")}
}

// Create stores data and returns the URI it can be fetched from.
func (r *Registry) Create(ctx context.Context, data []byte) (string, error) {
	id := uuid.NewString()
	blob := Blob{ContentType: DetectContentType(data), Data: data}
	if err := r.store.Put(ctx, id, blob, r.ttl); err != nil {
		return "", logging.NewOperationError("preview.create", id, err)
	}
	return URIPrefix + id, nil
}

// Revoke releases the preview behind uri. Unknown URIs are ignored.
func (r *Registry) Revoke(ctx context.Context, uri string) {
	id, ok := IDFromURI(uri)
	if !ok {
		return
	}
	if err := r.store.Delete(ctx, id); err != nil {
		r.logger.Warn("failed to revoke preview",
			zap.Error(logging.NewOperationError("preview.revoke", id, err)))
	}
}

// Open returns the blob stored under id.
func (r *Registry) Open(ctx context.Context, id string) (Blob, error) {
	return r.store.Get(ctx, id)
}

// IDFromURI extracts the preview id from a URI returned by Create.
func IDFromURI(uri string) (string, bool) {
	id, ok := strings.CutPrefix(uri, URIPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// DetectContentType sniffs the MIME type of data from its magic bytes.
func DetectContentType(data []byte) string {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return fallbackContentType
	}
	return kind.MIME.Value
}
