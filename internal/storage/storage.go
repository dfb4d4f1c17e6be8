package storage

import (
	"context"
	"errors"
)

// Blob keys for the three persisted documents. Kept stable so existing
// sf_data_v1 backups import cleanly.
const (
	KeyData    = "sf_data_v1"
	KeyUsers   = "sf_users"
	KeySession = "sf_session"
)

var ErrNotFound = errors.New("blob not found")

// Blobs is a string-keyed blob store. Each key holds one serialized
// document; writes replace the whole value.
type Blobs interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}
