// Package storage provides the durable object-store bus the pipeline stages
// use to pass large intermediate results around the workflow engine's
// payload-size limits. Every writer writes to a unique timestamped key, so
// the bus needs no locking and no read-modify-write semantics.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("storage: object not found")

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ObjectStore is the blob-bus capability: put/get/list/delete by key plus
// presigned download links for exposing final artifacts.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, keys []string) (int, error)
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
}
