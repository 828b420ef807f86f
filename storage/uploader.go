package storage

import (
	"context"
	"io"
)

// StoredObject describes an evidence file after upload. Key is the opaque
// bucket key persisted on the dispute; Location is the public URL shown to
// reviewers.
type StoredObject struct {
	Key      string
	Location string
	ETag     string
}

// EvidenceStore keeps dispute evidence files. Objects are written once and
// removed only when their dispute is purged.
type EvidenceStore interface {
	Put(ctx context.Context, key string, contentType string, reader io.Reader) (*StoredObject, error)

	Remove(ctx context.Context, key string) error

	PublicURL(key string) string
}
