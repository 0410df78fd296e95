package document

import (
	"context"
	"io"
	"time"
)

// Kinds of documents an applicant can attach.
const (
	KindCV          = "cv"
	KindCertificate = "certificate"
	KindID          = "id"
)

var AllKinds = []string{KindCV, KindCertificate, KindID}

func ValidKind(kind string) bool {
	for _, k := range AllKinds {
		if k == kind {
			return true
		}
	}
	return false
}

type Document struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	Kind          string    `json:"kind"`
	Filename      string    `json:"filename"`
	ContentType   string    `json:"content_type"`
	SizeBytes     int64     `json:"size_bytes"`
	StorageKey    string    `json:"-"`
	UploadedAt    time.Time `json:"uploaded_at"` // UTC
}

// Blobs abstracts the object store holding document contents.
type Blobs interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
	// PresignGet returns a time-limited download URL for the object.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}
