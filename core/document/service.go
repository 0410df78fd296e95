package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/walimu/core"
)

const downloadURLExpiry = 15 * time.Minute

var (
	// errors
	ErrNotFound    = errors.New("document not found")
	ErrInvalidKind = errors.New("invalid document kind")
)

type (
	Repository interface {
		CreateDocument(ctx context.Context, doc Document, exec ...core.DBExecutor) (Document, error)
		GetDocument(ctx context.Context, id string, exec ...core.DBExecutor) (Document, error)
		QueryDocumentsByApplication(ctx context.Context, applicationID string, exec ...core.DBExecutor) ([]Document, error)
		DeleteDocument(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	Service interface {
		Attach(ctx context.Context, applicationID, kind, filename, contentType string, size int64, r io.Reader) (Document, error)
		List(ctx context.Context, applicationID string) ([]Document, error)
		GetByID(ctx context.Context, id string) (Document, error)
		Remove(ctx context.Context, id string) error
		DownloadURL(ctx context.Context, id string) (string, error)
	}

	service struct {
		db    core.DB
		repo  Repository
		blobs Blobs
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, blobs Blobs) Service {
	return &service{
		db:    db,
		repo:  repo,
		blobs: blobs,
	}
}

func (svc *service) Attach(ctx context.Context, applicationID, kind, filename, contentType string, size int64, r io.Reader) (Document, error) {
	if !ValidKind(kind) {
		return Document{}, core.NewValidationError(ErrInvalidKind, core.FieldError{Field: "kind", Error: ErrInvalidKind.Error()})
	}

	doc := Document{
		ID:            uuid.New().String(),
		ApplicationID: applicationID,
		Kind:          kind,
		Filename:      filename,
		ContentType:   contentType,
		SizeBytes:     size,
		UploadedAt:    time.Now().UTC(),
	}
	doc.StorageKey = fmt.Sprintf("applications/%s/%s/%s", applicationID, kind, doc.ID)

	if err := svc.blobs.Put(ctx, doc.StorageKey, r, size, contentType); err != nil {
		return Document{}, err
	}
	created, err := svc.repo.CreateDocument(ctx, doc)
	if err != nil {
		// keep the store consistent with the metadata
		_ = svc.blobs.Remove(ctx, doc.StorageKey)
		return Document{}, err
	}
	return created, nil
}

func (svc *service) List(ctx context.Context, applicationID string) ([]Document, error) {
	return svc.repo.QueryDocumentsByApplication(ctx, applicationID)
}

func (svc *service) GetByID(ctx context.Context, id string) (Document, error) {
	return svc.repo.GetDocument(ctx, id)
}

func (svc *service) Remove(ctx context.Context, id string) error {
	doc, err := svc.repo.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if err = svc.repo.DeleteDocument(ctx, id); err != nil {
		return err
	}
	return svc.blobs.Remove(ctx, doc.StorageKey)
}

func (svc *service) DownloadURL(ctx context.Context, id string) (string, error) {
	doc, err := svc.repo.GetDocument(ctx, id)
	if err != nil {
		return "", err
	}
	return svc.blobs.PresignGet(ctx, doc.StorageKey, downloadURLExpiry)
}
