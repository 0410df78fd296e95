package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/walimu/core"
	"github.com/trezcool/walimu/core/document"
)

type documentRow struct {
	ID            string    `db:"id"`
	ApplicationID string    `db:"application_id"`
	Kind          string    `db:"kind"`
	Filename      string    `db:"filename"`
	ContentType   string    `db:"content_type"`
	SizeBytes     int64     `db:"size_bytes"`
	StorageKey    string    `db:"storage_key"`
	UploadedAt    null.Time `db:"uploaded_at"`
}

func (r documentRow) unpack() document.Document {
	return document.Document{
		ID:            r.ID,
		ApplicationID: r.ApplicationID,
		Kind:          r.Kind,
		Filename:      r.Filename,
		ContentType:   r.ContentType,
		SizeBytes:     r.SizeBytes,
		StorageKey:    r.StorageKey,
		UploadedAt:    r.UploadedAt.Time,
	}
}

const documentColumns = `id, application_id, kind, filename, content_type, size_bytes, storage_key, uploaded_at`

type documentRepository struct {
	exec core.DBExecutor
}

var _ document.Repository = (*documentRepository)(nil) // interface compliance check

func NewDocumentRepository(exec core.DBExecutor) *documentRepository {
	return &documentRepository{exec: exec}
}

func (repo documentRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

func (repo documentRepository) CreateDocument(ctx context.Context, doc document.Document, exec ...core.DBExecutor) (document.Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	q := `
		INSERT INTO document (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := repo.getExec(exec).ExecContext(ctx, q,
		doc.ID,
		doc.ApplicationID,
		doc.Kind,
		doc.Filename,
		doc.ContentType,
		doc.SizeBytes,
		doc.StorageKey,
		null.NewTime(doc.UploadedAt.UTC(), !doc.UploadedAt.IsZero()),
	)
	if err != nil {
		return document.Document{}, errors.Wrap(err, "inserting document")
	}
	return doc, nil
}

func (repo documentRepository) GetDocument(ctx context.Context, id string, exec ...core.DBExecutor) (document.Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return document.Document{}, document.ErrNotFound
	}
	rows, err := repo.getExec(exec).QueryContext(ctx, `SELECT `+documentColumns+` FROM document WHERE id = $1 LIMIT 1`, id)
	if err != nil {
		return document.Document{}, errors.Wrap(err, "finding document")
	}
	defer func() { _ = rows.Close() }()
	var rs []documentRow
	if err = sqlx.StructScan(rows, &rs); err != nil {
		return document.Document{}, errors.Wrap(err, "finding document")
	}
	if len(rs) == 0 {
		return document.Document{}, document.ErrNotFound
	}
	return rs[0].unpack(), nil
}

func (repo documentRepository) QueryDocumentsByApplication(ctx context.Context, applicationID string, exec ...core.DBExecutor) ([]document.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM document WHERE application_id = $1 ORDER BY uploaded_at`
	rows, err := repo.getExec(exec).QueryContext(ctx, q, applicationID)
	if err != nil {
		return nil, errors.Wrap(err, "querying documents")
	}
	defer func() { _ = rows.Close() }()
	var rs []documentRow
	if err = sqlx.StructScan(rows, &rs); err != nil {
		return nil, errors.Wrap(err, "querying documents")
	}
	docs := make([]document.Document, 0, len(rs))
	for _, r := range rs {
		docs = append(docs, r.unpack())
	}
	return docs, nil
}

func (repo documentRepository) DeleteDocument(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM document WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting document")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return document.ErrNotFound
	}
	return nil
}
