package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/walimu/core"
	"github.com/trezcool/walimu/core/document"
)

type documentRepository struct {
	db *documentTable
}

var _ document.Repository = (*documentRepository)(nil)

func NewDocumentRepository(db *DB) *documentRepository {
	return &documentRepository{db: db.document}
}

func (repo *documentRepository) CreateDocument(_ context.Context, doc document.Document, _ ...core.DBExecutor) (document.Document, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	repo.db.table[doc.ID] = &doc
	return doc, nil
}

func (repo *documentRepository) GetDocument(_ context.Context, id string, _ ...core.DBExecutor) (document.Document, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if doc, ok := repo.db.table[id]; ok {
		return *doc, nil
	}
	return document.Document{}, document.ErrNotFound
}

func (repo *documentRepository) QueryDocumentsByApplication(_ context.Context, applicationID string, _ ...core.DBExecutor) ([]document.Document, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	docs := make([]document.Document, 0)
	for _, doc := range repo.db.table {
		if doc.ApplicationID == applicationID {
			docs = append(docs, *doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].UploadedAt.Before(docs[j].UploadedAt) })
	return docs, nil
}

func (repo *documentRepository) DeleteDocument(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return document.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}
