package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/walimu/core"
	"github.com/trezcool/walimu/core/application"
)

type applicationRepository struct {
	db *applicationTable
}

var _ application.Repository = (*applicationRepository)(nil)

func NewApplicationRepository(db *DB) *applicationRepository {
	return &applicationRepository{db: db.application}
}

func (repo *applicationRepository) all() []application.Application {
	apps := make([]application.Application, 0, len(repo.db.table))
	for _, a := range repo.db.table {
		apps = append(apps, *a)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].CreatedAt.Before(apps[j].CreatedAt) })
	return apps
}

func (repo *applicationRepository) CreateApplication(_ context.Context, app application.Application, _ ...core.DBExecutor) (application.Application, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if app.ID == "" {
		app.ID = uuid.New().String()
	}
	repo.db.table[app.ID] = &app
	return app, nil
}

func (repo *applicationRepository) QueryApplications(_ context.Context, filter *application.QueryFilter, _ []core.DBOrdering, _ ...core.DBExecutor) ([]application.Application, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	apps := repo.all()
	if filter == nil || filter.IsEmpty() {
		return apps, nil
	}

	matches := make([]application.Application, 0, len(apps))
	for _, app := range apps {
		if filter.Search != "" {
			s := strings.ToLower(filter.Search)
			if !(strings.Contains(strings.ToLower(app.FullName), s) ||
				strings.Contains(strings.ToLower(app.City), s) ||
				containsFold(app.Subjects, s)) {
				continue
			}
		}
		if len(filter.Statuses) > 0 && !contains(filter.Statuses, app.Status) {
			continue
		}
		if len(filter.Subjects) > 0 && !overlaps(app.Subjects, filter.Subjects) {
			continue
		}
		if !filter.CreatedFrom.IsZero() && app.CreatedAt.Before(filter.CreatedFrom) {
			continue
		}
		if !filter.CreatedTo.IsZero() && app.CreatedAt.After(filter.CreatedTo) {
			continue
		}
		matches = append(matches, app)
	}
	return matches, nil
}

func (repo *applicationRepository) GetApplication(_ context.Context, filter application.GetFilter, _ ...core.DBExecutor) (application.Application, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if app, ok := repo.db.table[filter.ID]; ok {
			return *app, nil
		}
		return application.Application{}, application.ErrNotFound
	}
	if filter.ApplicantID != "" {
		apps := repo.all()
		// latest application wins
		for i := len(apps) - 1; i >= 0; i-- {
			if apps[i].ApplicantID == filter.ApplicantID {
				return apps[i], nil
			}
		}
	}
	return application.Application{}, application.ErrNotFound
}

func (repo *applicationRepository) UpdateApplication(_ context.Context, app application.Application, _ ...core.DBExecutor) (application.Application, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[app.ID]; !ok {
		return application.Application{}, application.ErrNotFound
	}
	repo.db.table[app.ID] = &app
	return app, nil
}

func (repo *applicationRepository) UpsertApplicationDraft(_ context.Context, app application.Application, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if orig, ok := repo.db.table[app.ID]; ok {
		if orig.Status != application.StatusDraft || orig.ApplicantID != app.ApplicantID {
			return nil // same no-op the WHERE clause gives on conflict
		}
		app.Status = orig.Status
		app.ReviewerID = orig.ReviewerID
		app.ReviewNote = orig.ReviewNote
		app.SubmittedAt = orig.SubmittedAt
		app.DecidedAt = orig.DecidedAt
		app.CreatedAt = orig.CreatedAt
	} else if app.CreatedAt.IsZero() {
		app.CreatedAt = app.UpdatedAt
	}
	repo.db.table[app.ID] = &app
	return nil
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// containsFold reports whether any entry contains needle, case-insensitive;
// needle must already be lowercased.
func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		if contains(b, x) {
			return true
		}
	}
	return false
}
