package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/walimu/core/application"
)

func newAppRepo(t *testing.T) *applicationRepository {
	t.Helper()
	db, err := Open()
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	return NewApplicationRepository(db)
}

func createApp(t *testing.T, repo *applicationRepository, app application.Application) application.Application {
	t.Helper()
	now := time.Now().UTC()
	if app.Status == "" {
		app.Status = application.StatusDraft
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
		app.UpdatedAt = now
	}
	app, err := repo.CreateApplication(context.Background(), app)
	if err != nil {
		t.Fatalf("CreateApplication() failed: %v", err)
	}
	return app
}

func Test_applicationRepository_QueryApplications_search(t *testing.T) {
	repo := newAppRepo(t)
	ctx := context.Background()

	maths := createApp(t, repo, application.Application{
		ApplicantID: "usr1",
		FullName:    "Awe Mdr",
		City:        "Kinshasa",
		Subjects:    []string{"Mathematics", "Physics"},
	})
	bio := createApp(t, repo, application.Application{
		ApplicantID: "usr2",
		FullName:    "Jane Doe",
		City:        "Lubumbashi",
		Subjects:    []string{"Biology"},
	})

	tests := []struct {
		name    string
		search  string
		wantIDs []string
	}{
		{name: "by full name", search: "jane", wantIDs: []string{bio.ID}},
		{name: "by city", search: "KINSHASA", wantIDs: []string{maths.ID}},
		{name: "by subject", search: "mathematics", wantIDs: []string{maths.ID}},
		{name: "by partial subject", search: "phys", wantIDs: []string{maths.ID}},
		{name: "no match", search: "chemistry", wantIDs: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apps, err := repo.QueryApplications(ctx, &application.QueryFilter{Search: tt.search}, nil)
			require.NoError(t, err)
			gotIDs := make([]string, 0, len(apps))
			for _, app := range apps {
				gotIDs = append(gotIDs, app.ID)
			}
			assert.ElementsMatch(t, tt.wantIDs, gotIDs)
		})
	}
}

func Test_applicationRepository_UpsertApplicationDraft_guards(t *testing.T) {
	repo := newAppRepo(t)
	ctx := context.Background()

	app := createApp(t, repo, application.Application{
		ApplicantID: "usr1",
		Status:      application.StatusSubmitted,
		FullName:    "Awe Mdr",
	})

	// a late autosave must not touch a submitted application
	stale := app
	stale.Status = application.StatusDraft
	stale.FullName = "Sneaky Edit"
	require.NoError(t, repo.UpsertApplicationDraft(ctx, stale))

	got, err := repo.GetApplication(ctx, application.GetFilter{ID: app.ID})
	require.NoError(t, err)
	assert.Equal(t, application.StatusSubmitted, got.Status)
	assert.Equal(t, "Awe Mdr", got.FullName)
}
