package application

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/walimu/core/autosave"
)

func TestDraftFromSnapshot(t *testing.T) {
	tests := []struct {
		name string
		snap autosave.Snapshot
		want Application
	}{
		{
			name: "empty snapshot gets defaults",
			snap: autosave.Snapshot{},
			want: Application{
				ID:           "app1",
				ApplicantID:  "usr1",
				Status:       StatusDraft,
				Subjects:     []string{},
				Levels:       []string{},
				Availability: []string{},
				HoursPerWeek: 1,
			},
		},
		{
			name: "list fields are split and trimmed",
			snap: autosave.Snapshot{
				"full_name":    "  Jane Doe ",
				"subjects":     "math, physics ,,  chemistry",
				"levels":       "primary",
				"availability": " mon , wed ",
			},
			want: Application{
				ID:           "app1",
				ApplicantID:  "usr1",
				Status:       StatusDraft,
				FullName:     "Jane Doe",
				Subjects:     []string{"math", "physics", "chemistry"},
				Levels:       []string{"primary"},
				Availability: []string{"mon", "wed"},
				HoursPerWeek: 1,
			},
		},
		{
			name: "numeric fields parsed; garbage falls back to defaults",
			snap: autosave.Snapshot{
				"years_experience":  "7",
				"hours_per_week":    "12",
				"hourly_rate_cents": "oops",
				"step":              "3",
			},
			want: Application{
				ID:              "app1",
				ApplicantID:     "usr1",
				Status:          StatusDraft,
				Subjects:        []string{},
				Levels:          []string{},
				Availability:    []string{},
				YearsExperience: 7,
				HoursPerWeek:    12,
				Step:            3,
			},
		},
		{
			name: "status cannot be smuggled in through the snapshot",
			snap: autosave.Snapshot{"status": StatusApproved},
			want: Application{
				ID:           "app1",
				ApplicantID:  "usr1",
				Status:       StatusDraft,
				Subjects:     []string{},
				Levels:       []string{},
				Availability: []string{},
				HoursPerWeek: 1,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DraftFromSnapshot("usr1", "app1", tt.snap)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	app := Application{
		ID:              "app1",
		ApplicantID:     "usr1",
		Status:          StatusDraft,
		Step:            2,
		FullName:        "Jane Doe",
		Phone:           "+254700000000",
		City:            "Nairobi",
		Bio:             "Ten years teaching.",
		Subjects:        []string{"math", "physics"},
		Levels:          []string{"secondary"},
		Qualifications:  "BSc Mathematics",
		YearsExperience: 10,
		HoursPerWeek:    20,
		Availability:    []string{"mon", "wed", "fri"},
		HourlyRateCents: 150000,
	}
	got := DraftFromSnapshot(app.ApplicantID, app.ID, SnapshotFromDraft(app))
	assert.Equal(t, app, got)
}
