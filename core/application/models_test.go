package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusDraft, StatusSubmitted, true},
		{StatusDraft, StatusUnderReview, false},
		{StatusDraft, StatusApproved, false},
		{StatusSubmitted, StatusUnderReview, true},
		{StatusSubmitted, StatusApproved, false},
		{StatusUnderReview, StatusApproved, true},
		{StatusUnderReview, StatusRejected, true},
		{StatusApproved, StatusSubmitted, false},
		{StatusRejected, StatusDraft, false},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			app := Application{Status: tt.from}
			assert.Equal(t, tt.want, app.CanTransitionTo(tt.to))
		})
	}
}

func TestMissingFields(t *testing.T) {
	app := Application{}
	assert.Equal(t, []string{"full_name", "subjects", "qualifications", "availability"}, app.MissingFields())

	app = Application{
		FullName:       "Jane Doe",
		Subjects:       []string{"math"},
		Qualifications: "BSc",
		Availability:   []string{"mon"},
	}
	assert.Empty(t, app.MissingFields())

	app.FullName = "   " // whitespace only
	assert.Equal(t, []string{"full_name"}, app.MissingFields())
}
