package application

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/walimu/core"
)

// Statuses. An application is freely overwritable by autosave while draft;
// submission and review are explicit, non-debounced actions.
const (
	StatusDraft       = "draft"
	StatusSubmitted   = "submitted"
	StatusUnderReview = "under_review"
	StatusApproved    = "approved"
	StatusRejected    = "rejected"
)

var (
	AllStatuses = []string{StatusDraft, StatusSubmitted, StatusUnderReview, StatusApproved, StatusRejected}

	statusTransitions = map[string][]string{
		StatusDraft:       {StatusSubmitted},
		StatusSubmitted:   {StatusUnderReview},
		StatusUnderReview: {StatusApproved, StatusRejected},
	}
)

type Application struct {
	ID          string `json:"id"`
	ApplicantID string `json:"applicant_id"`
	Status      string `json:"status"`
	Step        int    `json:"step"` // last form step the applicant visited

	// form fields
	FullName        string   `json:"full_name"`
	Phone           string   `json:"phone"`
	City            string   `json:"city"`
	Bio             string   `json:"bio"`
	Subjects        []string `json:"subjects"`
	Levels          []string `json:"levels"`
	Qualifications  string   `json:"qualifications"`
	YearsExperience int      `json:"years_experience"`
	HoursPerWeek    int      `json:"hours_per_week"`
	Availability    []string `json:"availability"`
	HourlyRateCents int      `json:"hourly_rate_cents"`

	// review
	ReviewerID string `json:"reviewer_id,omitempty"`
	ReviewNote string `json:"review_note,omitempty"`

	SubmittedAt time.Time `json:"submitted_at"` // UTC
	DecidedAt   time.Time `json:"decided_at"`   // UTC
	CreatedAt   time.Time `json:"created_at"`   // UTC
	UpdatedAt   time.Time `json:"updated_at"`   // UTC
}

func (a *Application) IsDraft() bool   { return a.Status == StatusDraft }
func (a *Application) IsDecided() bool { return a.Status == StatusApproved || a.Status == StatusRejected }

// CanTransitionTo reports whether moving to the given status is allowed from
// the application's current status.
func (a *Application) CanTransitionTo(status string) bool {
	for _, next := range statusTransitions[a.Status] {
		if next == status {
			return true
		}
	}
	return false
}

// MissingFields lists the form fields still required before submission.
func (a *Application) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(a.FullName) == "" {
		missing = append(missing, "full_name")
	}
	if len(a.Subjects) == 0 {
		missing = append(missing, "subjects")
	}
	if strings.TrimSpace(a.Qualifications) == "" {
		missing = append(missing, "qualifications")
	}
	if len(a.Availability) == 0 {
		missing = append(missing, "availability")
	}
	return missing
}

// Decision is an admin's verdict on a reviewed application.
type Decision struct {
	Approve *bool  `json:"approve" validate:"required"`
	Note    string `json:"note"`
}

func (d *Decision) Validate(validate *validator.Validate) error {
	d.Note = core.CleanString(d.Note)
	if err := validate.Struct(d); err != nil {
		return err
	}
	if d.Approve != nil && !*d.Approve && d.Note == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "note", Error: "a note is required when rejecting"})
	}
	return nil
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Statuses    []string  `query:"status"`
	Subjects    []string  `query:"subject"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Statuses == nil && qf.Subjects == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter selects a single application; the first non-empty field wins.
type GetFilter struct {
	ID          string
	ApplicantID string
}
