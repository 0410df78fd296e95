package application

import (
	"strconv"
	"strings"

	"github.com/trezcool/walimu/core"
	"github.com/trezcool/walimu/core/autosave"
)

// Snapshot field keys, matching the intake form's field names.
const (
	fieldFullName        = "full_name"
	fieldPhone           = "phone"
	fieldCity            = "city"
	fieldBio             = "bio"
	fieldSubjects        = "subjects"
	fieldLevels          = "levels"
	fieldQualifications  = "qualifications"
	fieldYearsExperience = "years_experience"
	fieldHoursPerWeek    = "hours_per_week"
	fieldAvailability    = "availability"
	fieldHourlyRateCents = "hourly_rate_cents"
	fieldStep            = "step"
)

// DraftFromSnapshot maps an autosave snapshot onto an Application draft.
// List fields arrive comma-separated and are split and trimmed; absent numeric
// fields default to zero except HoursPerWeek which defaults to 1.
// The status is always forced to draft: autosave never advances an application.
func DraftFromSnapshot(applicantID, applicationID string, snap autosave.Snapshot) Application {
	app := Application{
		ID:              applicationID,
		ApplicantID:     applicantID,
		Status:          StatusDraft,
		Step:            snapInt(snap, fieldStep, 0),
		FullName:        core.CleanString(snap[fieldFullName]),
		Phone:           core.CleanString(snap[fieldPhone]),
		City:            core.CleanString(snap[fieldCity]),
		Bio:             core.CleanString(snap[fieldBio]),
		Subjects:        core.SplitAndTrim(snap[fieldSubjects]),
		Levels:          core.SplitAndTrim(snap[fieldLevels]),
		Qualifications:  core.CleanString(snap[fieldQualifications]),
		YearsExperience: snapInt(snap, fieldYearsExperience, 0),
		HoursPerWeek:    snapInt(snap, fieldHoursPerWeek, 1),
		Availability:    core.SplitAndTrim(snap[fieldAvailability]),
		HourlyRateCents: snapInt(snap, fieldHourlyRateCents, 0),
	}
	return app
}

// SnapshotFromDraft is the inverse mapping, used to rehydrate a recovered
// fallback draft into the form's snapshot shape.
func SnapshotFromDraft(app Application) autosave.Snapshot {
	return autosave.Snapshot{
		fieldFullName:        app.FullName,
		fieldPhone:           app.Phone,
		fieldCity:            app.City,
		fieldBio:             app.Bio,
		fieldSubjects:        strings.Join(app.Subjects, ","),
		fieldLevels:          strings.Join(app.Levels, ","),
		fieldQualifications:  app.Qualifications,
		fieldYearsExperience: strconv.Itoa(app.YearsExperience),
		fieldHoursPerWeek:    strconv.Itoa(app.HoursPerWeek),
		fieldAvailability:    strings.Join(app.Availability, ","),
		fieldHourlyRateCents: strconv.Itoa(app.HourlyRateCents),
		fieldStep:            strconv.Itoa(app.Step),
	}
}

func snapInt(snap autosave.Snapshot, key string, dflt int) int {
	raw, ok := snap[key]
	if !ok || raw == "" {
		return dflt
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return dflt
	}
	return n
}
