package database

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/walimu/core"
	"github.com/trezcool/walimu/core/application"
)

type applicationRow struct {
	ID              string         `db:"id"`
	ApplicantID     string         `db:"applicant_id"`
	Status          string         `db:"status"`
	Step            int            `db:"step"`
	FullName        null.String    `db:"full_name"`
	Phone           null.String    `db:"phone"`
	City            null.String    `db:"city"`
	Bio             null.String    `db:"bio"`
	Subjects        pq.StringArray `db:"subjects"`
	Levels          pq.StringArray `db:"levels"`
	Qualifications  null.String    `db:"qualifications"`
	YearsExperience int            `db:"years_experience"`
	HoursPerWeek    int            `db:"hours_per_week"`
	Availability    pq.StringArray `db:"availability"`
	HourlyRateCents int            `db:"hourly_rate_cents"`
	ReviewerID      null.String    `db:"reviewer_id"`
	ReviewNote      null.String    `db:"review_note"`
	SubmittedAt     null.Time      `db:"submitted_at"`
	DecidedAt       null.Time      `db:"decided_at"`
	CreatedAt       null.Time      `db:"created_at"`
	UpdatedAt       null.Time      `db:"updated_at"`
}

func (r applicationRow) unpack() application.Application {
	return application.Application{
		ID:              r.ID,
		ApplicantID:     r.ApplicantID,
		Status:          r.Status,
		Step:            r.Step,
		FullName:        r.FullName.String,
		Phone:           r.Phone.String,
		City:            r.City.String,
		Bio:             r.Bio.String,
		Subjects:        r.Subjects,
		Levels:          r.Levels,
		Qualifications:  r.Qualifications.String,
		YearsExperience: r.YearsExperience,
		HoursPerWeek:    r.HoursPerWeek,
		Availability:    r.Availability,
		HourlyRateCents: r.HourlyRateCents,
		ReviewerID:      r.ReviewerID.String,
		ReviewNote:      r.ReviewNote.String,
		SubmittedAt:     r.SubmittedAt.Time,
		DecidedAt:       r.DecidedAt.Time,
		CreatedAt:       r.CreatedAt.Time,
		UpdatedAt:       r.UpdatedAt.Time,
	}
}

const applicationColumns = `id, applicant_id, status, step, full_name, phone, city, bio, subjects, levels,
	qualifications, years_experience, hours_per_week, availability, hourly_rate_cents,
	reviewer_id, review_note, submitted_at, decided_at, created_at, updated_at`

type applicationRepository struct {
	exec core.DBExecutor
}

var _ application.Repository = (*applicationRepository)(nil) // interface compliance check

func NewApplicationRepository(exec core.DBExecutor) *applicationRepository {
	return &applicationRepository{exec: exec}
}

func (repo applicationRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

func (repo applicationRepository) selectApplications(ctx context.Context, exe core.DBExecutor, q string, args ...interface{}) ([]applicationRow, error) {
	rows, err := exe.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var rs []applicationRow
	if err = sqlx.StructScan(rows, &rs); err != nil {
		return nil, err
	}
	return rs, nil
}

func (repo applicationRepository) args(app application.Application) []interface{} {
	return []interface{}{
		app.ID,
		app.ApplicantID,
		app.Status,
		app.Step,
		null.NewString(app.FullName, app.FullName != ""),
		null.NewString(app.Phone, app.Phone != ""),
		null.NewString(app.City, app.City != ""),
		null.NewString(app.Bio, app.Bio != ""),
		pq.StringArray(app.Subjects),
		pq.StringArray(app.Levels),
		null.NewString(app.Qualifications, app.Qualifications != ""),
		app.YearsExperience,
		app.HoursPerWeek,
		pq.StringArray(app.Availability),
		app.HourlyRateCents,
		null.NewString(app.ReviewerID, app.ReviewerID != ""),
		null.NewString(app.ReviewNote, app.ReviewNote != ""),
		null.NewTime(app.SubmittedAt.UTC(), !app.SubmittedAt.IsZero()),
		null.NewTime(app.DecidedAt.UTC(), !app.DecidedAt.IsZero()),
		null.NewTime(app.CreatedAt.UTC(), !app.CreatedAt.IsZero()),
		null.NewTime(app.UpdatedAt.UTC(), !app.UpdatedAt.IsZero()),
	}
}

func (repo applicationRepository) CreateApplication(ctx context.Context, app application.Application, exec ...core.DBExecutor) (application.Application, error) {
	if app.ID == "" {
		app.ID = uuid.New().String()
	}
	q := `
		INSERT INTO application (` + applicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`
	if _, err := repo.getExec(exec).ExecContext(ctx, q, repo.args(app)...); err != nil {
		return application.Application{}, errors.Wrap(err, "inserting application")
	}
	return app, nil
}

func (repo applicationRepository) QueryApplications(ctx context.Context, filter *application.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]application.Application, error) {
	q := `SELECT ` + applicationColumns + ` FROM application`
	var conds []string
	var args []interface{}

	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			conds = append(conds, `(full_name ILIKE ? OR city ILIKE ?
				OR EXISTS (SELECT 1 FROM UNNEST(subjects) subject WHERE subject ILIKE ?))`)
			args = append(args, val, val, val)
		}
		if len(filter.Statuses) > 0 {
			conds = append(conds, `status IN (?)`)
			args = append(args, filter.Statuses)
		}
		if len(filter.Subjects) > 0 {
			conds = append(conds, `subjects && ?`)
			args = append(args, pq.StringArray(filter.Subjects))
		}
		if !filter.CreatedFrom.IsZero() {
			conds = append(conds, `created_at >= ?`)
			args = append(args, filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			conds = append(conds, `created_at <= ?`)
			args = append(args, filter.CreatedTo.UTC())
		}
	}

	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	if ordering != nil {
		orderList := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			orderList = append(orderList, ord.String())
		}
		q += " ORDER BY " + strings.Join(orderList, ", ")
	}

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying applications")
	}
	q = sqlx.Rebind(sqlx.DOLLAR, q)

	rs, err := repo.selectApplications(ctx, repo.getExec(exec), q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying applications")
	}
	apps := make([]application.Application, 0, len(rs))
	for _, r := range rs {
		apps = append(apps, r.unpack())
	}
	return apps, nil
}

func (repo applicationRepository) GetApplication(ctx context.Context, filter application.GetFilter, exec ...core.DBExecutor) (application.Application, error) {
	q := `SELECT ` + applicationColumns + ` FROM application WHERE `
	var args []interface{}

	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return application.Application{}, application.ErrNotFound
		}
		q += `id = $1`
		args = append(args, filter.ID)
	case filter.ApplicantID != "":
		// latest application wins when an applicant has decided history
		q += `applicant_id = $1 ORDER BY created_at DESC`
		args = append(args, filter.ApplicantID)
	default:
		return application.Application{}, application.ErrNotFound
	}

	rs, err := repo.selectApplications(ctx, repo.getExec(exec), q+` LIMIT 1`, args...)
	if err != nil {
		return application.Application{}, errors.Wrap(err, "finding application")
	}
	if len(rs) == 0 {
		return application.Application{}, application.ErrNotFound
	}
	return rs[0].unpack(), nil
}

func (repo applicationRepository) UpdateApplication(ctx context.Context, app application.Application, exec ...core.DBExecutor) (application.Application, error) {
	q := `
		UPDATE application SET
			status = $2, step = $3, full_name = $4, phone = $5, city = $6, bio = $7,
			subjects = $8, levels = $9, qualifications = $10, years_experience = $11,
			hours_per_week = $12, availability = $13, hourly_rate_cents = $14,
			reviewer_id = $15, review_note = $16, submitted_at = $17, decided_at = $18,
			updated_at = $19
		WHERE id = $1`
	res, err := repo.getExec(exec).ExecContext(ctx, q,
		app.ID,
		app.Status,
		app.Step,
		null.NewString(app.FullName, app.FullName != ""),
		null.NewString(app.Phone, app.Phone != ""),
		null.NewString(app.City, app.City != ""),
		null.NewString(app.Bio, app.Bio != ""),
		pq.StringArray(app.Subjects),
		pq.StringArray(app.Levels),
		null.NewString(app.Qualifications, app.Qualifications != ""),
		app.YearsExperience,
		app.HoursPerWeek,
		pq.StringArray(app.Availability),
		app.HourlyRateCents,
		null.NewString(app.ReviewerID, app.ReviewerID != ""),
		null.NewString(app.ReviewNote, app.ReviewNote != ""),
		null.NewTime(app.SubmittedAt.UTC(), !app.SubmittedAt.IsZero()),
		null.NewTime(app.DecidedAt.UTC(), !app.DecidedAt.IsZero()),
		null.NewTime(app.UpdatedAt.UTC(), !app.UpdatedAt.IsZero()),
	)
	if err != nil {
		return application.Application{}, errors.Wrap(err, "updating application")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return application.Application{}, application.ErrNotFound
	}
	return app, nil
}

// UpsertApplicationDraft inserts the draft or, on an ID conflict, overwrites the
// form fields of the existing row. Review fields and timestamps other than
// updated_at are left untouched so a concurrent reviewer's work cannot be lost.
func (repo applicationRepository) UpsertApplicationDraft(ctx context.Context, app application.Application, exec ...core.DBExecutor) error {
	if app.CreatedAt.IsZero() {
		app.CreatedAt = app.UpdatedAt // insert path; conflicts keep the original
	}
	q := `
		INSERT INTO application (` + applicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (id) DO UPDATE SET
			step = EXCLUDED.step,
			full_name = EXCLUDED.full_name,
			phone = EXCLUDED.phone,
			city = EXCLUDED.city,
			bio = EXCLUDED.bio,
			subjects = EXCLUDED.subjects,
			levels = EXCLUDED.levels,
			qualifications = EXCLUDED.qualifications,
			years_experience = EXCLUDED.years_experience,
			hours_per_week = EXCLUDED.hours_per_week,
			availability = EXCLUDED.availability,
			hourly_rate_cents = EXCLUDED.hourly_rate_cents,
			updated_at = EXCLUDED.updated_at
		WHERE application.status = 'draft' AND application.applicant_id = EXCLUDED.applicant_id`
	if _, err := repo.getExec(exec).ExecContext(ctx, q, repo.args(app)...); err != nil {
		return errors.Wrap(err, "upserting application draft")
	}
	return nil
}
