package application

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/walimu/core"
	"github.com/trezcool/walimu/core/autosave"
	"github.com/trezcool/walimu/core/user"
)

var (
	// errors
	ErrNotFound      = errors.New("application not found")
	ErrNotDraft      = errors.New("application is no longer a draft")
	errBadTransition = errors.New("this action is not allowed in the application's current status")
)

type (
	Repository interface {
		CreateApplication(ctx context.Context, app Application, exec ...core.DBExecutor) (Application, error)
		// QueryApplications applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of Application.FullName or Application.City.
		QueryApplications(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Application, error)
		GetApplication(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Application, error)
		UpdateApplication(ctx context.Context, app Application, exec ...core.DBExecutor) (Application, error)
		// UpsertApplicationDraft inserts the draft or overwrites its form fields
		// if a row with the same ID already exists.
		UpsertApplicationDraft(ctx context.Context, app Application, exec ...core.DBExecutor) error
	}

	Service interface {
		Create(ctx context.Context, applicantID string) (Application, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Application, error)
		GetByID(ctx context.Context, id string) (Application, error)
		GetByApplicant(ctx context.Context, applicantID string) (Application, error)
		// UpsertDraft persists an autosave snapshot. It refuses to touch an
		// application that is past the draft stage or owned by someone else.
		UpsertDraft(ctx context.Context, userID, applicationID string, snap autosave.Snapshot) error
		Submit(ctx context.Context, id, applicantID string) (Application, error)
		StartReview(ctx context.Context, id, reviewerID string) (Application, error)
		Decide(ctx context.Context, id, reviewerID string, d Decision) (Application, error)
	}

	service struct {
		db      core.DB
		repo    Repository
		usrSvc  user.Service
		mailSvc core.EmailService
		conf    *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, usrSvc user.Service, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{
		db:      db,
		repo:    repo,
		usrSvc:  usrSvc,
		mailSvc: mailSvc,
		conf:    conf,
	}
}

// Create starts a new draft for the applicant. An applicant can only have one
// undecided application at a time; if one exists it is returned as-is.
func (svc *service) Create(ctx context.Context, applicantID string) (Application, error) {
	if app, err := svc.repo.GetApplication(ctx, GetFilter{ApplicantID: applicantID}); err == nil {
		if !app.IsDecided() {
			return app, nil
		}
	} else if err != ErrNotFound {
		return Application{}, err
	}

	now := time.Now().UTC()
	app := Application{
		ID:           uuid.New().String(),
		ApplicantID:  applicantID,
		Status:       StatusDraft,
		HoursPerWeek: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return svc.repo.CreateApplication(ctx, app)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Application, error) {
	return svc.repo.QueryApplications(ctx, filter, ordering)
}

func (svc *service) GetByID(ctx context.Context, id string) (Application, error) {
	return svc.repo.GetApplication(ctx, GetFilter{ID: id})
}

func (svc *service) GetByApplicant(ctx context.Context, applicantID string) (Application, error) {
	return svc.repo.GetApplication(ctx, GetFilter{ApplicantID: applicantID})
}

func (svc *service) UpsertDraft(ctx context.Context, userID, applicationID string, snap autosave.Snapshot) error {
	existing, err := svc.repo.GetApplication(ctx, GetFilter{ID: applicationID})
	if err == nil {
		if existing.ApplicantID != userID {
			return ErrNotFound
		}
		if !existing.IsDraft() {
			return ErrNotDraft
		}
	} else if err != ErrNotFound {
		return err
	}

	draft := DraftFromSnapshot(userID, applicationID, snap)
	draft.UpdatedAt = time.Now().UTC()
	return svc.repo.UpsertApplicationDraft(ctx, draft)
}

func (svc *service) Submit(ctx context.Context, id, applicantID string) (Application, error) {
	app, err := svc.repo.GetApplication(ctx, GetFilter{ID: id})
	if err != nil {
		return Application{}, err
	}
	if app.ApplicantID != applicantID {
		return Application{}, ErrNotFound
	}
	if !app.CanTransitionTo(StatusSubmitted) {
		return Application{}, core.NewValidationError(errBadTransition)
	}
	if missing := app.MissingFields(); len(missing) > 0 {
		fes := make([]core.FieldError, 0, len(missing))
		for _, f := range missing {
			fes = append(fes, core.FieldError{Field: f, Error: "this field is required"})
		}
		return Application{}, core.NewValidationError(errors.New("application is incomplete"), fes...)
	}

	now := time.Now().UTC()
	app.Status = StatusSubmitted
	app.SubmittedAt = now
	app.UpdatedAt = now
	app, err = svc.repo.UpdateApplication(ctx, app)
	if err != nil {
		return Application{}, err
	}
	svc.sendSubmittedMail(ctx, app)
	return app, nil
}

func (svc *service) StartReview(ctx context.Context, id, reviewerID string) (Application, error) {
	app, err := svc.repo.GetApplication(ctx, GetFilter{ID: id})
	if err != nil {
		return Application{}, err
	}
	if !app.CanTransitionTo(StatusUnderReview) {
		return Application{}, core.NewValidationError(errBadTransition)
	}
	app.Status = StatusUnderReview
	app.ReviewerID = reviewerID
	app.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateApplication(ctx, app)
}

func (svc *service) Decide(ctx context.Context, id, reviewerID string, d Decision) (Application, error) {
	app, err := svc.repo.GetApplication(ctx, GetFilter{ID: id})
	if err != nil {
		return Application{}, err
	}
	status := StatusRejected
	if d.Approve != nil && *d.Approve {
		status = StatusApproved
	}
	if !app.CanTransitionTo(status) {
		return Application{}, core.NewValidationError(errBadTransition)
	}

	now := time.Now().UTC()
	app.Status = status
	app.ReviewerID = reviewerID
	app.ReviewNote = d.Note
	app.DecidedAt = now
	app.UpdatedAt = now
	app, err = svc.repo.UpdateApplication(ctx, app)
	if err != nil {
		return Application{}, err
	}
	svc.sendDecisionMail(ctx, app)
	return app, nil
}

func (svc *service) sendSubmittedMail(ctx context.Context, app Application) {
	applicant, err := svc.usrSvc.GetByID(ctx, app.ApplicantID)
	if err != nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: applicant.Name, Address: applicant.Email}},
		Subject:      "We received your application",
		TemplateName: "application-submitted",
		TemplateData: struct {
			User        user.User
			Application Application
		}{applicant, app},
	})
}

func (svc *service) sendDecisionMail(ctx context.Context, app Application) {
	applicant, err := svc.usrSvc.GetByID(ctx, app.ApplicantID)
	if err != nil {
		return
	}
	verdict := "rejected"
	if app.Status == StatusApproved {
		verdict = "approved"
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: applicant.Name, Address: applicant.Email}},
		Subject:      fmt.Sprintf("Your application has been %s", verdict),
		TemplateName: "application-decision",
		TemplateData: struct {
			User        user.User
			Application Application
			Verdict     string
		}{applicant, app, strings.Title(verdict)},
	})
}

// remoteClient adapts the service to the autosave pipeline's persistence hook.
type remoteClient struct {
	svc Service
}

var _ autosave.RemoteClient = (*remoteClient)(nil)

func NewRemoteClient(svc Service) autosave.RemoteClient {
	return &remoteClient{svc: svc}
}

func (rc *remoteClient) Upsert(ctx context.Context, userID, applicationID string, snap autosave.Snapshot) error {
	return rc.svc.UpsertDraft(ctx, userID, applicationID, snap)
}
