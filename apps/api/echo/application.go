package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/walimu/core"
	"github.com/trezcool/walimu/core/application"
	"github.com/trezcool/walimu/core/autosave"
	"github.com/trezcool/walimu/core/document"
	"github.com/trezcool/walimu/core/user"
	"github.com/trezcool/walimu/storage/localfallback"
)

var (
	errAppNotFoundInCtx = errors.New("application object not found in echo.Context")

	applicationOrderableColumns = []string{
		"status", "full_name", "city", "years_experience", "hourly_rate_cents",
		"submitted_at", "decided_at", "created_at", "updated_at",
	}
)

type (
	applicationAPIDeps struct {
		svc       application.Service
		docSvc    document.Service
		usrSvc    user.Service
		autosaves *autosave.Manager
		fallback  *localfallback.Store
		validate  *validator.Validate
	}

	applicationApi struct {
		applicationAPIDeps
	}
)

func registerApplicationAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps applicationAPIDeps) {
	api := applicationApi{applicationAPIDeps: deps}

	ag := g.Group("/applications", jwt)
	ag.POST("", api.create)
	ag.GET("/mine", api.mine)
	ag.GET("", api.query, staffMiddleware())

	// detail endpoints
	dg := ag.Group("/:id", api.ownerOrStaffMiddleware())
	dg.GET("", api.retrieve)
	dg.POST("/submit", api.submit)
	dg.POST("/review", api.startReview, staffMiddleware())
	dg.POST("/decision", api.decide, adminMiddleware())

	// autosave endpoints
	dg.PUT("/draft", api.autosaveDraft)
	dg.GET("/draft", api.recoverDraft)
	dg.GET("/draft/status", api.draftStatus)
	dg.DELETE("/draft/session", api.endDraftSession)

	// document endpoints
	dg.POST("/documents", api.attachDocument)
	dg.GET("/documents", api.listDocuments)
	dg.GET("/documents/:docID/url", api.documentURL)
	dg.DELETE("/documents/:docID", api.removeDocument)
}

// ownerOrStaffMiddleware loads the application into the context for its owner,
// reviewers and admins; everyone else gets a 404.
func (api *applicationApi) ownerOrStaffMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}

			app, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == application.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding application by ID")
			}
			if app.ApplicantID != claims.Subject && !(claims.IsAdmin || claims.IsReviewer) {
				return errHttpNotFound
			}
			ctx.Set("application", app)
			return next(ctx)
		}
	}
}

func (api *applicationApi) contextApplication(ctx echo.Context) (application.Application, error) {
	app, ok := ctx.Get("application").(application.Application)
	if !ok {
		return application.Application{}, errors.Wrap(errAppNotFoundInCtx, "retrieving object from context")
	}
	return app, nil
}

// requireOwner rejects staff acting on another applicant's draft.
func requireOwner(ctx echo.Context, app application.Application) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if app.ApplicantID != claims.Subject {
		return errHttpForbidden
	}
	return nil
}

// Handlers

func (api *applicationApi) create(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	app, err := api.svc.Create(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "creating application")
	}
	return ctx.JSON(http.StatusCreated, app)
}

func (api *applicationApi) mine(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	app, err := api.svc.GetByApplicant(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == application.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding own application")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) query(ctx echo.Context) error {
	filter := new(application.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []application.Application{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx, applicationOrderableColumns...)

	apps, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying applications")
	}
	if apps == nil {
		apps = []application.Application{}
	}
	return ctx.JSON(http.StatusOK, apps)
}

func (api *applicationApi) retrieve(ctx echo.Context) error {
	app, err := api.contextApplication(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, app)
}

// autosaveDraft feeds one form snapshot into the save pipeline. It returns
// immediately: the debounce scheduler decides when the write actually runs.
func (api *applicationApi) autosaveDraft(ctx echo.Context) error {
	app, err := api.contextApplication(ctx)
	if err != nil {
		return err
	}
	if err = requireOwner(ctx, app); err != nil {
		return err
	}
	if !app.IsDraft() {
		return core.NewValidationError(application.ErrNotDraft)
	}

	var snap autosave.Snapshot
	if err = ctx.Bind(&snap); err != nil {
		return errors.Wrap(err, "binding to Snapshot")
	}

	sess := api.autosaves.Session(app.ApplicantID, app.ID)
	sess.Trigger(snap)
	return ctx.JSON(http.StatusAccepted, sess.State())
}

func (api *applicationApi) draftStatus(ctx echo.Context) error {
	app, err := api.contextApplication(ctx)
	if err != nil {
		return err
	}
	if err = requireOwner(ctx, app); err != nil {
		return err
	}
	sess := api.autosaves.Session(app.ApplicantID, app.ID)
	return ctx.JSON(http.StatusOK, sess.State())
}

// recoverDraft returns the freshest copy of the draft: the locally persisted
// fallback when one survived an outage, the stored application otherwise.
// Once the application left draft status the fallback can only hold a stale
// snapshot (a save the repository refused), so it is discarded instead.
func (api *applicationApi) recoverDraft(ctx echo.Context) error {
	app, err := api.contextApplication(ctx)
	if err != nil {
		return err
	}
	if err = requireOwner(ctx, app); err != nil {
		return err
	}

	if !app.IsDraft() {
		if err = api.fallback.Clear(app.ApplicantID, app.ID); err != nil {
			ctx.Logger().Errorf("%+v", errors.Wrap(err, "clearing stale fallback draft"))
		}
	} else if draft, ok, err := api.fallback.Read(app.ApplicantID, app.ID); err == nil && ok {
		return ctx.JSON(http.StatusOK, DraftRecoveryResponse{
			Data:      draft.Data,
			Timestamp: draft.Timestamp,
			Source:    "fallback",
		})
	} else if err != nil {
		ctx.Logger().Errorf("%+v", errors.Wrap(err, "reading fallback draft"))
	}

	return ctx.JSON(http.StatusOK, DraftRecoveryResponse{
		Data:      application.SnapshotFromDraft(app),
		Timestamp: app.UpdatedAt,
		Source:    "remote",
	})
}

// endDraftSession tears down the autosave session, cancelling any pending
// debounced save. Called when the applicant leaves the form.
func (api *applicationApi) endDraftSession(ctx echo.Context) error {
	app, err := api.contextApplication(ctx)
	if err != nil {
		return err
	}
	if err = requireOwner(ctx, app); err != nil {
		return err
	}
	api.autosaves.EndSession(app.ApplicantID, app.ID)
	return ctx.NoContent(http.StatusNoContent)
}

func (api *applicationApi) submit(ctx echo.Context) error {
	app, err := api.contextApplication(ctx)
	if err != nil {
		return err
	}
	if err = requireOwner(ctx, app); err != nil {
		return err
	}

	// a submit is explicit: whatever is debounced must not land afterwards
	api.autosaves.EndSession(app.ApplicantID, app.ID)

	app, err = api.svc.Submit(ctx.Request().Context(), app.ID, app.ApplicantID)
	if err != nil {
		return errors.Wrap(err, "submitting application")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) startReview(ctx echo.Context) error {
	app, err := api.contextApplication(ctx)
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	app, err = api.svc.StartReview(ctx.Request().Context(), app.ID, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "starting review")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) decide(ctx echo.Context) error {
	app, err := api.contextApplication(ctx)
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data application.Decision
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Decision")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	app, err = api.svc.Decide(ctx.Request().Context(), app.ID, claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "deciding application")
	}
	return ctx.JSON(http.StatusOK, app)
}

type DraftRecoveryResponse struct {
	Data      autosave.Snapshot `json:"data"`
	Timestamp time.Time         `json:"timestamp"`
	Source    string            `json:"source"` // fallback | remote
}
