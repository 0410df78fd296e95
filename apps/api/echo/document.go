package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/walimu/core/document"
)

// maxDocumentSize caps a single upload.
const maxDocumentSize = 10 << 20 // 10 MiB

func (api *applicationApi) attachDocument(ctx echo.Context) error {
	app, err := api.contextApplication(ctx)
	if err != nil {
		return err
	}
	if err = requireOwner(ctx, app); err != nil {
		return err
	}

	fileHdr, err := ctx.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "a file is required")
	}
	if fileHdr.Size > maxDocumentSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file too large")
	}
	kind := ctx.FormValue("kind")

	file, err := fileHdr.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer func() { _ = file.Close() }()

	doc, err := api.docSvc.Attach(
		ctx.Request().Context(),
		app.ID,
		kind,
		fileHdr.Filename,
		fileHdr.Header.Get(echo.HeaderContentType),
		fileHdr.Size,
		file,
	)
	if err != nil {
		return errors.Wrap(err, "attaching document")
	}
	return ctx.JSON(http.StatusCreated, doc)
}

func (api *applicationApi) listDocuments(ctx echo.Context) error {
	app, err := api.contextApplication(ctx)
	if err != nil {
		return err
	}

	docs, err := api.docSvc.List(ctx.Request().Context(), app.ID)
	if err != nil {
		return errors.Wrap(err, "listing documents")
	}
	if docs == nil {
		docs = []document.Document{}
	}
	return ctx.JSON(http.StatusOK, docs)
}

func (api *applicationApi) documentURL(ctx echo.Context) error {
	app, err := api.contextApplication(ctx)
	if err != nil {
		return err
	}

	doc, err := api.docSvc.GetByID(ctx.Request().Context(), ctx.Param("docID"))
	if err != nil || doc.ApplicationID != app.ID {
		return errHttpNotFound
	}

	url, err := api.docSvc.DownloadURL(ctx.Request().Context(), doc.ID)
	if err != nil {
		return errors.Wrap(err, "presigning document URL")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"url": url})
}

func (api *applicationApi) removeDocument(ctx echo.Context) error {
	app, err := api.contextApplication(ctx)
	if err != nil {
		return err
	}
	if err = requireOwner(ctx, app); err != nil {
		return err
	}

	doc, err := api.docSvc.GetByID(ctx.Request().Context(), ctx.Param("docID"))
	if err != nil || doc.ApplicationID != app.ID {
		return errHttpNotFound
	}

	if err = api.docSvc.Remove(ctx.Request().Context(), doc.ID); err != nil {
		return errors.Wrap(err, "removing document")
	}
	return ctx.NoContent(http.StatusNoContent)
}
