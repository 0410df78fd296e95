package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/walimu/core"
	"github.com/trezcool/walimu/core/application"
	"github.com/trezcool/walimu/core/autosave"
	"github.com/trezcool/walimu/core/document"
	"github.com/trezcool/walimu/core/user"
	"github.com/trezcool/walimu/services/ratelimit"
	"github.com/trezcool/walimu/storage/localfallback"
)

type (
	ServerDeps struct {
		Conf   *core.Config
		Logger core.Logger

		UserSvc        user.Service
		ApplicationSvc application.Service
		DocumentSvc    document.Service
		Autosaves      *autosave.Manager
		Fallback       *localfallback.Store
		Limiter        ratelimit.Limiter

		Validate   *validator.Validate
		Translator ut.Translator

		DisableReqLogs bool
	}

	Server interface {
		http.Handler
		Start()
		Shutdown(context.Context) error
		Close() error
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
	}

	server struct {
		deps     ServerDeps
		app      *echo.Echo
		errs     chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		deps:     deps,
		app:      echo.New(),
		errs:     make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug
	s.app.HideBanner = true

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := ConfigureAuth(conf.AppName, conf.SecretKey, conf.Server.JWTExpirationDelta, conf.Server.JWTRefreshExpirationDelta)

	registerUserAPI(v1, jwt, s.deps.UserSvc, s.deps.Limiter, s.deps.Logger, s.deps.Validate, s.deps.Translator)
	registerApplicationAPI(v1, jwt, applicationAPIDeps{
		svc:       s.deps.ApplicationSvc,
		docSvc:    s.deps.DocumentSvc,
		usrSvc:    s.deps.UserSvc,
		autosaves: s.deps.Autosaves,
		fallback:  s.deps.Fallback,
		validate:  s.deps.Validate,
	})
}

func (s *server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	if err := s.app.Start(s.deps.Conf.Server.Addr); err != nil && err != http.ErrServerClosed {
		s.errs <- err
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	if s.deps.Autosaves != nil {
		s.deps.Autosaves.Close()
	}
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) Errors() <-chan error { return s.errs }

func (s *server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *server) signalShutdown() {
	s.shutdown <- syscall.SIGTERM
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Walimu API!")
}
