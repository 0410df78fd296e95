package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/trezcool/walimu/apps/api/echo"
	"github.com/trezcool/walimu/core"
	"github.com/trezcool/walimu/core/application"
	"github.com/trezcool/walimu/core/autosave"
	"github.com/trezcool/walimu/core/document"
	"github.com/trezcool/walimu/core/user"
	emailsvc "github.com/trezcool/walimu/services/email"
	logsvc "github.com/trezcool/walimu/services/logger"
	"github.com/trezcool/walimu/services/ratelimit"
	"github.com/trezcool/walimu/storage/database"
	"github.com/trezcool/walimu/storage/localfallback"
	"github.com/trezcool/walimu/storage/object"
)

const connectivityProbeInterval = 5 * time.Second

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(logger, conf)
	}
	usrSvc := user.NewService(db, database.NewUserRepository(db), mailSvc, conf)
	appSvc := application.NewService(db, database.NewApplicationRepository(db), usrSvc, mailSvc, conf)

	blobs, err := object.NewMinioBlobs(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up object storage: %v", err), err)
	}
	docSvc := document.NewService(db, database.NewDocumentRepository(db), blobs)

	// set up the autosave pipeline: drafts land in the DB when it is reachable,
	// in the local fallback store otherwise.
	fallback, err := localfallback.Open(filepath.Join(conf.WorkDir, "autosave.db"))
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening fallback store: %v", err), err)
	}
	defer func() { _ = fallback.Close() }()

	monitor := autosave.NewMonitor(true)
	go probeConnectivity(db, monitor, dbLogger)

	autosaves := autosave.NewManager(
		application.NewRemoteClient(appSvc),
		fallback,
		monitor,
		logger,
		autosave.Config{
			DebounceDelay:    conf.Autosave.DebounceDelay,
			ThrottleInterval: conf.Autosave.ThrottleInterval,
			StatusResetDelay: conf.Autosave.StatusResetDelay,
			SessionTTL:       conf.Autosave.SessionTTL,
		},
	)
	defer autosaves.Close()

	var limiter ratelimit.Limiter
	if conf.Debug {
		limiter = ratelimit.NewNoopLimiter()
	} else {
		limiter = ratelimit.NewRedisLimiter(10, time.Minute, logger, conf)
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	user.LoadCommonPasswords(conf, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err = http.ListenAndServe(conf.Server.DebugAddr, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:           conf,
			Logger:         logger,
			UserSvc:        usrSvc,
			ApplicationSvc: appSvc,
			DocumentSvc:    docSvc,
			Autosaves:      autosaves,
			Fallback:       fallback,
			Limiter:        limiter,
			Validate:       validate,
			Translator:     translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// probeConnectivity pings the DB on an interval and feeds the result to the
// connectivity monitor; sessions react to the offline/online transitions.
func probeConnectivity(db *sql.DB, monitor *autosave.Monitor, logger core.Logger) {
	ticker := time.NewTicker(connectivityProbeInterval)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), connectivityProbeInterval/2)
		err := db.PingContext(ctx)
		cancel()

		if err != nil && monitor.Online() {
			logger.Warn(fmt.Sprintf("database unreachable, switching to fallback persistence: %v", err))
		}
		monitor.Set(err == nil)
	}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
