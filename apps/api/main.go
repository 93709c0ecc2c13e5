package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/schooldriver/schooldriver/apps/api/echo"
	"github.com/schooldriver/schooldriver/core"
	"github.com/schooldriver/schooldriver/core/academic"
	"github.com/schooldriver/schooldriver/core/notification"
	"github.com/schooldriver/schooldriver/core/parent"
	"github.com/schooldriver/schooldriver/core/ratelimit"
	"github.com/schooldriver/schooldriver/core/user"
	cachesvc "github.com/schooldriver/schooldriver/services/cache"
	emailsvc "github.com/schooldriver/schooldriver/services/email"
	logsvc "github.com/schooldriver/schooldriver/services/logger"
	pushsvc "github.com/schooldriver/schooldriver/services/push"
	"github.com/schooldriver/schooldriver/storage/database"
	sqlxrepos "github.com/schooldriver/schooldriver/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(os.Stdout, "api", conf)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(os.Stdout, "db", conf)
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

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewUniversalTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	user.LoadCommonPasswords(conf, logger)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	pushSvc := newPushService(conf, logger)

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db))
	acadSvc := academic.NewService(db, sqlxrepos.NewAcademicRepository(db), validate, logger)
	notifSvc := notification.NewService(sqlxrepos.NewDeviceRepository(db), pushSvc, validate, logger)
	parentSvc := parent.NewService(conf, db, sqlxrepos.NewCodeRepository(db), acadSvc, usrSvc, notifSvc, mailSvc, validate, logger)

	limiter := ratelimit.NewLimiter(newRateLimitStore(conf, logger), logger, ratelimit.RulesFromConfig(conf.RateLimit)...)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Jobs

	jobs := newScheduler(logger)
	if err = jobs.register(conf.Jobs, parentSvc); err != nil {
		logger.Fatal(fmt.Sprintf("setting up jobs: %v", err), err)
	}
	jobs.start()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:            conf,
			Logger:          logger,
			UserSvc:         usrSvc,
			AcademicSvc:     acadSvc,
			ParentSvc:       parentSvc,
			NotificationSvc: notifSvc,
			Limiter:         limiter,
			Validate:        validate,
			Translator:      translator,
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

		jobs.stop(ctx)

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB, "postgres"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// newPushService falls back to logging notifications when firebase is not configured.
func newPushService(conf *core.Config, logger core.Logger) core.PushService {
	if !conf.Debug {
		svc, err := pushsvc.NewFCMService(context.Background(), conf)
		if err == nil {
			return svc
		}
		logger.Warn(fmt.Sprintf("push notifications disabled: %v", err))
	}
	return pushsvc.NewConsoleService(logger)
}

// newRateLimitStore shares the counters through redis when it is configured.
func newRateLimitStore(conf *core.Config, logger core.Logger) ratelimit.Store {
	client := cachesvc.NewRedisClient(conf)
	if client == nil {
		logger.Info("rate limiting with in-memory counters")
		return ratelimit.NewMemoryStore()
	}
	return cachesvc.NewRateLimitStore(client)
}
