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

	"github.com/schooldriver/schooldriver/core"
	"github.com/schooldriver/schooldriver/core/academic"
	"github.com/schooldriver/schooldriver/core/gpa"
	"github.com/schooldriver/schooldriver/core/notification"
	"github.com/schooldriver/schooldriver/core/parent"
	"github.com/schooldriver/schooldriver/core/ratelimit"
	"github.com/schooldriver/schooldriver/core/user"
)

type (
	ServerDeps struct {
		Conf            *core.Config
		Logger          core.Logger
		UserSvc         user.ServiceInterface
		AcademicSvc     *academic.Service
		ParentSvc       *parent.Service
		NotificationSvc *notification.Service
		Limiter         *ratelimit.Limiter
		Validate        *validator.Validate
		Translator      *ut.UniversalTranslator
		DisableReqLogs  bool
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Debug = conf.Debug
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(securityHeadersMiddleware(conf.Debug))
	s.app.Use(auditMiddleware(s.deps.Logger))
	if conf.RateLimit.Enabled && !conf.Debug && s.deps.Limiter != nil {
		s.app.Use(rateLimitMiddleware(s.deps.Limiter, s.deps.Logger))
	}
	s.app.Use(languageMiddleware)

	s.app.GET("/", home(conf))

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(conf))

	v1.GET("/grade-scale", gradeScale)
	registerUserAPI(v1, jwt, s.deps)
	registerStudentAPI(v1, jwt, s.deps)
	registerParentAPI(v1, jwt, s.deps)
	registerNotificationAPI(v1, jwt, s.deps)
}

// Start listens until the server is shut down. Failures are sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(conf *core.Config) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		return ctx.String(http.StatusOK, "Welcome to "+conf.AppName+" API!")
	}
}

func gradeScale(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, gpa.Scale())
}
