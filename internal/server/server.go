// Package server provides the HTTP API for the Multiplier front end,
// built on Echo v4. Every route lives under /multiplier-api/v1 except
// the health check.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/multiplier-synth/multiplier-api/internal/access"
	"github.com/multiplier-synth/multiplier-api/internal/account"
	"github.com/multiplier-synth/multiplier-api/internal/apierr"
	"github.com/multiplier-synth/multiplier-api/internal/auth"
	"github.com/multiplier-synth/multiplier-api/internal/config"
	"github.com/multiplier-synth/multiplier-api/internal/database"
	"github.com/multiplier-synth/multiplier-api/internal/logger"
	"github.com/multiplier-synth/multiplier-api/internal/records"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Prefix is the route namespace the front end calls.
const Prefix = "/multiplier-api/v1"

// Server wraps the Echo instance and application dependencies.
type Server struct {
	echo     *echo.Echo
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	accounts *account.Store
	records  *records.Records
	access   *access.Classifier
	nonces   *auth.NonceManager
}

// New creates a configured Echo server with all routes registered.
func New(cfg *config.Config, log *logger.Logger, db *database.DB, accounts *account.Store, recs *records.Records, classifier *access.Classifier, nonces *auth.NonceManager) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		cfg:      cfg,
		log:      log.With("service", "HTTP"),
		db:       db,
		accounts: accounts,
		records:  recs,
		access:   classifier,
		nonces:   nonces,
	}

	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"requestId", v.RequestID,
			)
			return nil
		},
	}))
	if len(cfg.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:  cfg.AllowedOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders:  []string{echo.HeaderContentType, auth.Header},
			ExposeHeaders: []string{auth.Header},
		}))
	}

	s.registerRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// authContext holds the session carried by the request's token.
type authContext struct {
	Session auth.Session
}

const authContextKey = "auth"

// getAuth retrieves the auth context set by middleware. Routes without
// the middleware see an anonymous session.
func getAuth(c echo.Context) authContext {
	if ac, ok := c.Get(authContextKey).(*authContext); ok {
		return *ac
	}
	return authContext{}
}

// requireNonce rejects requests without a valid session token before any
// handler logic runs.
func (s *Server) requireNonce(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sess, err := s.nonces.Validate(c.Request().Header.Get(auth.Header))
		if err != nil {
			return apierr.Forbidden("Invalid or missing nonce")
		}
		c.Set(authContextKey, &authContext{Session: sess})
		return next(c)
	}
}

// handleError renders every error in the structured body.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var ae *apierr.Error
	var he *echo.HTTPError
	switch {
	case errors.As(err, &ae):
	case errors.As(err, &he):
		ae = fromHTTPError(he)
	default:
		ae = apierr.Internal("Internal server error", err)
	}

	if ae.Status >= http.StatusInternalServerError {
		s.log.Error("Request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"code", ae.Code,
			"error", err,
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(ae.Status)
	} else {
		err = c.JSON(ae.Status, ae.Body())
	}
	if err != nil {
		s.log.Warn("Writing error response failed", "error", err)
	}
}

func fromHTTPError(he *echo.HTTPError) *apierr.Error {
	switch he.Code {
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return apierr.New(he.Code, apierr.CodeNotFound, "No route was found matching the URL and request method", he)
	case http.StatusUnauthorized, http.StatusForbidden:
		return apierr.Forbidden("Invalid or missing nonce")
	case http.StatusBadRequest, http.StatusUnsupportedMediaType:
		return apierr.New(he.Code, apierr.CodeInvalidJSON, "Invalid JSON body", he)
	}
	msg := http.StatusText(he.Code)
	if m, ok := he.Message.(string); ok && m != "" {
		msg = m
	}
	return apierr.New(he.Code, apierr.CodeInternal, msg, he)
}

// Start begins listening for HTTP requests. It blocks until the context
// is cancelled, then performs a graceful shutdown allowing in-flight
// requests to complete.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Listening", "addr", s.cfg.ListenAddr)
		if err := s.echo.Start(s.cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}
