package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/multiplier-synth/multiplier-api/internal/access"
	"github.com/multiplier-synth/multiplier-api/internal/account"
	"github.com/multiplier-synth/multiplier-api/internal/apierr"
	"github.com/multiplier-synth/multiplier-api/internal/auth"
	"github.com/multiplier-synth/multiplier-api/internal/records"
)

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	api := s.echo.Group(Prefix)

	// --- Public endpoints (no token) ---
	api.POST("/session", s.handleSession)
	api.GET("/freq-arrays", s.handleListFreqArrays)
	api.GET("/freq-arrays/:id", s.handleFreqArraysByUser)
	api.GET("/index-arrays/:id", s.handleIndexArraysByUser)
	api.GET("/presets/:id", s.handlePresetsByUser)

	// --- Session token required ---
	api.GET("/login-status", s.handleLoginStatus, s.requireNonce)
	api.POST("/freq-arrays", s.handleUpsertFreqArray, s.requireNonce)
	api.DELETE("/freq-arrays/delete/:id", s.handleDeleteFreqArray, s.requireNonce)
	api.POST("/index-arrays", s.handleCreateIndexArray, s.requireNonce)
	api.DELETE("/index-arrays/delete/:id", s.handleDeleteIndexArray, s.requireNonce)
	api.POST("/presets", s.handleUpsertPreset, s.requireNonce)
	api.DELETE("/presets/delete/:id", s.handleDeletePreset, s.requireNonce)
}

// handleHealth reports liveness and database reachability.
func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if err := s.db.SQL.PingContext(ctx); err != nil {
		s.log.Warn("Health check: database unreachable", "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":  "unavailable",
			"version": Version,
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": Version,
	})
}

// --- Session ---

type sessionRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Nonce   string `json:"nonce"`
	UserID  int64  `json:"user_id"`
	RestURL string `json:"rest_url"`
}

// handleSession issues a session token. Without credentials the token is
// anonymous.
func (s *Server) handleSession(c echo.Context) error {
	var req sessionRequest
	if err := c.Bind(&req); err != nil {
		return apierr.New(http.StatusBadRequest, apierr.CodeInvalidJSON, "Invalid JSON body", err)
	}

	var userID int64
	if strings.TrimSpace(req.Login) != "" {
		u, err := s.accounts.VerifyPassword(c.Request().Context(), req.Login, req.Password)
		switch {
		case errors.Is(err, account.ErrNotFound), errors.Is(err, account.ErrInvalidPassword):
			return apierr.New(http.StatusUnauthorized, apierr.CodeInvalidCredentials, "Invalid login or password", nil)
		case err != nil:
			return apierr.Internal("Could not verify credentials", err)
		}
		userID = u.ID
	}

	tok, err := s.nonces.Issue(userID)
	if err != nil {
		return apierr.Internal("Could not issue session", err)
	}

	c.Response().Header().Set(auth.Header, tok)
	return c.JSON(http.StatusOK, sessionResponse{
		Nonce:   tok,
		UserID:  userID,
		RestURL: s.restURL(c),
	})
}

// restURL is the configured API root, or one derived from the request.
func (s *Server) restURL(c echo.Context) string {
	if s.cfg.RestURL != "" {
		return strings.TrimRight(s.cfg.RestURL, "/")
	}
	return c.Scheme() + "://" + c.Request().Host + Prefix
}

// --- Login status ---

func (s *Server) handleLoginStatus(c echo.Context) error {
	ctx := c.Request().Context()
	caller, err := s.caller(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.access.Status(ctx, caller))
}

// caller resolves the session to a known user. A token that outlived its
// user counts as anonymous.
func (s *Server) caller(c echo.Context) (access.Caller, error) {
	sess := getAuth(c).Session
	if !sess.LoggedIn() {
		return access.Caller{}, nil
	}
	u, err := s.accounts.Get(c.Request().Context(), sess.UserID)
	switch {
	case errors.Is(err, account.ErrNotFound):
		return access.Caller{}, nil
	case err != nil:
		return access.Caller{}, apierr.Internal("Could not load user", err)
	}
	return access.Caller{UserID: u.ID, LoggedIn: true, IsAdmin: u.IsAdmin}, nil
}

// --- Frequency arrays ---

func (s *Server) handleListFreqArrays(c echo.Context) error {
	list, err := s.records.FreqArrays.ListAll(c.Request().Context())
	if err != nil {
		return apierr.Internal("Could not load frequency arrays", err)
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleFreqArraysByUser(c echo.Context) error {
	userID, err := pathID(c)
	if err != nil {
		return err
	}
	list, err := s.records.FreqArrays.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return apierr.Internal("Could not load frequency arrays", err)
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleUpsertFreqArray(c echo.Context) error {
	var in records.FreqArrayInput
	if err := c.Bind(&in); err != nil {
		return apierr.New(http.StatusBadRequest, apierr.CodeInvalidJSON, "Invalid JSON body", err)
	}
	res, err := s.records.FreqArrays.Upsert(c.Request().Context(), in, getAuth(c).Session.UserID)
	if err != nil {
		return writeError(err, "Could not insert frequency array")
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleDeleteFreqArray(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	caller, err := s.caller(c)
	if err != nil {
		return err
	}
	res, err := s.records.FreqArrays.Delete(c.Request().Context(), id, caller.UserID)
	if err != nil {
		return deleteError(c, err, "Could not delete frequency array")
	}
	return c.JSON(http.StatusOK, res)
}

// --- Index arrays ---

func (s *Server) handleIndexArraysByUser(c echo.Context) error {
	userID, err := pathID(c)
	if err != nil {
		return err
	}
	list, err := s.records.IndexArrays.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return apierr.Internal("Could not load index arrays", err)
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleCreateIndexArray(c echo.Context) error {
	var in records.IndexArrayInput
	if err := c.Bind(&in); err != nil {
		return apierr.New(http.StatusBadRequest, apierr.CodeInvalidJSON, "Invalid JSON body", err)
	}
	res, err := s.records.IndexArrays.Create(c.Request().Context(), in, getAuth(c).Session.UserID)
	if err != nil {
		return writeError(err, "Could not insert index array")
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleDeleteIndexArray(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	caller, err := s.caller(c)
	if err != nil {
		return err
	}
	res, err := s.records.IndexArrays.Delete(c.Request().Context(), id, caller.UserID)
	if err != nil {
		return deleteError(c, err, "Could not delete index array")
	}
	return c.JSON(http.StatusOK, res)
}

// --- Presets ---

func (s *Server) handlePresetsByUser(c echo.Context) error {
	userID, err := pathID(c)
	if err != nil {
		return err
	}
	list, err := s.records.Presets.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return apierr.Internal("Could not load presets", err)
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleUpsertPreset(c echo.Context) error {
	var in records.PresetInput
	if err := c.Bind(&in); err != nil {
		return apierr.New(http.StatusBadRequest, apierr.CodeInvalidJSON, "Invalid JSON body", err)
	}
	res, err := s.records.Presets.Upsert(c.Request().Context(), in, getAuth(c).Session.UserID)
	if err != nil {
		return writeError(err, "Could not insert preset")
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleDeletePreset(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	caller, err := s.caller(c)
	if err != nil {
		return err
	}
	res, err := s.records.Presets.Delete(c.Request().Context(), id, caller.UserID)
	if err != nil {
		return deleteError(c, err, "Could not delete preset")
	}
	return c.JSON(http.StatusOK, res)
}

// --- Helpers ---

// pathID parses the numeric :id segment. Anything else does not match a
// route.
func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 0 {
		return 0, apierr.New(http.StatusNotFound, apierr.CodeNotFound,
			"No route was found matching the URL and request method", nil)
	}
	return id, nil
}

// writeError maps a record store write error to its API error.
func writeError(err error, insertMsg string) error {
	var ve *records.ValidationError
	switch {
	case errors.As(err, &ve):
		return apierr.MissingData(ve.Message)
	case errors.Is(err, records.ErrWriteFailed):
		return apierr.InsertFailed(insertMsg, err)
	}
	return apierr.Internal("Internal server error", err)
}

// deleteError maps a delete error. A caller without a login gets a plain
// 200 the front end checks for.
func deleteError(c echo.Context, err error, msg string) error {
	if errors.Is(err, records.ErrNotLoggedIn) {
		return c.JSON(http.StatusOK, map[string]bool{"user_logged_in": false})
	}
	return apierr.Internal(msg, err)
}
