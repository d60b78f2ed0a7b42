package daemon

import (
	"context"
	"errors"
	"flexport/internal/auth"
	"flexport/internal/driver"
	"flexport/internal/logger"
	"flexport/internal/model"
	"flexport/internal/repository"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type Server struct {
	echo    *echo.Echo
	manager *TransferManager
	port    int
	stopCh  chan struct{}
}

func NewServer(manager *TransferManager, tokens *auth.TokenManager, port int) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:    e,
		manager: manager,
		port:    port,
		stopCh:  make(chan struct{}, 1),
	}
	s.registerRoutes(requireToken(tokens))
	return s
}

func (s *Server) registerRoutes(authed echo.MiddlewareFunc) {
	s.echo.GET("/health", s.handleHealth)

	// For the entire daemon
	s.echo.GET("/status", s.handleStatus, authed)
	s.echo.POST("/stop", s.handleStop, authed)

	// Remote browsing and transfer requests
	s.echo.POST("/ftp/list-files", s.handleList(model.KindFTP), authed)
	s.echo.POST("/ftp/download", s.handleDownload(model.KindFTP), authed)
	s.echo.POST("/sftp/list-files", s.handleList(model.KindSFTP), authed)
	s.echo.POST("/sftp/download", s.handleDownload(model.KindSFTP), authed)
	s.echo.POST("/links/list", s.handleListLink, authed)
	s.echo.POST("/links_upload", s.handleLinksUpload, authed)

	// Sessions of the calling owner
	g := s.echo.Group("/sessions")
	g.GET("", s.handleSessions, authed)
	g.DELETE("/:id", s.handleDeleteSession, authed)
	g.POST("/:id/cancel", s.handleCancelSession, authed)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() {
	go func() {
		addr := ":" + strconv.Itoa(s.port)
		logger.Log.Info("daemon server started",
			zap.String("addr", addr))

		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("daemon server error", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	s.manager.StopAll(ctx)
	return s.echo.Shutdown(ctx)
}

func (s *Server) StopCh() <-chan struct{} {
	return s.stopCh
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalid), errors.Is(err, ErrUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, driver.ErrAuth):
		return http.StatusForbidden
	case errors.Is(err, driver.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrFinished):
		return http.StatusConflict
	case errors.Is(err, driver.ErrConnection), errors.Is(err, driver.ErrProtocol):
		return http.StatusBadGateway
	case errors.Is(err, ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(c echo.Context, err error) error {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Log.Error("request failed",
			zap.String("path", c.Path()),
			zap.Error(err))
	}

	return c.JSON(status, map[string]string{"error": err.Error()})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"transfers": s.manager.Snapshots(),
	})
}

func (s *Server) handleStop(c echo.Context) error {
	select {
	case s.stopCh <- struct{}{}:
	default:
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "stopping"})
}

type remoteRequest struct {
	driver.Connection
	Path       string `json:"path"`
	RemotePath string `json:"remote_path"`
	LocalPath  string `json:"local_path"`
}

func (s *Server) handleList(kind model.SessionKind) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req remoteRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		if req.Path == "" {
			req.Path = "/"
		}

		entries, err := s.manager.ListRemote(c.Request().Context(), kind, req.Connection, req.Path)
		if err != nil {
			return fail(c, err)
		}

		return c.JSON(http.StatusOK, map[string]any{"files": entries})
	}
}

func (s *Server) handleDownload(kind model.SessionKind) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req remoteRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid request body")
		}

		ctx := c.Request().Context()
		start := s.manager.StartFTP
		if kind == model.KindSFTP {
			start = s.manager.StartSFTP
		}

		id, err := start(ctx, req.Connection, req.RemotePath, req.LocalPath, ownerOf(c))
		if err != nil {
			return fail(c, err)
		}

		return c.JSON(http.StatusAccepted, map[string]string{"session_id": id})
	}
}

type linkListRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleListLink(c echo.Context) error {
	var req linkListRequest
	if err := c.Bind(&req); err != nil || req.URL == "" {
		return badRequest(c, "url required")
	}

	entries, err := s.manager.ListRemote(c.Request().Context(), model.KindLink, driver.Connection{}, req.URL)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"files": entries})
}

type linksUploadRequest struct {
	Links []string `json:"links"`
	Path  string   `json:"path"`
}

func (s *Server) handleLinksUpload(c echo.Context) error {
	var req linksUploadRequest
	if err := c.Bind(&req); err != nil || req.Path == "" {
		return badRequest(c, "links and path required")
	}

	ids, err := s.manager.StartLinks(c.Request().Context(), req.Links, req.Path, ownerOf(c))
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusAccepted, map[string]any{
		"accepted":    true,
		"session_ids": ids,
	})
}

func (s *Server) handleSessions(c echo.Context) error {
	sessions, err := s.manager.Sessions(c.Request().Context(), ownerOf(c))
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"sessions": sessions})
}

// ownedSession hides sessions of other owners behind a 404.
func (s *Server) ownedSession(c echo.Context) (model.Session, error) {
	session, err := s.manager.Session(c.Request().Context(), c.Param("id"))
	if err != nil {
		return session, err
	}
	if session.Owner != ownerOf(c) {
		return model.Session{}, repository.ErrNotFound
	}

	return session, nil
}

func (s *Server) handleDeleteSession(c echo.Context) error {
	if _, err := s.ownedSession(c); err != nil {
		return fail(c, err)
	}

	if err := s.manager.DeleteSession(c.Request().Context(), c.Param("id")); err != nil {
		return fail(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleCancelSession(c echo.Context) error {
	if _, err := s.ownedSession(c); err != nil {
		return fail(c, err)
	}

	if err := s.manager.CancelSession(c.Request().Context(), c.Param("id")); err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}
