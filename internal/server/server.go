package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"relaysync/internal/config"
	"relaysync/internal/logger"
	"relaysync/internal/model"
	"relaysync/internal/receiver"
)

const realm = "relaysync"

// Server is the receiving end of a relay. POST applies relayed actions, GET
// and HEAD browse the mirrored tree.
type Server struct {
	echo     *echo.Echo
	addr     string
	resolver *receiver.Resolver
	applier  *receiver.Applier
}

func New(cfg config.ServerConfig, fs afero.Fs) (*Server, error) {
	resolver, err := receiver.NewResolver(fs, cfg.Root)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.BasicAuthWithConfig(middleware.BasicAuthConfig{
		Realm:     realm,
		Validator: credentials(cfg.Username, cfg.Password),
	}))

	s := &Server{
		echo:     e,
		addr:     cfg.Addr,
		resolver: resolver,
		applier:  receiver.NewApplier(fs, cfg.ReservedNames),
	}
	s.registerRoutes(fs)
	return s, nil
}

func (s *Server) registerRoutes(fs afero.Fs) {
	browse := echo.WrapHandler(http.FileServer(rootedFS{
		fs:       afero.NewHttpFs(fs),
		resolver: s.resolver,
	}))

	s.echo.POST("/*", s.handleRelay)
	s.echo.GET("/*", browse)
	s.echo.HEAD("/*", browse)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks until the server is shut down.
func (s *Server) Start() error {
	logger.Log.Info("receiver started",
		zap.String("addr", s.addr),
		zap.String("root", s.resolver.Root()))

	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("receiver failed: %w", err)
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleRelay(c echo.Context) error {
	r := c.Request()
	requestID := c.Response().Header().Get(echo.HeaderXRequestID)

	req, outcome, ok := s.parse(r)
	if ok {
		outcome = s.applier.Apply(req)
	}

	logger.Log.Info("relay applied",
		zap.String("request_id", requestID),
		zap.String("action", req.Action),
		zap.String("path", req.Dir),
		zap.String("file_name", req.FileName),
		zap.String("msg", outcome.Msg),
		zap.Int("status", int(outcome.Status)))

	return c.JSON(http.StatusOK, outcome)
}

// parse builds the applier request from the URL. Empty query values count as
// absent. When ok is false the outcome is the response.
func (s *Server) parse(r *http.Request) (receiver.Request, model.SyncOutcome, bool) {
	q := r.URL.Query()

	req := receiver.Request{
		Action:        q.Get("action"),
		IsDir:         q.Get("is_dir") == "1",
		FileName:      q.Get("file_name"),
		ContentType:   r.Header.Get(echo.HeaderContentType),
		ContentLength: r.ContentLength,
		Body:          r.Body,
	}

	if mode := q.Get("mode"); mode != "" {
		n, err := strconv.ParseUint(mode, 10, 32)
		if err != nil {
			return req, model.Terminal(model.CodeBadRequest, model.MsgParamError), false
		}
		req.Mode = os.FileMode(n).Perm()
		req.HasMode = true
	}

	var err error
	if req.Dir, err = s.resolver.Resolve(r.URL.Path); err != nil {
		return req, denied(err), false
	}

	if src := q.Get("src"); src != "" {
		if req.Src, err = s.resolver.Resolve(src); err != nil {
			return req, denied(err), false
		}
	}

	if dest := q.Get("dest"); dest != "" {
		if req.Dest, err = s.resolver.Resolve(dest); err != nil {
			return req, denied(err), false
		}
	}

	return req, model.SyncOutcome{}, true
}

func denied(err error) model.SyncOutcome {
	logger.Log.Warn("path rejected", zap.Error(err))
	return model.NoPermission()
}

func credentials(username, password string) middleware.BasicAuthValidator {
	return func(user, pass string, c echo.Context) (bool, error) {
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1
		return userOK && passOK, nil
	}
}

// rootedFS serves GET requests through the same resolver as relayed actions.
type rootedFS struct {
	fs       *afero.HttpFs
	resolver *receiver.Resolver
}

func (r rootedFS) Open(name string) (http.File, error) {
	p, err := r.resolver.Resolve(name)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}

	return r.fs.Open(p)
}

var _ http.FileSystem = rootedFS{}
