// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

// Package web serves plugin routes over HTTP. Static host routes live on
// the main engine; plugin routes live on an atomically swappable sub-engine
// rebuilt whenever the route registry's change token expires.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/plugmesh/plugmesh/internal/logging"
	"github.com/plugmesh/plugmesh/internal/routes"
	"github.com/plugmesh/plugmesh/pkg/sdk"
)

// maxBodyBytes bounds plugin request bodies.
const maxBodyBytes = 4 << 20

// Config configures the web server.
type Config struct {
	// Addr is the listen address.
	Addr string

	// Registry is the endpoint data source.
	Registry *routes.Registry

	// AllowedOrigins enables CORS when non-empty.
	AllowedOrigins []string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server is the web host's HTTP front end.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	engine   *gin.Engine
	dyn      atomic.Pointer[gin.Engine]
	listener net.Listener
	httpSrv  *http.Server
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewServer builds the server and its static routes.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{cfg: cfg, logger: cfg.Logger}

	engine := gin.New()
	engine.Use(gin.Recovery())
	if len(cfg.AllowedOrigins) > 0 {
		engine.Use(cors.New(cors.Config{
			AllowOrigins: cfg.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	engine.GET("/_plugins", s.handlePluginsIndex)

	// Plugin routes are matched after static routes: NoRoute delegates to
	// the current dynamic engine.
	engine.NoRoute(func(c *gin.Context) {
		if dyn := s.dyn.Load(); dyn != nil {
			dyn.HandleContext(c)
			if c.Writer.Written() {
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	s.engine = engine
	return s
}

// Handler exposes the root handler (tests drive it without a listener).
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start binds the listener, builds the initial plugin route table, and
// begins watching the registry for changes.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("web: listen on %s: %w", s.cfg.Addr, err)
	}
	s.listener = listener

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.watchRegistry(ctx)

	s.httpSrv = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if serveErr := s.httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("web server error", "error", serveErr)
		}
	}()

	s.logger.Info("web server started", "addr", listener.Addr().String())
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			return fmt.Errorf("web: shutdown: %w", err)
		}
	}
	s.logger.Info("web server stopped")
	return nil
}

// Addr returns the bound address ("" before Start).
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// watchRegistry rebuilds the dynamic engine on every change-token expiry.
// The token is obtained before the snapshot is read, so a mutation landing
// between the two is caught by the next expiry.
func (s *Server) watchRegistry(ctx context.Context) {
	defer close(s.done)
	for {
		token := s.cfg.Registry.ChangeToken()
		s.Rebuild()
		select {
		case <-token.Done():
		case <-ctx.Done():
			return
		}
	}
}

// Rebuild swaps in a fresh dynamic engine holding the registry's current
// endpoint snapshot. Safe to call from any goroutine.
func (s *Server) Rebuild() {
	defer func() {
		// gin panics on conflicting route registrations; a plugin must not
		// take the host down with one.
		if r := recover(); r != nil {
			s.logger.Error("dynamic route rebuild failed", "panic", r)
		}
	}()

	eng := gin.New()
	eng.Use(gin.Recovery())
	// Misses get the same JSON 404 body as the outer engine's NoRoute; a miss
	// left unwritten would get gin's plain-text 404 instead.
	eng.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	entries := s.cfg.Registry.Endpoints()
	for _, entry := range entries {
		eng.Handle(entry.Method, entry.Pattern.GinPath, s.bind(entry))
	}
	s.dyn.Store(eng)

	s.logger.Debug("dynamic routes rebuilt", "routes", len(entries))
}

// bind adapts one route entry to gin: bind path params, validate declared
// types, invoke the plugin handler, write its JSON.
func (s *Server) bind(entry routes.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		params := make(sdk.Params, len(c.Params))
		for _, p := range c.Params {
			params[p.Key] = p.Value
		}
		if err := entry.Pattern.ValidateParams(params); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		query := make(map[string]string)
		for key, values := range c.Request.URL.Query() {
			if len(values) > 0 {
				query[key] = values[0]
			}
		}

		var body []byte
		if c.Request.Body != nil {
			b, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
				return
			}
			body = b
		}

		result, err := entry.Handler(&sdk.Request{
			Method: entry.Method,
			Path:   c.Request.URL.Path,
			Params: params,
			Query:  query,
			Body:   body,
		})
		if err != nil {
			ctx := logging.WithPlugin(c.Request.Context(), entry.PluginName, "")
			s.logger.ErrorContext(ctx, "plugin handler failed",
				"route", entry.Pattern.Raw,
				"error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if raw, ok := result.(json.RawMessage); ok {
			c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
