// Package server is the optional HTTP projection surface (spec §1): a thin
// gin layer over projection.API. It is an external collaborator of the
// engine, not a component the engine itself depends on.
package server

import (
	"context"
	"net/http"
	"time"

	"scalpengine/logger"
	"scalpengine/projection"

	"github.com/gin-gonic/gin"
)

var log = logger.Named("server")

// Config bundles the HTTP-surface specific settings cmd/engine resolves
// from the environment (spec §1.3): the bind address and the auth
// material auth.go checks against.
type Config struct {
	Addr      string
	JWTSecret []byte
	// TOTPSecret, if set, gates every mutating route (enable, disable,
	// settings, watchlist add/remove, position close) behind an additional
	// X-Totp-Code header (spec §1's "step-up auth on mutating routes").
	TOTPSecret string
}

// Server wires projection.API behind gin, with bearer-JWT auth on every
// route and a TOTP step-up check on the mutating ones.
type Server struct {
	api  *projection.API
	cfg  Config
	http *http.Server
}

// New constructs a Server; call Run to start serving.
func New(api *projection.API, cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{api: api, cfg: cfg}
	s.routes(router)
	s.http = &http.Server{Addr: cfg.Addr, Handler: router}
	return s
}

func (s *Server) routes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	v1.Use(s.authRequired())
	{
		v1.GET("/snapshot", s.handleGetSnapshot)
		v1.GET("/watchlist", s.handleGetWatchlist)

		v1.POST("/enable", s.stepUpRequired(), s.handleEnable)
		v1.POST("/disable", s.stepUpRequired(), s.handleDisable)
		v1.PUT("/settings", s.stepUpRequired(), s.handleUpdateSettings)
		v1.POST("/watchlist", s.stepUpRequired(), s.handleAddSymbol)
		v1.DELETE("/watchlist/:symbol", s.stepUpRequired(), s.handleRemoveSymbol)
		v1.POST("/positions/:symbol/close", s.stepUpRequired(), s.handleClosePosition)
	}
}

// Run blocks serving HTTP until ctx is cancelled, then shuts down
// gracefully (spec §5's shutdown-ordering convention, applied to the
// optional HTTP surface too).
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("server listening on %s", s.cfg.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
