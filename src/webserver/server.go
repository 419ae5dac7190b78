// Package webserver exposes the HTTP API.
package webserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/stake-plus/trustink/src/auth"
	"github.com/stake-plus/trustink/src/certify"
	"github.com/stake-plus/trustink/src/config"
	"github.com/stake-plus/trustink/src/logging"
	"github.com/stake-plus/trustink/src/metrics"
	"github.com/stake-plus/trustink/src/reports"
	"github.com/stake-plus/trustink/src/submissions"
	"github.com/stake-plus/trustink/src/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tlsCheckInterval = 5 * time.Minute

// Services are the domain components behind the routes.
type Services struct {
	DB        *gorm.DB
	Redis     *redis.Client
	Auth      *auth.Service
	APIKeys   *auth.APIKeys
	Intake    *submissions.Intake
	Queue     *submissions.Queue
	Dashboard *submissions.Dashboard
	Registry  *certify.Registry
	Reports   *reports.Generator
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Logger    *zap.Logger
}

type Server struct {
	cfg     *config.Config
	engine  *gin.Engine
	log     *zap.Logger
	authRL  *RateLimiter
	keyRL   *RateLimiter
	svc     Services
	started time.Time
}

func New(cfg *config.Config, svc Services) *Server {
	if cfg.Log.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		cfg:     cfg,
		engine:  gin.New(),
		log:     logging.Component(svc.Logger, "http"),
		authRL:  NewRateLimiter(cfg.RateLimit.AuthPerMinute, time.Minute),
		keyRL:   NewRateLimiter(cfg.RateLimit.VerifyPerMinute, time.Minute),
		svc:     svc,
		started: time.Now(),
	}
	s.engine.Use(gin.Recovery(), RequestLogger(s.log, svc.Metrics))
	s.attachRoutes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// Close stops the background rate limiter sweeps.
func (s *Server) Close() {
	s.authRL.Stop()
	s.keyRL.Stop()
}

func (s *Server) attachRoutes() {
	r := s.engine
	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	gatherer := s.svc.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	authH := &authHandler{svc: s.svc.Auth, log: s.log}
	subH := &submissionHandler{intake: s.svc.Intake, dashboard: s.svc.Dashboard, log: s.log}
	modH := &moderationHandler{queue: s.svc.Queue, log: s.log}
	regH := &registryHandler{registry: s.svc.Registry, auth: s.svc.Auth, reports: s.svc.Reports, log: s.log}
	adminH := &adminHandler{auth: s.svc.Auth, registry: s.svc.Registry, log: s.log}
	keyH := &apiKeyHandler{keys: s.svc.APIKeys, log: s.log}

	api := r.Group("/api")
	{
		limited := api.Group("/auth", RateLimitMiddleware(s.authRL, s.log))
		limited.POST("/register", authH.Register)
		limited.POST("/login", authH.Login)

		api.GET("/registry", regH.List)
		api.GET("/registry/stats", regH.Stats)
		api.GET("/verify/:vid", regH.Verify)
		api.GET("/certificates/:id", regH.Certificate)
		api.GET("/certificates/:id/pdf", regH.PDF)
		api.GET("/creators/:id/profile", subH.Profile)

		api.GET("/v1/verify/:vid",
			APIKeyMiddleware(s.svc.APIKeys, s.log),
			RateLimitMiddleware(s.keyRL, s.log),
			regH.VerifyThirdParty,
		)
	}

	secured := api.Group("", AuthMiddleware(s.svc.Auth, s.log))
	{
		secured.GET("/auth/me", authH.Me)

		secured.POST("/submissions", subH.Create)
		secured.GET("/submissions", subH.List)
		secured.GET("/submissions/:id", subH.Get)
		secured.GET("/dashboard/stats", subH.Stats)

		secured.POST("/apikeys", keyH.Create)
		secured.GET("/apikeys", keyH.List)
		secured.DELETE("/apikeys/:id", keyH.Delete)
	}

	moderation := secured.Group("/moderation", RequireRole(s.log, types.RoleReviewer, types.RoleAdmin))
	{
		moderation.GET("/queue", modH.Queue)
		moderation.GET("/stats", modH.Stats)
		moderation.POST("/:id/review", modH.Review)
	}

	admin := secured.Group("/admin", RequireRole(s.log, types.RoleAdmin))
	{
		admin.GET("/users", adminH.Users)
		admin.POST("/users/:id/status", adminH.SetStatus)
		admin.PUT("/users/:id/trust", adminH.SetTrust)
		admin.GET("/stats", adminH.Stats)
		admin.POST("/certificates/:id/revoke", adminH.Revoke)
	}
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{
		"status":   "ok",
		"database": "ok",
		"redis":    "disabled",
		"uptime":   time.Since(s.started).Round(time.Second).String(),
	}
	if sqlDB, err := s.svc.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = "unreachable"
	}
	if s.svc.Redis != nil {
		body["redis"] = "ok"
		if err := s.svc.Redis.Ping(ctx).Err(); err != nil {
			body["redis"] = "unreachable"
		}
	}
	c.JSON(status, body)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	var reloader *TLSReloader
	if s.cfg.Server.SSLCert != "" {
		var err error
		reloader, err = NewTLSReloader(s.cfg.Server.SSLCert, s.cfg.Server.SSLKey, tlsCheckInterval, s.log)
		if err != nil {
			return err
		}
		defer reloader.Stop()
		srv.TLSConfig = reloader.Config()
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", reloader != nil),
		)
		var err error
		if reloader != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
