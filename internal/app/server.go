// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"lovi-service/internal/config"
	"lovi-service/internal/db"
	authHandler "lovi-service/internal/handlers/auth"
	wsHandler "lovi-service/internal/handlers/websocket"
	"lovi-service/internal/middleware"
	"lovi-service/internal/pkg/actiontoken"
	"lovi-service/internal/pkg/jwt"
	"lovi-service/internal/pkg/metrics"
	"lovi-service/internal/pkg/security"
	"lovi-service/internal/pkg/session"
	"lovi-service/internal/repository/postgres"
	authUsecase "lovi-service/internal/service/auth"
	"lovi-service/internal/service/email"
	"lovi-service/internal/websocket"
	wsHandlers "lovi-service/internal/websocket/handler"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	cfg         config.AppConfig
	engine      *gin.Engine
	http        *http.Server
	logger      *zap.Logger
	authService *authUsecase.AuthService

	pool      *pgxpool.Pool
	redis     *redis.Client
	cancelHub context.CancelFunc
}

func NewServer(cfg config.AppConfig, logger *zap.Logger) *Server {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	return &Server{cfg: cfg, engine: gin.New(), logger: logger}
}

// Build connects the stores and wires every component onto the engine.
func (s *Server) Build(ctx context.Context) error {
	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, db.PostgresConfig{URL: s.cfg.DatabaseURL})
	if err != nil {
		return err
	}
	s.pool = pool
	s.logger.Info("connected to PostgreSQL")

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(ctx, db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		PoolSize: 10,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	s.redis = redisClient
	s.logger.Info("connected to Redis", zap.String("addr", s.cfg.RedisAddr))

	// ----- Tokens -----
	jwtManager, err := jwt.LoadAndBuild(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT manager: %w", err)
	}
	codec, err := actiontoken.NewCodec(s.cfg.ActionToken)
	if err != nil {
		return fmt.Errorf("failed to build action token codec: %w", err)
	}

	// ----- Metrics -----
	registry := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTP(registry)
	authMetrics := authUsecase.NewMetrics(registry)

	// ----- Repositories -----
	dbWrapper := postgres.NewDB(pool)
	userRepo := postgres.NewUserRepository(dbWrapper)

	var sessions session.Registry
	switch s.cfg.Session.Store {
	case config.StoreRedis:
		sessions = session.NewRedisRegistry(redisClient)
	default:
		sessions = postgres.NewSessionRepository(dbWrapper)
	}
	s.logger.Info("session store selected", zap.String("store", s.cfg.Session.Store))

	rateLimiter := session.NewRateLimiter(redisClient)

	// ----- Email -----
	emailSender := email.NewEmailSender(
		s.cfg.SMTPHost,
		s.cfg.SMTPPort,
		s.cfg.SMTPUser,
		s.cfg.SMTPPass,
		s.cfg.SMTPFromName,
		s.cfg.SMTPSecure,
	)
	if !emailSender.Configured() {
		s.logger.Warn("SMTP_HOST not set, outgoing mail will fail")
	}

	// ----- WebSocket Hub -----
	hub := websocket.NewHub(sessions, s.logger)
	wsHandlers.NewSessionHandler(sessions).Register(hub)

	hubCtx, cancel := context.WithCancel(context.Background())
	s.cancelHub = cancel
	go hub.Run(hubCtx)

	// ----- Services (Usecases) -----
	coordinator := authUsecase.NewRefreshCoordinator(
		userRepo,
		sessions,
		authUsecase.NewClaimsAssembler(userRepo),
		jwtManager.Issuer,
		authUsecase.CoordinatorConfig{
			RefreshTTL:    s.cfg.Session.RefreshTTL,
			RevokeOnReuse: s.cfg.Session.RevokeOnReuse,
		},
		authMetrics,
		s.logger,
	)
	providers := authUsecase.NewProviderClient(authUsecase.ProviderEndpoints{
		GoogleUserInfoURL: s.cfg.Providers.GoogleUserInfoURL,
		SpotifyAPIURL:     s.cfg.Providers.SpotifyAPIURL,
		FacebookGraphURL:  s.cfg.Providers.FacebookGraphURL,
		InstagramGraphURL: s.cfg.Providers.InstagramGraphURL,
	}, s.cfg.Providers.Timeout)

	s.authService = authUsecase.NewAuthService(
		userRepo,
		coordinator,
		authUsecase.NewRevocationManager(sessions, hub, authMetrics, s.logger),
		authUsecase.NewActionTokenService(codec, userRepo),
		authUsecase.NewExternalIdentityLinker(providers, userRepo, s.logger),
		security.NewHasher(s.cfg.BcryptCost),
		rateLimiter,
		authUsecase.NewEmailHelper(emailSender, s.logger, s.cfg.PublicBaseURL),
		authMetrics,
		s.logger,
	)

	// ----- Admin -----
	if s.cfg.Admin.Email != "" {
		if err := s.initializeAdmin(); err != nil {
			s.logger.Error("failed to initialize admin", zap.Error(err))
		}
	}

	// ----- Handlers -----
	sameSite := http.SameSiteStrictMode
	if s.cfg.IsDevelopment() {
		sameSite = http.SameSiteNoneMode
	}
	handlers := &Handlers{
		AuthHandler: authHandler.NewAuthHandler(s.authService, authHandler.CookieOptions{
			BodyTransport: s.cfg.Session.Transport == config.TransportBody,
			Secure:        s.cfg.Session.CookieSecure,
			SameSite:      sameSite,
		}, s.logger),
		WSHandler:      wsHandler.NewWebSocketHandler(hub, s.logger),
		AuthMiddleware: middleware.NewAuthMiddleware(jwtManager.Verifier),
		Metrics:        metrics.Handler(registry),
	}

	s.engine.Use(
		middleware.RequestIDMiddleware(),
		middleware.LoggingMiddleware(s.logger, httpMetrics),
		middleware.RecoveryMiddleware(s.logger, httpMetrics),
	)
	SetupRouter(s.engine, handlers)

	s.http = &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Run serves HTTP until Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("server listening", zap.String("addr", s.cfg.HTTPAddr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones and closes
// the stores.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	if s.cancelHub != nil {
		s.cancelHub()
	}
	if s.redis != nil {
		s.redis.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

// initializeAdmin creates the configured admin account if it doesn't exist
func (s *Server) initializeAdmin() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admin := s.cfg.Admin
	if err := s.authService.EnsureAdminExists(ctx, admin.Email, admin.Password, admin.Name); err != nil {
		return fmt.Errorf("failed to ensure admin exists: %w", err)
	}
	return nil
}
