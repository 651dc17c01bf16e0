// Package api implements the recovery API server process.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hereafterlabs/guardian-middleware/pkg/app/httpserver"
	"github.com/hereafterlabs/guardian-middleware/pkg/auth"
	"github.com/hereafterlabs/guardian-middleware/pkg/config"
	"github.com/hereafterlabs/guardian-middleware/pkg/keys"
	"github.com/hereafterlabs/guardian-middleware/pkg/ledgermirror"
	"github.com/hereafterlabs/guardian-middleware/pkg/notify"
	"github.com/hereafterlabs/guardian-middleware/pkg/pgutil"
	recoveryservice "github.com/hereafterlabs/guardian-middleware/pkg/recovery/service"
	"github.com/hereafterlabs/guardian-middleware/pkg/recoverystore"
)

const defaultRequestTimeout = 60

// Server holds cfg to init the api server.
type Server struct {
	cfg *config.Config
}

// NewServer initializes new api server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("api server config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting recovery API server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() { _ = db.Close() }()
	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database),
	)

	cipher, err := s.buildCipher(logger)
	if err != nil {
		return err
	}

	mirror, err := s.buildMirror(logger)
	if err != nil {
		return err
	}

	notifier := s.buildNotifier(logger)

	store := recoverystore.NewStore(db)
	svc := recoveryservice.NewService(store, mirror, notifier, cipher, logger)

	validator := auth.NewJWTValidator(cfg.JWKS.URL, cfg.JWKS.Issuer)
	if !validator.IsConfigured() {
		logger.Warn("JWKS validation not configured, owner routes are unauthenticated")
	}

	router := s.setupRouter(recoveryservice.NewLog(svc, logger), validator, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return httpserver.ServeAndWait(ctx, logger, srv, cfg.Shutdown.Timeout)
}

// buildCipher loads the payload master key from the configured environment
// variable. Without a key payloads are stored as received, which is only
// acceptable for local development.
func (s *Server) buildCipher(logger *zap.Logger) (keys.PayloadCipher, error) {
	masterKeyStr := os.Getenv(s.cfg.KeyManagement.MasterKeyEnv)
	if masterKeyStr == "" {
		logger.Warn("payload master key not set, storing payloads unsealed",
			zap.String("env", s.cfg.KeyManagement.MasterKeyEnv),
		)
		return keys.NoopCipher{}, nil
	}

	masterKey, err := keys.MasterKeyFromBase64(masterKeyStr)
	if err != nil {
		return nil, fmt.Errorf("invalid payload master key: %w", err)
	}
	return keys.NewMasterKeyCipher(masterKey)
}

func (s *Server) buildMirror(logger *zap.Logger) (ledgermirror.Mirror, error) {
	if !s.cfg.Ledger.Enabled {
		return ledgermirror.Noop{}, nil
	}

	mirror, err := ledgermirror.New(
		s.cfg.Ledger.BaseURL,
		s.cfg.Ledger.APIKey,
		ledgermirror.WithLogger(logger),
		ledgermirror.WithTimeout(s.cfg.Ledger.RequestTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create ledger mirror client: %w", err)
	}

	logger.Info("Ledger mirror enabled", zap.String("base_url", s.cfg.Ledger.BaseURL))
	return mirror, nil
}

func (s *Server) buildNotifier(logger *zap.Logger) notify.Notifier {
	if !s.cfg.Notify.Enabled {
		return notify.Noop{}
	}

	logger.Info("Guardian invite notifications enabled")
	return notify.NewWebhook(s.cfg.Notify.WebhookURL, s.cfg.Notify.RequestTimeout, logger)
}

func (s *Server) setupRouter(
	svc recoveryservice.Service,
	validator *auth.JWTValidator,
	logger *zap.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Second * defaultRequestTimeout))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if s.cfg.Metrics.Enabled {
		r.Handle(s.cfg.Metrics.Path, promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		recoveryservice.RegisterRoutes(r, svc, validator.Middleware, logger)
	})

	return r
}
