// Command devdice-server serves the DevDice REST API and a gRPC health endpoint.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/credentials"

	"github.com/and161185/devdice/internal/config"
	"github.com/and161185/devdice/internal/limiter"
	"github.com/and161185/devdice/internal/mailer"
	"github.com/and161185/devdice/internal/migrate"
	"github.com/and161185/devdice/internal/repository"
	"github.com/and161185/devdice/internal/repository/memory"
	"github.com/and161185/devdice/internal/repository/postgres"
	grpcserver "github.com/and161185/devdice/internal/server/grpc"
	httpserver "github.com/and161185/devdice/internal/server/http"
	"github.com/and161185/devdice/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const shutdownTimeout = 5 * time.Second

type stores struct {
	users      repository.UserRepository
	resets     repository.ResetRepository
	challenges repository.ChallengeRepository
	tracking   repository.TrackingRepository
	lim        limiter.Limiter
	ping       func(ctx context.Context) error
	close      func()
}

// main loads configuration, prepares storage and runs both listeners until SIGINT/SIGTERM.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	newLogger := zap.NewProduction
	if cfg.Dev {
		newLogger = zap.NewDevelopment
	}
	logger, _ := newLogger()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("store", cfg.Store),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}
	defer st.close()

	var mail mailer.Mailer = mailer.NewLogMailer(logger)
	if cfg.SMTPHost != "" {
		mail = mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		logger.Warn("SMTP not configured; reset links are written to the log")
	}

	// Services
	authSvc := service.NewAuthService(st.users, st.resets, st.lim, mail, logger, service.AuthConfig{
		SignKey:     []byte(cfg.JWTSecret),
		TokenTTL:    cfg.TokenTTL,
		BcryptCost:  cfg.BcryptCost,
		AdminEmails: cfg.AdminEmails,
		ResetTTL:    cfg.ResetTTL,
		ResetURL:    cfg.ResetURL,
	})
	catalogSvc := service.NewCatalogService(st.challenges, cfg.MaxBatch)
	trackingSvc := service.NewTrackingService(st.tracking)

	if err := authSvc.EnsureAdmins(ctx); err != nil {
		logger.Fatal("ensure admins", zap.Error(err))
	}
	if cfg.SeedCatalog {
		n, err := catalogSvc.Seed(ctx)
		if err != nil {
			logger.Fatal("seed catalog", zap.Error(err))
		}
		logger.Info("catalog seeded", zap.Int("inserted", n))
	}

	router, err := httpserver.NewRouter(httpserver.Deps{
		Auth:        authSvc,
		Catalog:     catalogSvc,
		Tracking:    trackingSvc,
		Log:         logger,
		Ping:        st.ping,
		CORSOrigins: cfg.CORSOrigins,
	})
	if err != nil {
		logger.Fatal("router", zap.Error(err))
	}
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	// Health & reflection (dev)
	var creds credentials.TransportCredentials
	if cfg.TLSCert != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		httpSrv.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
		creds = credentials.NewServerTLSFromCert(&cert)
	}
	hs := grpcserver.NewHealth(logger, grpcserver.Options{
		Ping:       st.ping,
		Interval:   cfg.HealthInterval,
		Creds:      creds,
		Reflection: cfg.Dev,
	})
	go hs.Watch(ctx)

	lis, err := net.Listen("tcp", cfg.HealthAddr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("grpc health listening", zap.String("addr", cfg.HealthAddr))
		errCh <- hs.Serve(lis)
	}()
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.Bool("tls", creds != nil))
		var err error
		if httpSrv.TLSConfig != nil {
			err = httpSrv.ListenAndServeTLS("", "")
		} else {
			err = httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	hs.Stop(shutdownTimeout)

	logger.Info("shutdown complete")
}

// openStores selects the repository backend. The memory backend keeps no
// state across restarts.
func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	var lim limiter.Limiter = limiter.Nop{}
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory storage; data is lost on exit")
		if cfg.LoginMaxFails > 0 {
			lim = limiter.NewMemory(cfg.LoginWindow, cfg.LoginMaxFails, cfg.LoginBlockFor)
		}
		m := memory.New()
		return &stores{
			users:      m.Users(),
			resets:     m.Resets(),
			challenges: m.Challenges(),
			tracking:   m.Tracking(),
			lim:        lim,
			close:      func() {},
		}, nil
	}

	v, err := migrate.Up(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("schema ready", zap.Int64("version", v))

	db, err := postgres.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if cfg.LoginMaxFails > 0 {
		lim = limiter.NewPG(db.Pool, cfg.LoginWindow, cfg.LoginMaxFails, cfg.LoginBlockFor)
	}
	return &stores{
		users:      postgres.NewUserRepo(db),
		resets:     postgres.NewResetRepo(db),
		challenges: postgres.NewChallengeRepo(db),
		tracking:   postgres.NewTrackingRepo(db),
		lim:        lim,
		ping:       db.Pool.Ping,
		close:      db.Close,
	}, nil
}
