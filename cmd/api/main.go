package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"larpcamp.org/internal/auth"
	"larpcamp.org/internal/campaign"
	"larpcamp.org/internal/config"
	"larpcamp.org/internal/httpapi"
	"larpcamp.org/internal/obs"
	"larpcamp.org/internal/store"
	"larpcamp.org/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	log := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := obs.SetLevel(cfg.Log.Level); err != nil {
		log.Fatal().Err(err).Msg("log level")
	}
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := store.Open(ctx, cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("open store")
	}
	defer backend.Close()

	events := stream.New()
	svc, err := campaign.NewService(backend, campaign.WithNotifier(events))
	if err != nil {
		log.Fatal().Err(err).Msg("campaign service")
	}
	if key, created, err := svc.Bootstrap(ctx); err != nil {
		log.Fatal().Err(err).Msg("bootstrap")
	} else if created {
		log.Info().Str("setup_url", "/staff-login?key="+key).Msg("visit /setup to finish installation")
	}
	if wm, err := backend.Watermark(ctx); err == nil {
		obs.SetWatermark(int64(wm))
	}

	sessions, err := auth.NewSessions(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("sessions")
	}

	api := httpapi.New(svc, sessions, version,
		httpapi.WithStream(events),
		httpapi.WithReadyProbe(backend),
		httpapi.WithStaticDir(cfg.Server.StaticDir),
		httpapi.WithRateLimit(cfg.Server.RateBurst, cfg.Server.RatePerSec),
		httpapi.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		httpapi.WithCORSOrigins(cfg.Server.CORSAllowedOrigins),
		httpapi.WithSecureCookies(cfg.Env == "production"),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		// zero keeps the staff event stream open
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("version", version).Str("addr", srv.Addr).Str("store", cfg.Store.Driver).Msg("starting larpcamp-api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	var (
		grpcSrv *grpc.Server
		health  *httpapi.GRPCServer
	)
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Server.GRPCAddr).Msg("grpc listen")
		}
		grpcSrv = grpc.NewServer()
		health = httpapi.NewGRPCServer(backend)
		health.Register(grpcSrv)
		_ = health.Refresh(ctx)
		go refreshHealth(ctx, health, 10*time.Second)
		go func() {
			log.Info().Str("addr", cfg.Server.GRPCAddr).Msg("starting grpc health")
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.Error().Err(err).Msg("grpc serve")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if health != nil {
		health.Shutdown()
		grpcSrv.GracefulStop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	log.Info().Msg("stopped")
}

func refreshHealth(ctx context.Context, health *httpapi.GRPCServer, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := health.Refresh(ctx); err != nil {
				obs.Logger().Warn().Err(err).Msg("store not ready")
			}
		}
	}
}
