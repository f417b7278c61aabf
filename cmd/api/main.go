package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"staybook/internal/adapters/auth"
	"staybook/internal/adapters/geocode"
	server "staybook/internal/adapters/http_server"
	"staybook/internal/adapters/observability"
	redisad "staybook/internal/adapters/redis"
	stripead "staybook/internal/adapters/stripe"
	"staybook/internal/app"
	"staybook/internal/domain"
	"staybook/internal/shared"
	"staybook/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing init failed")
	}

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// storage
	stores, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("storage open failed")
	}
	if err := stores.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}

	// deps
	cache, closeCache := openCache(ctx, cfg)
	tokens, err := auth.NewJWT(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("jwt init failed")
	}
	payments, err := stripead.New(cfg.StripeKey, cfg.StripeWebhookSecret, cfg.StripeBaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("stripe client init failed")
	}

	h := &server.Handlers{
		Auth: app.NewAuthService(stores.Users, auth.NewBcrypt(0), tokens),
		Hotels: app.NewHotelService(app.HotelDeps{
			Hotels:   stores.Hotels,
			Images:   stores.Images,
			Users:    stores.Users,
			Orders:   stores.Orders,
			Cache:    cache,
			Geocoder: newGeocoder(cfg),
			CacheTTL: cfg.CacheTTL,
		}),
		Payments: app.NewPaymentService(stores.Users, stores.Hotels, stores.Orders, payments, app.PaymentConfig{
			Currency:   cfg.Currency,
			FeePercent: cfg.PlatformFeePercent,
			ClientURL:  cfg.ClientURL,
		}),
		MaxUploadBytes: cfg.MaxUploadBytes,
	}

	// http
	srv := server.New()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(h)

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           observability.Traced(srv.Mux(), "staybook.http"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down")
		return httpSrv.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("http server failed")
	}

	cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stores.Close(cctx); err != nil {
		log.Warn().Err(err).Msg("storage close failed")
	}
	closeCache()
	if err := shutdownTracing(cctx); err != nil {
		log.Warn().Err(err).Msg("tracing shutdown failed")
	}
}

// openCache returns a nil interface when redis is not configured or unreachable.
func openCache(ctx context.Context, cfg shared.Config) (domain.Cache, func()) {
	if cfg.RedisAddr == "" {
		log.Info().Msg("cache disabled")
		return nil, func() {}
	}
	c := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Ping(pctx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable; cache disabled")
		_ = c.Close()
		return nil, func() {}
	}
	return c, func() { _ = c.Close() }
}

func newGeocoder(cfg shared.Config) domain.Geocoder {
	if cfg.GeocodeBase == "" {
		return nil
	}
	g, err := geocode.New(cfg.GeocodeBase, cfg.GeocodeUserAgent, cfg.GeocodeRPS)
	if err != nil {
		log.Warn().Err(err).Msg("geocoder disabled")
		return nil
	}
	return g
}
