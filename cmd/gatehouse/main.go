package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/gatehouse/pkg/authn"
	"github.com/platinummonkey/gatehouse/pkg/config"
	"github.com/platinummonkey/gatehouse/pkg/idp"
	"github.com/platinummonkey/gatehouse/pkg/login"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/provision"
	"github.com/platinummonkey/gatehouse/pkg/session"
	"github.com/platinummonkey/gatehouse/pkg/web"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	metrics := observability.NewMetrics(nil)
	client := idp.NewHTTPClient(cfg.Provider.HTTPTimeout)

	// Pin endpoints from config or discover them from the issuer.
	endpoints := &idp.Endpoints{
		AuthURL:     cfg.Provider.AuthEndpoint,
		TokenURL:    cfg.Provider.TokenEndpoint,
		JWKSURL:     cfg.Provider.JWKSEndpoint,
		UserInfoURL: cfg.Provider.UserInfoEndpoint,
	}
	if endpoints.AuthURL == "" {
		discovered, err := idp.Discover(context.Background(), cfg.Provider.Issuer, client)
		if err != nil {
			logger.WithError(err).Error("failed to discover provider endpoints")
			os.Exit(1)
		}
		if endpoints.UserInfoURL == "" {
			endpoints.UserInfoURL = discovered.UserInfoURL
		}
		endpoints.AuthURL = discovered.AuthURL
		endpoints.TokenURL = discovered.TokenURL
		endpoints.JWKSURL = discovered.JWKSURL
	}

	userStore, sessionStore, err := buildStores(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialize storage")
		os.Exit(1)
	}

	keys := idp.NewKeySetCache(idp.KeySetConfig{
		JWKSEndpoint:       endpoints.JWKSURL,
		MinRefreshInterval: cfg.Provider.MinRefreshInterval,
		HTTPTimeout:        cfg.Provider.HTTPTimeout,
	}, client, logger, metrics)

	exchanger := idp.NewExchanger(idp.ExchangeConfig{
		ClientID:      cfg.Provider.ClientID,
		ClientSecret:  cfg.Provider.ClientSecret,
		AuthEndpoint:  endpoints.AuthURL,
		TokenEndpoint: endpoints.TokenURL,
		RedirectURL:   cfg.Provider.RedirectURL,
		Scopes:        cfg.Provider.Scopes,
		HTTPTimeout:   cfg.Provider.HTTPTimeout,
		MaxRetries:    cfg.Provider.MaxRetries,
		RetryDelay:    cfg.Provider.RetryDelay,
	}, client, logger, metrics)

	validator := authn.NewValidator(keys, authn.Config{
		Issuer:            cfg.Provider.Issuer,
		ClientID:          cfg.Provider.ClientID,
		AllowedAlgorithms: cfg.Provider.AllowedAlgorithms,
		ClockSkew:         cfg.Provider.ClockSkew,
		Mappings: authn.ClaimMappings{
			Email:       cfg.Provisioning.EmailClaim,
			DisplayName: cfg.Provisioning.DisplayNameClaim,
			Groups:      cfg.Provisioning.GroupsClaim,
		},
	}, logger, metrics)

	provisioner := provision.NewService(userStore, cfg.Provisioning.RoleMapping, logger)
	sessions := session.NewManager(sessionStore, userStore, cfg.Session.TTL, logger, metrics)
	states := login.NewStateStore(cfg.Login.StateTTL, logger, metrics)
	profiles := idp.NewProfileFetcher(endpoints.UserInfoURL, client, logger)

	flow := login.NewFlow(states, exchanger, validator, provisioner, sessions, profiles, logger, metrics)
	handlers := web.NewHandlers(flow, sessions, logger, web.Options{
		SecureCookies: cfg.Server.SecureCookies,
		StateTTL:      cfg.Login.StateTTL,
		SessionTTL:    cfg.Session.TTL,
	})

	router := mux.NewRouter()
	router.Use(web.Recovery(logger), web.RequestLogging(logger))
	handlers.RegisterRoutes(router)

	// Expired sessions are swept on a schedule; validation also rejects
	// them lazily, so the sweep is purely hygiene.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Session.SweepSchedule, func() {
		if _, err := sessions.Sweep(context.Background()); err != nil {
			logger.WithError(err).Warn("session sweep failed")
		}
	}); err != nil {
		logger.WithError(err).Error("invalid session sweep schedule")
		os.Exit(1)
	}
	sweeper.Start()
	defer sweeper.Stop()

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthRouter := mux.NewRouter()
	healthRouter.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	if cfg.Observability.MetricsEnabled {
		healthRouter.Handle("/metrics", metrics.Handler()).Methods("GET")
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthRouter,
	}

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	go func() {
		logger.WithField("addr", server.Addr).Info("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("server failed")
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("server shutdown failed")
	}
	if err := healthServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("health server shutdown failed")
	}
}

// userStore combines the provisioning store with the session manager's
// user lookup; both backends implement FindByID.
type userStore interface {
	provision.UserStore
	session.UserLookup
}

func buildStores(cfg *config.Config, logger *observability.Logger) (userStore, session.Store, error) {
	switch cfg.Storage.Type {
	case "postgres":
		db, err := sql.Open("postgres", cfg.Storage.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Ping(); err != nil {
			return nil, nil, err
		}
		logger.Info("using postgres storage")
		return provision.NewPostgresStore(db), session.NewPostgresStore(db), nil
	default:
		logger.Info("using in-memory storage")
		return provision.NewMemoryStore(), session.NewMemoryStore(), nil
	}
}
