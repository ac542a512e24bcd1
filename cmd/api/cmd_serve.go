package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"modelhub_go_backend/cmd/api/config"
	"modelhub_go_backend/internal/api"
	"modelhub_go_backend/internal/auth"
	"modelhub_go_backend/internal/database"
	apierrors "modelhub_go_backend/internal/errors"
	"modelhub_go_backend/internal/logger"
	"modelhub_go_backend/internal/models"
	"modelhub_go_backend/internal/services"
	"modelhub_go_backend/internal/utils/broker"
	"modelhub_go_backend/internal/wsocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ServeCmd struct {
	Migrate bool `help:"Run schema migrations before serving" default:"true" negatable:""`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, log, err := cli.bootstrap()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	if c.Migrate {
		if err := database.Migrate(db); err != nil {
			return err
		}
	}

	// Money is rendered as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	if cfg.Provider.APIKey == services.SentinelAPIKey {
		log.Warn().Msg("Demo API key configured, completions are simulated")
	}

	r := newRouter(cfg, db)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(cfg *config.Config, db *gorm.DB) *gin.Engine {
	clock := services.NewClock(cfg.Quota.Location())
	messageBroker := broker.NewBroker()

	catalog := services.NewCatalogServiceDB(db)
	provider := services.NewOpenRouterService(providerConfig(cfg), catalog)

	usageStore := services.NewUsageServiceDB(db)
	quota := services.NewQuotaService(usageStore, clock)
	alerts := services.NewAlertService(usageStore, quota, messageBroker, clock)
	usage := services.NewUsageService(usageStore, clock, alerts)

	chatStore := services.NewChatServiceDB(db)
	chat := services.NewChatService(chatStore, catalog, provider, quota, usage)

	users := services.NewUserService(db, provider, quota, usage, models.Limits{
		DailyRequestLimit:   cfg.Quota.DailyRequestLimit,
		MonthlyRequestLimit: cfg.Quota.MonthlyRequestLimit,
		DailyCostLimit:      cfg.Quota.DailyCostLimit,
		MonthlyCostLimit:    cfg.Quota.MonthlyCostLimit,
	})

	var stripeService *services.StripeService
	if cfg.Stripe.Enabled() {
		stripeService = services.NewStripeService(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, cfg.Stripe.SuccessURL, cfg.Stripe.CancelURL)
	}

	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = true
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		},
	}

	if cfg.LogLevel != "debug" && cfg.LogLevel != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(logger.RequestLogger(), apierrors.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api.SetupRoutes(r, api.Dependencies{
		Auth:       auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, users),
		Chat:       chat,
		Store:      chatStore,
		Catalog:    catalog,
		Users:      users,
		Usage:      usage,
		Quota:      quota,
		Statements: services.NewStatementService(usage),
		Stripe:     stripeService,
		WebSocket:  wsocket.NewHandler(chat, quota, users, messageBroker, upgrader, cfg.SessionCheckInterval),
	})
	return r
}
