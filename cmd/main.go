package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/mekvam/paygate/handler"
	"github.com/mekvam/paygate/infra/config"
	"github.com/mekvam/paygate/infra/crypto"
	"github.com/mekvam/paygate/infra/logger"
	"github.com/mekvam/paygate/infra/middle"
	"github.com/mekvam/paygate/infra/opensearch"
	"github.com/mekvam/paygate/infra/response"
	"github.com/mekvam/paygate/infra/store"
	"github.com/mekvam/paygate/provider"
	v1 "github.com/mekvam/paygate/router/v1"

	// Side-effect registration of payment gateways
	_ "github.com/mekvam/paygate/provider/card"
	_ "github.com/mekvam/paygate/provider/stripe"
	_ "github.com/mekvam/paygate/provider/vipps"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file loaded, using process environment")
	}

	cfg := config.GetAppConfig()

	// Log sink is optional; the service runs without it
	var osLogger *opensearch.Logger
	var osClient *opensearch.Client
	if cfg.EnableLogging {
		client, err := opensearch.NewClient(cfg)
		if err != nil {
			log.Printf("Failed to initialize OpenSearch client: %v", err)
			log.Println("Continuing without OpenSearch logging...")
		} else {
			osClient = client
			osLogger = opensearch.NewLogger(client)
		}
	}
	logger.InitGlobalLogger(osLogger)

	vault := crypto.NewVault(cfg.VaultMasterKey)
	if vault.Insecure() {
		logger.Warn("VAULT_MASTER_KEY not set, credential vault is using the insecure development key")
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("Failed to open database", err)
	}
	defer db.Close()

	payments, err := store.NewPaymentStore(db.DB())
	if err != nil {
		logger.Fatal("Failed to initialize payment store", err)
	}
	configs, err := config.NewPaymentConfigStore(db.DB(), vault)
	if err != nil {
		logger.Fatal("Failed to initialize payment config store", err)
	}

	gateways := provider.NewGatewayService(configs, provider.DefaultRegistry, cfg.BaseURL)
	validate := validator.New()

	handlers := v1.Handlers{
		Payment:      handler.NewPaymentHandler(gateways, payments, validate),
		Config:       handler.NewConfigHandler(configs, validate),
		Subscription: handler.NewSubscriptionHandler(gateways, payments, validate),
	}
	webhooks := handler.NewWebhookHandler(payments, configs)
	health := handler.NewHealthHandler(db.DB(), osClient, provider.DefaultRegistry)

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middle.PanicRecoveryMiddleware())
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middle.SecurityHeadersMiddleware())

	if osLogger != nil {
		r.Use(middle.PaymentLoggingMiddleware(osLogger))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant-ID", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public endpoints: health and provider notifications. Webhooks carry
	// their own per-tenant authentication.
	r.Get("/health", health.Health)
	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/vipps", webhooks.VippsWebhook)
		r.Post("/stripe", webhooks.StripeWebhook)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(middle.AuthMiddleware())
		v1.Routes(r, handlers)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = response.WriteJSON(w, http.StatusNotFound, response.Response{Success: false, Message: "Not Found"})
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", err)
		}
	}()

	logger.Info("API is running", logger.LogContext{Fields: map[string]any{"port": cfg.Port}})

	<-ctx.Done()
	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", err)
	}
}
