package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mekvam/paygate/infra/config"
	"github.com/mekvam/paygate/infra/logger"
	"github.com/mekvam/paygate/infra/middle"
	"github.com/mekvam/paygate/infra/response"
	"github.com/mekvam/paygate/provider"
)

// ConfigHandler manages tenant payment provider configurations
type ConfigHandler struct {
	configs  *config.PaymentConfigStore
	validate *validator.Validate
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(configs *config.PaymentConfigStore, validate *validator.Validate) *ConfigHandler {
	return &ConfigHandler{
		configs:  configs,
		validate: validate,
	}
}

type configRequest struct {
	Provider    string          `json:"provider" validate:"required"`
	Enabled     *bool           `json:"enabled"`
	TestMode    bool            `json:"testMode"`
	DisplayName string          `json:"displayName"`
	SortOrder   int             `json:"sortOrder" validate:"gte=0"`
	Credentials json.RawMessage `json:"credentials" validate:"required"`
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

// SetConfig creates or updates the caller tenant's configuration for one
// provider. Credentials are validated against the provider's expected shape,
// then encrypted; the webhook secret is returned so the admin can register it
// provider-side, and this is the only surface that ever returns it.
func (h *ConfigHandler) SetConfig(w http.ResponseWriter, r *http.Request) {
	tenantID := middle.GetTenantID(r.Context())

	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))

	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	if err := provider.ValidateRawCredentials(req.Provider, req.Credentials); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid credentials", err)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	cfg, err := h.configs.Upsert(config.UpsertParams{
		TenantID:             tenantID,
		Provider:             req.Provider,
		Enabled:              enabled,
		TestMode:             req.TestMode,
		RawCredentials:       req.Credentials,
		DisplayName:          req.DisplayName,
		SortOrder:            req.SortOrder,
		MerchantSerialNumber: provider.MerchantSerialFromRaw(req.Credentials),
	})
	if err != nil {
		logger.Error("Failed to save payment config", err, logger.LogContext{TenantID: tenantID, Provider: req.Provider})
		response.Error(w, http.StatusInternalServerError, "Failed to save configuration", err)
		return
	}

	logger.Info("Payment config saved", logger.LogContext{
		TenantID: tenantID,
		Provider: req.Provider,
		Fields:   map[string]any{"enabled": enabled, "test_mode": req.TestMode},
	})

	response.Success(w, http.StatusOK, "Configuration saved", map[string]any{
		"config":        cfg,
		"webhookSecret": cfg.WebhookSecret,
	})
}

// ListConfigs returns all of the tenant's provider configurations without
// credential material.
func (h *ConfigHandler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	tenantID := middle.GetTenantID(r.Context())

	configs, err := h.configs.ListConfigs(tenantID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to list configurations", err)
		return
	}

	response.Success(w, http.StatusOK, "Configurations retrieved", map[string]any{
		"configs": configs,
		"count":   len(configs),
	})
}

// ToggleProvider enables or disables a provider without touching credentials
func (h *ConfigHandler) ToggleProvider(w http.ResponseWriter, r *http.Request) {
	tenantID := middle.GetTenantID(r.Context())
	providerName := chi.URLParam(r, "provider")

	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.configs.SetEnabled(tenantID, providerName, req.Enabled); err != nil {
		response.Error(w, http.StatusNotFound, "Configuration not found", err)
		return
	}

	logger.Info("Payment provider toggled", logger.LogContext{
		TenantID: tenantID,
		Provider: providerName,
		Fields:   map[string]any{"enabled": req.Enabled},
	})

	response.Success(w, http.StatusOK, "Provider toggled", map[string]any{
		"provider": providerName,
		"enabled":  req.Enabled,
	})
}

// DeleteConfig removes a provider configuration entirely
func (h *ConfigHandler) DeleteConfig(w http.ResponseWriter, r *http.Request) {
	tenantID := middle.GetTenantID(r.Context())
	providerName := chi.URLParam(r, "provider")

	if err := h.configs.Delete(tenantID, providerName); err != nil {
		response.Error(w, http.StatusNotFound, "Configuration not found", err)
		return
	}

	logger.Info("Payment config deleted", logger.LogContext{TenantID: tenantID, Provider: providerName})
	response.Success(w, http.StatusOK, "Configuration deleted", nil)
}

// TestConnection exercises the stored credentials against the live provider.
// The configuration does not need to be enabled; admins test before go-live.
func (h *ConfigHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	tenantID := middle.GetTenantID(r.Context())
	providerName := chi.URLParam(r, "provider")

	cfg, err := h.configs.GetConfig(tenantID, providerName)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to load configuration", err)
		return
	}
	if cfg == nil {
		response.Error(w, http.StatusNotFound, "Configuration not found", nil)
		return
	}

	raw, err := h.configs.DecryptCredentials(cfg)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to decrypt credentials", err)
		return
	}

	gateway, err := provider.Build(providerName, provider.GatewayConfig{
		TenantID:             tenantID,
		TestMode:             cfg.TestMode,
		Credentials:          raw,
		MerchantSerialNumber: cfg.MerchantSerialNumber,
	})
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Failed to build provider gateway", err)
		return
	}

	if err := gateway.TestConnection(ctx); err != nil {
		logger.Warn("Provider connection test failed", logger.LogContext{
			TenantID: tenantID,
			Provider: providerName,
			Fields:   map[string]any{"error": err.Error()},
		})
		response.Error(w, http.StatusBadGateway, "Connection test failed", err)
		return
	}

	response.Success(w, http.StatusOK, "Connection test passed", map[string]any{
		"provider": providerName,
		"testMode": cfg.TestMode,
	})
}

// AvailableProviders returns the tenant's enabled providers for checkout UIs
func (h *ConfigHandler) AvailableProviders(w http.ResponseWriter, r *http.Request) {
	tenantID := middle.GetTenantID(r.Context())

	configs, err := h.configs.ListEnabled(tenantID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "Failed to list providers", err)
		return
	}

	providers := make([]map[string]any, 0, len(configs))
	for _, cfg := range configs {
		providers = append(providers, map[string]any{
			"provider":    cfg.Provider,
			"displayName": cfg.DisplayName,
			"testMode":    cfg.TestMode,
			"sortOrder":   cfg.SortOrder,
		})
	}

	response.Success(w, http.StatusOK, "Available providers", map[string]any{
		"providers": providers,
		"count":     len(providers),
	})
}
