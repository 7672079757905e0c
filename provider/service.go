package provider

import (
	"errors"
	"fmt"

	"github.com/mekvam/paygate/infra/config"
)

// ErrProviderNotConfigured means no enabled configuration exists for the
// tenant/provider pair. Callers surface this as "provider unavailable", not
// as an internal fault.
var ErrProviderNotConfigured = errors.New("payment provider is not configured for this tenant")

// ConfigSource supplies tenant payment configurations and decrypts their
// credential blobs.
type ConfigSource interface {
	GetEnabledConfig(tenantID, providerName string) (*config.TenantPaymentConfig, error)
	DecryptCredentials(cfg *config.TenantPaymentConfig) ([]byte, error)
}

// GatewayService is a stateless factory that builds a short-lived gateway
// value per request from a tenant's decrypted configuration. There is no
// process-wide gateway state; the only cache a gateway may carry (the Vipps
// access token) lives inside the gateway value itself.
type GatewayService struct {
	configs  ConfigSource
	registry *Registry
	baseURL  string
}

// NewGatewayService creates a gateway service backed by the given config
// source and registry.
func NewGatewayService(configs ConfigSource, registry *Registry, baseURL string) *GatewayService {
	return &GatewayService{
		configs:  configs,
		registry: registry,
		baseURL:  baseURL,
	}
}

// Gateway resolves the tenant's enabled config for the named provider,
// decrypts its credentials and builds a gateway value. A disable or update
// that lands after this read takes effect on the next request.
func (s *GatewayService) Gateway(tenantID, providerName string) (PaymentGateway, *config.TenantPaymentConfig, error) {
	cfg, err := s.configs.GetEnabledConfig(tenantID, providerName)
	if err != nil {
		return nil, nil, fmt.Errorf("load config for provider %s: %w", providerName, err)
	}
	if cfg == nil {
		return nil, nil, ErrProviderNotConfigured
	}

	raw, err := s.configs.DecryptCredentials(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypt credentials for provider %s: %w", providerName, err)
	}

	gateway, err := s.registry.Build(providerName, GatewayConfig{
		TenantID:             tenantID,
		TestMode:             cfg.TestMode,
		Credentials:          raw,
		MerchantSerialNumber: cfg.MerchantSerialNumber,
		BaseURL:              s.baseURL,
	})
	if err != nil {
		return nil, nil, err
	}

	return gateway, cfg, nil
}
