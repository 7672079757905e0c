package config

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/mekvam/paygate/infra/crypto"
)

const webhookSecretLength = 32

// TenantPaymentConfig is one row per (tenant, provider) pair. Credentials is
// an encrypted blob (hex iv:tag:ciphertext) and is never returned decrypted
// through the admin surface. For Vipps the merchant serial number is also
// stored in the clear because the API requires it as a plain request header;
// both copies are kept in sync on every upsert.
type TenantPaymentConfig struct {
	TenantID             string    `json:"tenantId"`
	Provider             string    `json:"provider"`
	Enabled              bool      `json:"enabled"`
	TestMode             bool      `json:"testMode"`
	DisplayName          string    `json:"displayName"`
	SortOrder            int       `json:"sortOrder"`
	Credentials          string    `json:"-"`
	WebhookSecret        string    `json:"-"`
	MerchantSerialNumber string    `json:"merchantSerialNumber,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// UpsertParams carries the fields for creating or updating a tenant payment
// configuration. RawCredentials is the plaintext JSON credential document;
// it is encrypted before it touches the database.
type UpsertParams struct {
	TenantID             string
	Provider             string
	Enabled              bool
	TestMode             bool
	RawCredentials       []byte
	DisplayName          string
	SortOrder            int
	MerchantSerialNumber string
	// WebhookSecret replaces the stored secret when set; otherwise the
	// existing secret is preserved (or generated on first insert).
	WebhookSecret string
}

// PaymentConfigStore persists tenant payment configurations in SQLite with
// credentials encrypted at rest through the vault.
type PaymentConfigStore struct {
	db    *sql.DB
	vault *crypto.Vault
	mu    sync.Mutex
}

// NewPaymentConfigStore initializes the store and its schema
func NewPaymentConfigStore(db *sql.DB, vault *crypto.Vault) (*PaymentConfigStore, error) {
	store := &PaymentConfigStore{db: db, vault: vault}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize payment config schema: %w", err)
	}
	return store, nil
}

func (s *PaymentConfigStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS tenant_payment_configs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		test_mode INTEGER NOT NULL DEFAULT 0,
		display_name TEXT NOT NULL DEFAULT '',
		sort_order INTEGER NOT NULL DEFAULT 0,
		credentials TEXT NOT NULL,
		webhook_secret TEXT NOT NULL,
		merchant_serial_number TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(tenant_id, provider)
	);

	CREATE INDEX IF NOT EXISTS idx_tenant_payment_configs
		ON tenant_payment_configs(tenant_id, provider);
	`

	_, err := s.db.Exec(query)
	return err
}

// Upsert creates or updates the configuration for a (tenant, provider) pair.
// Credentials are encrypted before storage. A webhook secret is generated on
// first insert and preserved across updates unless explicitly replaced.
func (s *PaymentConfigStore) Upsert(p UpsertParams) (*TenantPaymentConfig, error) {
	if p.TenantID == "" {
		return nil, fmt.Errorf("tenant ID cannot be empty")
	}
	if p.Provider == "" {
		return nil, fmt.Errorf("provider cannot be empty")
	}
	if len(p.RawCredentials) == 0 {
		return nil, fmt.Errorf("credentials cannot be empty")
	}

	blob, err := s.vault.Encrypt(p.RawCredentials)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	webhookSecret := p.WebhookSecret
	if webhookSecret == "" {
		// Preserve the existing secret so provider-side webhook registrations
		// survive credential rotations.
		existing, err := s.getLocked(p.TenantID, p.Provider)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			webhookSecret = existing.WebhookSecret
		}
	}
	if webhookSecret == "" {
		webhookSecret, err = crypto.GenerateSecureToken(webhookSecretLength)
		if err != nil {
			return nil, err
		}
	}

	query := `
	INSERT INTO tenant_payment_configs (
		tenant_id, provider, enabled, test_mode, display_name, sort_order,
		credentials, webhook_secret, merchant_serial_number, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(tenant_id, provider)
	DO UPDATE SET
		enabled = excluded.enabled,
		test_mode = excluded.test_mode,
		display_name = excluded.display_name,
		sort_order = excluded.sort_order,
		credentials = excluded.credentials,
		webhook_secret = excluded.webhook_secret,
		merchant_serial_number = excluded.merchant_serial_number,
		updated_at = CURRENT_TIMESTAMP
	`

	_, err = s.db.Exec(query,
		p.TenantID, p.Provider, boolToInt(p.Enabled), boolToInt(p.TestMode),
		p.DisplayName, p.SortOrder, blob, webhookSecret, p.MerchantSerialNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert payment config: %w", err)
	}

	return s.getLocked(p.TenantID, p.Provider)
}

// GetConfig returns the configuration for a (tenant, provider) pair, or nil
// if none exists.
func (s *PaymentConfigStore) GetConfig(tenantID, providerName string) (*TenantPaymentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(tenantID, providerName)
}

// GetEnabledConfig returns the enabled configuration for a (tenant, provider)
// pair. A missing or disabled config returns nil, not an error: callers treat
// nil as "provider unavailable for this tenant".
func (s *PaymentConfigStore) GetEnabledConfig(tenantID, providerName string) (*TenantPaymentConfig, error) {
	cfg, err := s.GetConfig(tenantID, providerName)
	if err != nil {
		return nil, err
	}
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	return cfg, nil
}

func (s *PaymentConfigStore) getLocked(tenantID, providerName string) (*TenantPaymentConfig, error) {
	query := `
	SELECT tenant_id, provider, enabled, test_mode, display_name, sort_order,
	       credentials, webhook_secret, merchant_serial_number, created_at, updated_at
	FROM tenant_payment_configs
	WHERE tenant_id = ? AND provider = ?
	`

	cfg, err := scanConfig(s.db.QueryRow(query, tenantID, providerName))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment config: %w", err)
	}
	return cfg, nil
}

// ListConfigs returns all configurations for a tenant ordered by sort order
func (s *PaymentConfigStore) ListConfigs(tenantID string) ([]*TenantPaymentConfig, error) {
	return s.list(tenantID, false)
}

// ListEnabled returns the tenant's enabled configurations ordered by sort
// order, for checkout UIs.
func (s *PaymentConfigStore) ListEnabled(tenantID string) ([]*TenantPaymentConfig, error) {
	return s.list(tenantID, true)
}

func (s *PaymentConfigStore) list(tenantID string, enabledOnly bool) ([]*TenantPaymentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
	SELECT tenant_id, provider, enabled, test_mode, display_name, sort_order,
	       credentials, webhook_secret, merchant_serial_number, created_at, updated_at
	FROM tenant_payment_configs
	WHERE tenant_id = ?
	`
	if enabledOnly {
		query += " AND enabled = 1"
	}
	query += " ORDER BY sort_order, provider"

	rows, err := s.db.Query(query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment configs: %w", err)
	}
	defer rows.Close()

	var configs []*TenantPaymentConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment config: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// SetEnabled toggles a configuration without touching its credentials
func (s *PaymentConfigStore) SetEnabled(tenantID, providerName string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE tenant_payment_configs
		SET enabled = ?, updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ? AND provider = ?`,
		boolToInt(enabled), tenantID, providerName,
	)
	if err != nil {
		return fmt.Errorf("failed to toggle payment config: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("no configuration found for tenant: %s, provider: %s", tenantID, providerName)
	}
	return nil
}

// Delete removes a configuration
func (s *PaymentConfigStore) Delete(tenantID, providerName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(
		`DELETE FROM tenant_payment_configs WHERE tenant_id = ? AND provider = ?`,
		tenantID, providerName,
	)
	if err != nil {
		return fmt.Errorf("failed to delete payment config: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("no configuration found for tenant: %s, provider: %s", tenantID, providerName)
	}
	return nil
}

// DecryptCredentials returns the decrypted raw credential JSON for a config
func (s *PaymentConfigStore) DecryptCredentials(cfg *TenantPaymentConfig) ([]byte, error) {
	return s.vault.Decrypt(cfg.Credentials)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (*TenantPaymentConfig, error) {
	var cfg TenantPaymentConfig
	var enabled, testMode int
	err := row.Scan(
		&cfg.TenantID, &cfg.Provider, &enabled, &testMode, &cfg.DisplayName,
		&cfg.SortOrder, &cfg.Credentials, &cfg.WebhookSecret,
		&cfg.MerchantSerialNumber, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cfg.Enabled = enabled != 0
	cfg.TestMode = testMode != 0
	return &cfg, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
