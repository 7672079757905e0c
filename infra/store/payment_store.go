package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mekvam/paygate/provider"
)

// ErrPaymentNotFound means a provider external identifier resolved to no
// stored payment. Webhooks carrying unknown identifiers are logged and
// acknowledged, never turned into new payments.
var ErrPaymentNotFound = errors.New("payment not found")

// Order is the order record the payment layer cascades status into. The rest
// of the order domain lives outside this service; only the status field and
// paid-at stamp are mutated here.
type Order struct {
	ID        string               `json:"id"`
	TenantID  string               `json:"tenantId"`
	Status    provider.OrderStatus `json:"status"`
	PaidAt    *time.Time           `json:"paidAt,omitempty"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// PaymentStore persists payments, their order cascade and the audit trail.
// Concurrent transitions are serialized by the conditional updates themselves,
// so the store holds no locks of its own.
type PaymentStore struct {
	db *sql.DB
}

// NewPaymentStore initializes the store and its schema
func NewPaymentStore(db *sql.DB) (*PaymentStore, error) {
	store := &PaymentStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize payment schema: %w", err)
	}
	return store, nil
}

func (s *PaymentStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		order_id TEXT NOT NULL DEFAULT '',
		amount REAL NOT NULL,
		currency TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'order',
		provider TEXT NOT NULL,
		method TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		description TEXT NOT NULL DEFAULT '',
		external_id TEXT NOT NULL,
		provider_response TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		paid_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(provider, external_id)
	);

	CREATE INDEX IF NOT EXISTS idx_payments_external ON payments(provider, external_id);
	CREATE INDEX IF NOT EXISTS idx_payments_tenant ON payments(tenant_id);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		paid_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS audit_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(query)
	return err
}

// CreatePayment persists a new payment. Status defaults to pending and an id
// is generated when absent. The external identifier must be unique per
// provider; it is the sole correlation key for webhook reconciliation.
func (s *PaymentStore) CreatePayment(p *provider.Payment) error {
	if p.ExternalID == "" {
		return fmt.Errorf("payment external ID cannot be empty")
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = provider.StatusPending
	}

	return retryOperation(func() error {
		query := `
		INSERT INTO payments (
			id, tenant_id, user_id, order_id, amount, currency, type,
			provider, method, status, description, external_id, provider_response
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`

		_, err := s.db.Exec(query,
			p.ID, p.TenantID, p.UserID, p.OrderID, p.Amount, p.Currency,
			string(p.Type), p.Provider, p.Method, string(p.Status),
			p.Description, p.ExternalID, p.ProviderResponse,
		)
		if err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}
		return nil
	}, 3)
}

// GetPaymentByExternalID resolves a payment by its provider external
// identifier. Returns ErrPaymentNotFound when no match exists.
func (s *PaymentStore) GetPaymentByExternalID(providerName, externalID string) (*provider.Payment, error) {
	query := `
	SELECT id, tenant_id, user_id, order_id, amount, currency, type,
	       provider, method, status, description, external_id,
	       provider_response, error_message, paid_at, created_at, updated_at
	FROM payments
	WHERE provider = ? AND external_id = ?
	`

	p, err := scanPayment(s.db.QueryRow(query, providerName, externalID))
	if err == sql.ErrNoRows {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return p, nil
}

// ApplyTransition moves the payment identified by (provider, externalID) to
// target with a single conditional UPDATE, so concurrent webhook deliveries
// cannot both apply the same transition. Returns applied=false (and the
// current record) when the payment is already terminal or the transition
// would move it backward; that is not an error, providers retry aggressively
// and duplicates must stay silent. The triggering provider payload is
// persisted, and paid-at is stamped only when the payment newly completes.
func (s *PaymentStore) ApplyTransition(providerName, externalID string, target provider.PaymentStatus, rawPayload, errorMessage string) (bool, *provider.Payment, error) {
	allowedFrom := provider.AllowedFrom(target)
	if len(allowedFrom) == 0 {
		return false, nil, fmt.Errorf("invalid transition target status '%s'", target)
	}

	placeholders := make([]string, len(allowedFrom))
	args := []any{string(target), rawPayload, errorMessage, string(target), providerName, externalID}
	for i, from := range allowedFrom {
		placeholders[i] = "?"
		args = append(args, string(from))
	}

	var applied bool
	err := retryOperation(func() error {
		query := fmt.Sprintf(`
		UPDATE payments
		SET status = ?,
		    provider_response = ?,
		    error_message = ?,
		    paid_at = CASE WHEN ? = 'completed' THEN CURRENT_TIMESTAMP ELSE paid_at END,
		    updated_at = CURRENT_TIMESTAMP
		WHERE provider = ? AND external_id = ? AND status IN (%s)
		`, strings.Join(placeholders, ", "))

		result, err := s.db.Exec(query, args...)
		if err != nil {
			return fmt.Errorf("failed to apply payment transition: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		applied = affected > 0
		return nil
	}, 3)
	if err != nil {
		return false, nil, err
	}

	payment, err := s.GetPaymentByExternalID(providerName, externalID)
	if err != nil {
		return false, nil, err
	}

	return applied, payment, nil
}

// CreateOrder persists an order record
func (s *PaymentStore) CreateOrder(o *Order) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.Status == "" {
		o.Status = provider.OrderPending
	}

	_, err := s.db.Exec(
		`INSERT INTO orders (id, tenant_id, status) VALUES (?, ?, ?)`,
		o.ID, o.TenantID, string(o.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetOrder loads an order by id
func (s *PaymentStore) GetOrder(id string) (*Order, error) {
	var o Order
	var status string
	var paidAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT id, tenant_id, status, paid_at, created_at, updated_at FROM orders WHERE id = ?`, id,
	).Scan(&o.ID, &o.TenantID, &status, &paidAt, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	o.Status = provider.OrderStatus(status)
	if paidAt.Valid {
		o.PaidAt = &paidAt.Time
	}
	return &o, nil
}

// CascadeOrderStatus moves an order to target unless it already holds it, so
// repeated webhook deliveries cascade at most once. markPaid stamps paid-at
// on the first transition only.
func (s *PaymentStore) CascadeOrderStatus(orderID string, target provider.OrderStatus, markPaid bool) (bool, error) {
	var applied bool
	err := retryOperation(func() error {
		result, err := s.db.Exec(`
		UPDATE orders
		SET status = ?,
		    paid_at = CASE WHEN ? AND paid_at IS NULL THEN CURRENT_TIMESTAMP ELSE paid_at END,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status != ?`,
			string(target), markPaid, orderID, string(target),
		)
		if err != nil {
			return fmt.Errorf("failed to cascade order status: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		applied = affected > 0
		return nil
	}, 3)

	return applied, err
}

// RecordAudit appends an audit trail entry. Callers treat failures as
// best-effort: an audit write must never roll back the payment or order
// transition it describes.
func (s *PaymentStore) RecordAudit(tenantID, userID, action, description string) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_logs (tenant_id, user_id, action, description) VALUES (?, ?, ?, ?)`,
		tenantID, userID, action, description,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// CountAuditEntries returns the number of audit entries for a tenant
func (s *PaymentStore) CountAuditEntries(tenantID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM audit_logs WHERE tenant_id = ?`, tenantID).Scan(&count)
	return count, err
}

func scanPayment(row interface{ Scan(dest ...any) error }) (*provider.Payment, error) {
	var p provider.Payment
	var pType, status string
	var paidAt sql.NullTime
	err := row.Scan(
		&p.ID, &p.TenantID, &p.UserID, &p.OrderID, &p.Amount, &p.Currency,
		&pType, &p.Provider, &p.Method, &status, &p.Description,
		&p.ExternalID, &p.ProviderResponse, &p.ErrorMessage,
		&paidAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Type = provider.PaymentType(pType)
	p.Status = provider.PaymentStatus(status)
	if paidAt.Valid {
		p.PaidAt = &paidAt.Time
	}
	return &p, nil
}
