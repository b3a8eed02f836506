package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fedpay/payment-core/internal/domain"
)

// SeedTransaction inserts a transaction with its protocol row and the initial
// history entry, mirroring what the creation path writes.
func SeedTransaction(t *testing.T, db *sql.DB, mutate func(*domain.Transaction)) *domain.Transaction {
	t.Helper()

	now := time.Now().UTC()
	tx := &domain.Transaction{
		ID:            uuid.New(),
		Protocol:      "FED2026-" + uuid.NewString()[:8],
		Provider:      domain.ProviderMercadoPago,
		PaymentMethod: domain.PaymentMethodPix,
		Amount:        15000,
		Status:        domain.PaymentStatusPending,
		EntityType:    domain.EntityTypeAthleteMembership,
		EntityID:      uuid.New(),
		Metadata:      map[string]string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if mutate != nil {
		mutate(tx)
	}

	_, err := db.Exec(
		`INSERT INTO transactions (id, external_id, protocol, provider, payment_method,
			amount, status, entity_type, entity_id, metadata, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, '{}', $10, $11, $12)`,
		tx.ID, tx.ExternalID, tx.Protocol, tx.Provider, tx.PaymentMethod,
		tx.Amount, tx.Status, tx.EntityType, tx.EntityID, tx.ExpiresAt, tx.CreatedAt, tx.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	_, err = db.Exec(
		`INSERT INTO protocols (protocol, transaction_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		tx.Protocol, tx.ID, tx.Status, tx.CreatedAt, tx.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed protocol: %v", err)
	}

	_, err = db.Exec(
		`INSERT INTO transaction_history (id, transaction_id, status, description, metadata, created_at)
		 VALUES ($1, $2, $3, 'payment created', '{}', $4)`,
		uuid.New(), tx.ID, tx.Status, tx.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed transaction history: %v", err)
	}

	return tx
}

func GetTransactionStatus(t *testing.T, db *sql.DB, id uuid.UUID) domain.PaymentStatus {
	t.Helper()

	var status domain.PaymentStatus
	err := db.QueryRow(`SELECT status FROM transactions WHERE id = $1`, id).Scan(&status)
	if err != nil {
		t.Fatalf("get transaction status %s: %v", id, err)
	}
	return status
}

func GetProtocolStatus(t *testing.T, db *sql.DB, protocol string) domain.PaymentStatus {
	t.Helper()

	var status domain.PaymentStatus
	err := db.QueryRow(`SELECT status FROM protocols WHERE protocol = $1`, protocol).Scan(&status)
	if err != nil {
		t.Fatalf("get protocol status %s: %v", protocol, err)
	}
	return status
}

func CountHistoryEntries(t *testing.T, db *sql.DB, transactionID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM transaction_history WHERE transaction_id = $1`, transactionID).Scan(&count)
	if err != nil {
		t.Fatalf("count history entries for transaction %s: %v", transactionID, err)
	}
	return count
}
