package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fedpay/payment-core/internal/domain"
)

const transactionColumns = `id, external_id, protocol, provider, payment_method,
	amount, status, entity_type, entity_id, metadata, expires_at, created_at, updated_at`

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// CreateWithProtocol persists a new transaction, its protocol row, and the
// first history entry in a single SQL transaction. A protocol string collision
// surfaces as ErrProtocolCollision so the caller can regenerate and retry.
func (r *TransactionRepository) CreateWithProtocol(ctx context.Context, t *domain.Transaction, description string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("CreateWithProtocol: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := r.Create(ctx, tx, t); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("CreateWithProtocol: %w", domain.ErrProtocolCollision)
		}
		return fmt.Errorf("CreateWithProtocol: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO protocols (protocol, transaction_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		t.Protocol, t.ID, t.Status, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("CreateWithProtocol: %w", domain.ErrProtocolCollision)
		}
		return fmt.Errorf("CreateWithProtocol: %w", err)
	}

	history := &domain.TransactionHistory{
		ID:            uuid.New(),
		TransactionID: t.ID,
		Status:        t.Status,
		Description:   description,
		Metadata:      t.Metadata,
		CreatedAt:     t.CreatedAt,
	}
	if err := r.InsertHistory(ctx, tx, history); err != nil {
		return fmt.Errorf("CreateWithProtocol: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("CreateWithProtocol: commit: %w", err)
	}
	return nil
}

// ApplyTransition is the compare-and-set the state machine relies on: the
// status only changes if the row still holds the expected prior status, and
// the history row is appended in the same SQL transaction. Returns false when
// the guard did not match (lost race or stale redelivery) with no rows
// written.
func (r *TransactionRepository) ApplyTransition(ctx context.Context, id uuid.UUID, expected, next domain.PaymentStatus, description string, metadata map[string]string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("ApplyTransition: begin tx: %w", err)
	}
	defer tx.Rollback()

	ok, err := r.UpdateStatusCAS(ctx, tx, id, expected, next)
	if err != nil {
		return false, fmt.Errorf("ApplyTransition: %w", err)
	}
	if !ok {
		return false, nil
	}

	history := &domain.TransactionHistory{
		ID:            uuid.New(),
		TransactionID: id,
		Status:        next,
		Description:   description,
		Metadata:      metadata,
		CreatedAt:     time.Now().UTC(),
	}
	if err := r.InsertHistory(ctx, tx, history); err != nil {
		return false, fmt.Errorf("ApplyTransition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("ApplyTransition: commit: %w", err)
	}
	return true, nil
}

func (r *TransactionRepository) Create(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error {
	metadata, err := marshalMetadata(t.Metadata)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transactions (
			id, external_id, protocol, provider, payment_method,
			amount, status, entity_type, entity_id, metadata, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.ID, t.ExternalID, t.Protocol, t.Provider, t.PaymentMethod,
		t.Amount, t.Status, t.EntityType, t.EntityID, metadata, t.ExpiresAt, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return t, nil
}

func (r *TransactionRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE external_id = $1`, externalID,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByExternalID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByExternalID: %w", err)
	}
	return t, nil
}

func (r *TransactionRepository) GetByProtocol(ctx context.Context, protocol string) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE protocol = $1`, protocol,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByProtocol: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByProtocol: %w", err)
	}
	return t, nil
}

// UpdateStatusCAS performs the conditional status update the state machine
// relies on: the row only changes if it is still in the expected prior status.
// Returns false when the guard did not match, which callers treat as a lost
// race or a stale redelivery, never as an error.
func (r *TransactionRepository) UpdateStatusCAS(ctx context.Context, tx *sql.Tx, id uuid.UUID, expected, next domain.PaymentStatus) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE transactions SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3`,
		next, id, expected,
	)
	if err != nil {
		return false, fmt.Errorf("UpdateStatusCAS: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("UpdateStatusCAS: rows affected: %w", err)
	}
	return rows == 1, nil
}

// SetExternalID assigns the provider id exactly once. Re-assigning the same
// value is a no-op; a different value is ErrExternalIDTaken.
func (r *TransactionRepository) SetExternalID(ctx context.Context, id uuid.UUID, externalID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET external_id = $1, updated_at = now()
		WHERE id = $2 AND external_id IS NULL`,
		externalID, id,
	)
	if err != nil {
		return fmt.Errorf("SetExternalID: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SetExternalID: rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("SetExternalID: %w", err)
	}
	if current.ExternalID != nil && *current.ExternalID == externalID {
		return nil
	}
	return fmt.Errorf("SetExternalID: %w", domain.ErrExternalIDTaken)
}

// MergeMetadata folds provider artifacts into the metadata bag without
// clobbering existing keys written by earlier steps.
func (r *TransactionRepository) MergeMetadata(ctx context.Context, id uuid.UUID, metadata map[string]string) error {
	raw, err := marshalMetadata(metadata)
	if err != nil {
		return fmt.Errorf("MergeMetadata: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET metadata = metadata || $1::jsonb, updated_at = now()
		WHERE id = $2`,
		raw, id,
	)
	if err != nil {
		return fmt.Errorf("MergeMetadata: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MergeMetadata: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("MergeMetadata: %w", domain.ErrNotFound)
	}
	return nil
}

// ListOverdue returns PENDING transactions whose deadline has passed, for the
// expiry sweeper.
func (r *TransactionRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE status = $1 AND expires_at IS NOT NULL AND expires_at < $2
		ORDER BY expires_at LIMIT $3`,
		domain.PaymentStatusPending, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListOverdue: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ListOverdue: scan: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListOverdue: rows: %w", err)
	}
	return out, nil
}

func (r *TransactionRepository) InsertHistory(ctx context.Context, tx *sql.Tx, h *domain.TransactionHistory) error {
	metadata, err := marshalMetadata(h.Metadata)
	if err != nil {
		return fmt.Errorf("InsertHistory: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transaction_history (
			id, transaction_id, status, description, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		h.ID, h.TransactionID, h.Status, h.Description, metadata, h.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("InsertHistory: %w", err)
	}
	return nil
}

func (r *TransactionRepository) ListHistory(ctx context.Context, transactionID uuid.UUID) ([]domain.TransactionHistory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, transaction_id, status, description, metadata, created_at
		FROM transaction_history WHERE transaction_id = $1 ORDER BY created_at`,
		transactionID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListHistory: %w", err)
	}
	defer rows.Close()

	var out []domain.TransactionHistory
	for rows.Next() {
		var h domain.TransactionHistory
		var metadata []byte
		if err := rows.Scan(&h.ID, &h.TransactionID, &h.Status, &h.Description, &metadata, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListHistory: scan: %w", err)
		}
		if h.Metadata, err = unmarshalMetadata(metadata); err != nil {
			return nil, fmt.Errorf("ListHistory: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListHistory: rows: %w", err)
	}
	return out, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var t domain.Transaction
	var metadata []byte

	err := s.Scan(
		&t.ID, &t.ExternalID, &t.Protocol, &t.Provider, &t.PaymentMethod,
		&t.Amount, &t.Status, &t.EntityType, &t.EntityID, &metadata, &t.ExpiresAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if t.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, err
	}
	return &t, nil
}
