package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/fedpay/payment-core/internal/domain"
)

type ProtocolRepository struct {
	db *sql.DB
}

func NewProtocolRepository(db *sql.DB) *ProtocolRepository {
	return &ProtocolRepository{db: db}
}

// Create inserts the protocol row. A unique violation on the protocol string
// surfaces as ErrProtocolCollision so the generator can retry with a fresh
// suffix instead of silently overwriting.
func (r *ProtocolRepository) Create(ctx context.Context, tx *sql.Tx, p *domain.Protocol) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO protocols (protocol, transaction_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		p.Protocol, p.TransactionID, p.Status, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrProtocolCollision)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *ProtocolRepository) GetByProtocol(ctx context.Context, protocol string) (*domain.Protocol, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT protocol, transaction_id, status, created_at, updated_at
		FROM protocols WHERE protocol = $1`,
		protocol,
	)

	var p domain.Protocol
	err := row.Scan(&p.Protocol, &p.TransactionID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByProtocol: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByProtocol: %w", err)
	}
	return &p, nil
}

func (r *ProtocolRepository) UpdateStatus(ctx context.Context, protocol string, status domain.PaymentStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE protocols SET status = $1, updated_at = now() WHERE protocol = $2`,
		status, protocol,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
