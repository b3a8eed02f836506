package service

import (
	"context"
	"log/slog"
	"time"
)

const expiryBatchSize = 100

// ExpirySweeper is the push half of deadline enforcement: a background loop
// that moves overdue PENDING transactions to EXPIRED. Reads expire lazily as
// well, so the sweeper only bounds how stale an untouched row can get.
type ExpirySweeper struct {
	transactions *TransactionService
	logger       *slog.Logger
	interval     time.Duration
}

func NewExpirySweeper(transactions *TransactionService, logger *slog.Logger, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{
		transactions: transactions,
		logger:       logger,
		interval:     interval,
	}
}

func (s *ExpirySweeper) Start(ctx context.Context) {
	s.logger.Info("expiry sweeper started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	expired, err := s.transactions.ExpireOverdue(ctx, expiryBatchSize)
	if err != nil {
		s.logger.Error("expiry sweep failed", "error", err)
		return
	}
	if expired > 0 {
		s.logger.Info("expired overdue transactions", "count", expired)
	}
}
