package storage

import (
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/tailorjd/tailorjd-be/shared/postgresql"
)

// Storage handles all database operations: job records, document
// collections, and the credit ledger.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(pg *postgresql.Client, logger *slog.Logger) *Storage {
	return &Storage{
		db:     pg.GetDB(),
		logger: logger,
	}
}
