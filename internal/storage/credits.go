package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tailorjd/tailorjd-be/internal/domain"
)

// Balance returns the user's current credit balance. The read is advisory:
// a concurrent mutation can land between this check and any later debit.
func (s *Storage) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	query := `SELECT credit_balance FROM users WHERE id = $1`

	err := s.db.GetContext(ctx, &balance, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to read credit balance: %w", err)
	}

	return balance, nil
}

// Credit atomically increments the user's balance and returns the new value.
func (s *Storage) Credit(ctx context.Context, userID string, amount int, reason string) (int, error) {
	var balance int
	query := `
		UPDATE users
		SET credit_balance = credit_balance + $1
		WHERE id = $2
		RETURNING credit_balance
	`

	err := s.db.QueryRowContext(ctx, query, amount, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to credit user: %w", err)
	}

	s.logActivity(ctx, userID, fmt.Sprintf("Added %d credits. %s", amount, reason))
	return balance, nil
}

// Debit atomically decrements the user's balance and returns the new value.
// The decrement is unguarded: the caller is expected to have checked the
// balance already, and a concurrent drain can push the result below zero.
// The single-statement decrement is the atomicity boundary that prevents
// lost updates; it is not a floor clamp.
func (s *Storage) Debit(ctx context.Context, userID string, amount int, reason string) (int, error) {
	var balance int
	query := `
		UPDATE users
		SET credit_balance = credit_balance - $1
		WHERE id = $2
		RETURNING credit_balance
	`

	err := s.db.QueryRowContext(ctx, query, amount, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to debit user: %w", err)
	}

	s.logActivity(ctx, userID, fmt.Sprintf("Used %d credits. %s", amount, reason))
	return balance, nil
}

// DebitGuarded decrements the balance only when it covers the amount,
// failing with ErrInsufficientCredits otherwise. Used by the direct
// spend endpoint, where the check and the decrement must be one statement.
func (s *Storage) DebitGuarded(ctx context.Context, userID string, amount int, reason string) (int, error) {
	var balance int
	query := `
		UPDATE users
		SET credit_balance = credit_balance - $1
		WHERE id = $2
		  AND credit_balance >= $1
		RETURNING credit_balance
	`

	err := s.db.QueryRowContext(ctx, query, amount, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Distinguish a missing user from an uncovered balance.
			if _, balErr := s.Balance(ctx, userID); errors.Is(balErr, domain.ErrUserNotFound) {
				return 0, domain.ErrUserNotFound
			}
			return 0, domain.ErrInsufficientCredits
		}
		return 0, fmt.Errorf("failed to debit user: %w", err)
	}

	s.logActivity(ctx, userID, fmt.Sprintf("Used %d credits. %s", amount, reason))
	return balance, nil
}

// logActivity records a ledger mutation for support and forensics. It is a
// side channel: failures are logged, never surfaced to the caller.
func (s *Storage) logActivity(ctx context.Context, userID, action string) {
	query := `
		INSERT INTO activity_log (user_id, action, activity_type, created_at)
		VALUES ($1, $2, 'LOG', NOW())
	`

	if _, err := s.db.ExecContext(ctx, query, userID, action); err != nil {
		s.logger.Error("Failed to write activity log entry",
			slog.String("user_id", userID),
			slog.String("action", action),
			slog.Any("error", err),
		)
	}
}
