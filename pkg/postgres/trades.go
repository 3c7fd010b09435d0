package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/voreskerne/frivillig/pkg/db"
)

const tradeColumns = `id, shift_role_id, offering_user_id, accepting_user_id, status, created_at, resolved_at`

// GetTrade retrieves a single trade by id
func (d *DB) GetTrade(ctx context.Context, tradeID string) (*db.ShiftTrade, error) {
	row := d.pool.QueryRow(ctx, `SELECT `+tradeColumns+` FROM shift_trades WHERE id = $1`, tradeID)
	trade, err := scanTrade(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("trade %s: %w", tradeID, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return trade, nil
}

// ListTrades retrieves trades with the given status, or all trades if status is empty
func (d *DB) ListTrades(ctx context.Context, status db.TradeStatus) ([]db.ShiftTrade, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT `+tradeColumns+` FROM shift_trades
		WHERE $1 = '' OR status = $1
		ORDER BY created_at, id
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []db.ShiftTrade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, *trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	return trades, nil
}

// CreateTrade records a pending offer. The slot row is locked while the
// holder and the one-pending-trade rule are checked.
func (d *DB) CreateTrade(ctx context.Context, trade *db.ShiftTrade) error {
	return d.inTx(ctx, func(tx pgx.Tx) error {
		var holder *string
		err := tx.QueryRow(ctx, `SELECT user_id FROM shift_roles WHERE id = $1 FOR UPDATE`, trade.ShiftRoleID).Scan(&holder)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("slot %s: %w", trade.ShiftRoleID, db.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to lock slot: %w", err)
		}
		if holder == nil || *holder != trade.OfferingUserID {
			return fmt.Errorf("slot %s: %w", trade.ShiftRoleID, db.ErrNotHolder)
		}

		if trade.CreatedAt.IsZero() {
			trade.CreatedAt = time.Now().UTC()
		}
		trade.Status = db.TradeStatusPending
		trade.AcceptingUserID = nil
		trade.ResolvedAt = nil

		_, err = tx.Exec(ctx, `
			INSERT INTO shift_trades (id, shift_role_id, offering_user_id, status, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, trade.ID, trade.ShiftRoleID, trade.OfferingUserID, string(trade.Status), trade.CreatedAt)
		if uniqueConstraint(err) == pendingTradeIndex {
			return fmt.Errorf("slot %s: %w", trade.ShiftRoleID, db.ErrDuplicatePendingTrade)
		}
		if err != nil {
			return fmt.Errorf("failed to insert trade: %w", err)
		}
		return nil
	})
}

// CompleteTrade marks a pending trade completed and moves the slot from the
// offering user to acceptingUserID. Both writes commit together or not at all.
func (d *DB) CompleteTrade(ctx context.Context, tradeID, acceptingUserID string) (*db.ShiftTrade, *db.ShiftRole, error) {
	var trade *db.ShiftTrade
	var slot *db.ShiftRole
	err := d.inTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE shift_trades
			SET status = 'COMPLETED', accepting_user_id = $2, resolved_at = NOW()
			WHERE id = $1 AND status = 'PENDING'
			RETURNING `+tradeColumns, tradeID, acceptingUserID)
		var err error
		trade, err = scanTrade(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return tradeMissOrState(ctx, tx, tradeID)
		}
		if err != nil {
			return fmt.Errorf("failed to complete trade: %w", err)
		}
		if trade.OfferingUserID == acceptingUserID {
			return fmt.Errorf("trade %s: %w", tradeID, db.ErrSelfTrade)
		}

		row = tx.QueryRow(ctx, `
			UPDATE shift_roles SET user_id = $2
			WHERE id = $1 AND user_id = $3
			RETURNING `+slotColumns, trade.ShiftRoleID, acceptingUserID, trade.OfferingUserID)
		slot, err = scanSlot(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("slot %s no longer held by offering user: %w", trade.ShiftRoleID, db.ErrInvalidState)
		}
		if err != nil {
			return fmt.Errorf("failed to transfer slot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return trade, slot, nil
}

// CancelTrade marks a pending trade cancelled. The slot is untouched.
func (d *DB) CancelTrade(ctx context.Context, tradeID string) (*db.ShiftTrade, error) {
	var trade *db.ShiftTrade
	err := d.inTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE shift_trades SET status = 'CANCELLED', resolved_at = NOW()
			WHERE id = $1 AND status = 'PENDING'
			RETURNING `+tradeColumns, tradeID)
		var err error
		trade, err = scanTrade(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return tradeMissOrState(ctx, tx, tradeID)
		}
		if err != nil {
			return fmt.Errorf("failed to cancel trade: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trade, nil
}

func tradeMissOrState(ctx context.Context, tx pgx.Tx, tradeID string) error {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM shift_trades WHERE id = $1`, tradeID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("trade %s: %w", tradeID, db.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read trade status: %w", err)
	}
	return fmt.Errorf("trade %s is %s: %w", tradeID, status, db.ErrInvalidState)
}

func scanTrade(row pgx.Row) (*db.ShiftTrade, error) {
	var t db.ShiftTrade
	var status string
	if err := row.Scan(&t.ID, &t.ShiftRoleID, &t.OfferingUserID, &t.AcceptingUserID, &status, &t.CreatedAt, &t.ResolvedAt); err != nil {
		return nil, err
	}
	t.Status = db.TradeStatus(status)
	return &t, nil
}
