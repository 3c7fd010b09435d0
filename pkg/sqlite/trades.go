package sqlite

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/voreskerne/frivillig/pkg/db"
)

// GetTrade retrieves a single trade by id
func (d *DB) GetTrade(ctx context.Context, tradeID string) (*db.ShiftTrade, error) {
	return getTrade(d.db.WithContext(ctx), tradeID)
}

// ListTrades retrieves trades with the given status, or all trades if status is empty
func (d *DB) ListTrades(ctx context.Context, status db.TradeStatus) ([]db.ShiftTrade, error) {
	q := d.db.WithContext(ctx).Model(&db.ShiftTrade{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var trades []db.ShiftTrade
	if err := q.Order("created_at, id").Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	return trades, nil
}

// CreateTrade records a pending offer after re-checking the holder and the
// one-pending-trade rule inside the transaction.
func (d *DB) CreateTrade(ctx context.Context, trade *db.ShiftTrade) error {
	return d.inTx(ctx, func(tx *gorm.DB) error {
		slot, err := getSlot(tx, trade.ShiftRoleID)
		if err != nil {
			return err
		}
		if !slot.IsHeldBy(trade.OfferingUserID) {
			return fmt.Errorf("slot %s: %w", trade.ShiftRoleID, db.ErrNotHolder)
		}

		trade.Status = db.TradeStatusPending
		trade.AcceptingUserID = nil
		trade.ResolvedAt = nil
		err = tx.Create(trade).Error
		if isUniqueViolation(err, "shift_trades.shift_role_id") {
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
	err := d.inTx(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&db.ShiftTrade{}).
			Where("id = ? AND status = ?", tradeID, db.TradeStatusPending).
			Updates(map[string]any{
				"status":            db.TradeStatusCompleted,
				"accepting_user_id": acceptingUserID,
				"resolved_at":       time.Now().UTC(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to complete trade: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return tradeMissOrState(tx, tradeID)
		}

		var err error
		if trade, err = getTrade(tx, tradeID); err != nil {
			return err
		}
		if trade.OfferingUserID == acceptingUserID {
			return fmt.Errorf("trade %s: %w", tradeID, db.ErrSelfTrade)
		}

		res = tx.Model(&db.ShiftRole{}).
			Where("id = ? AND user_id = ?", trade.ShiftRoleID, trade.OfferingUserID).
			Update("user_id", acceptingUserID)
		if res.Error != nil {
			return fmt.Errorf("failed to transfer slot: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("slot %s no longer held by offering user: %w", trade.ShiftRoleID, db.ErrInvalidState)
		}

		slot, err = getSlot(tx, trade.ShiftRoleID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return trade, slot, nil
}

// CancelTrade marks a pending trade cancelled. The slot is untouched.
func (d *DB) CancelTrade(ctx context.Context, tradeID string) (*db.ShiftTrade, error) {
	var trade *db.ShiftTrade
	err := d.inTx(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&db.ShiftTrade{}).
			Where("id = ? AND status = ?", tradeID, db.TradeStatusPending).
			Updates(map[string]any{"status": db.TradeStatusCancelled, "resolved_at": time.Now().UTC()})
		if res.Error != nil {
			return fmt.Errorf("failed to cancel trade: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return tradeMissOrState(tx, tradeID)
		}
		var err error
		trade, err = getTrade(tx, tradeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return trade, nil
}

func getTrade(q *gorm.DB, tradeID string) (*db.ShiftTrade, error) {
	var trade db.ShiftTrade
	err := q.Where("id = ?", tradeID).First(&trade).Error
	if notFound(err) {
		return nil, fmt.Errorf("trade %s: %w", tradeID, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return &trade, nil
}

func tradeMissOrState(tx *gorm.DB, tradeID string) error {
	trade, err := getTrade(tx, tradeID)
	if err != nil {
		return err
	}
	return fmt.Errorf("trade %s is %s: %w", tradeID, trade.Status, db.ErrInvalidState)
}
