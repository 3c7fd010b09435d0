package sqlite

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/voreskerne/frivillig/pkg/db"
)

// GetSlot retrieves a single slot by id
func (d *DB) GetSlot(ctx context.Context, slotID string) (*db.ShiftRole, error) {
	return getSlot(d.db.WithContext(ctx), slotID)
}

// ListSlotsByShift retrieves all slots belonging to a shift
func (d *DB) ListSlotsByShift(ctx context.Context, shiftID string) ([]db.ShiftRole, error) {
	var slots []db.ShiftRole
	err := d.db.WithContext(ctx).Where("shift_id = ?", shiftID).Order("role_name, id").Find(&slots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	return slots, nil
}

// CreateSlots adds slots to an existing shift
func (d *DB) CreateSlots(ctx context.Context, shiftID string, slots []db.ShiftRole) error {
	return d.inTx(ctx, func(tx *gorm.DB) error {
		found, err := exists(tx, &db.Shift{}, shiftID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("shift %s: %w", shiftID, db.ErrNotFound)
		}
		return insertSlots(tx, shiftID, slots)
	})
}

// ClaimSlot assigns a vacant slot to userID. It fails with ErrSlotUnavailable
// if the slot is already held at the moment of the write.
func (d *DB) ClaimSlot(ctx context.Context, slotID, userID string) (*db.ShiftRole, error) {
	var slot *db.ShiftRole
	err := d.inTx(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&db.ShiftRole{}).
			Where("id = ? AND user_id IS NULL", slotID).
			Update("user_id", userID)
		if res.Error != nil {
			return fmt.Errorf("failed to claim slot: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return slotMissOrState(tx, slotID, db.ErrSlotUnavailable)
		}
		var err error
		slot, err = getSlot(tx, slotID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// ReleaseSlot vacates a slot held by userID and cancels any pending trade on it
func (d *DB) ReleaseSlot(ctx context.Context, slotID, userID string) (*db.ReleaseOutcome, error) {
	outcome := &db.ReleaseOutcome{}
	err := d.inTx(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&db.ShiftRole{}).
			Where("id = ? AND user_id = ?", slotID, userID).
			Update("user_id", nil)
		if res.Error != nil {
			return fmt.Errorf("failed to release slot: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return slotMissOrState(tx, slotID, db.ErrNotHolder)
		}

		var err error
		if outcome.CancelledTradeIDs, err = cancelPendingTrades(tx, slotID); err != nil {
			return err
		}
		outcome.Slot, err = getSlot(tx, slotID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// UpdateSlot applies an admin edit. A change of holder voids any pending trade.
func (d *DB) UpdateSlot(ctx context.Context, slotID string, update db.SlotUpdate) (*db.ShiftRole, error) {
	var updated *db.ShiftRole
	err := d.inTx(ctx, func(tx *gorm.DB) error {
		current, err := getSlot(tx, slotID)
		if err != nil {
			return err
		}

		changes := map[string]any{}
		if update.RoleName != nil {
			changes["role_name"] = *update.RoleName
		}
		if update.ClearUser {
			changes["user_id"] = nil
		} else if update.UserID != nil {
			changes["user_id"] = *update.UserID
		}
		if len(changes) > 0 {
			if err := tx.Model(&db.ShiftRole{}).Where("id = ?", slotID).Updates(changes).Error; err != nil {
				return fmt.Errorf("failed to update slot: %w", err)
			}
		}

		if updated, err = getSlot(tx, slotID); err != nil {
			return err
		}
		if db.HolderChanged(current.UserID, updated.UserID) {
			if _, err := cancelPendingTrades(tx, slotID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteSlot removes a vacant slot and its trade history. Held slots are rejected with ErrConflict.
func (d *DB) DeleteSlot(ctx context.Context, slotID string) error {
	return d.inTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("shift_role_id = ?", slotID).Delete(&db.ShiftTrade{}).Error; err != nil {
			return fmt.Errorf("failed to delete slot trades: %w", err)
		}
		res := tx.Where("id = ? AND user_id IS NULL", slotID).Delete(&db.ShiftRole{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete slot: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return slotMissOrState(tx, slotID, db.ErrConflict)
		}
		return nil
	})
}

func getSlot(q *gorm.DB, slotID string) (*db.ShiftRole, error) {
	var slot db.ShiftRole
	err := q.Where("id = ?", slotID).First(&slot).Error
	if notFound(err) {
		return nil, fmt.Errorf("slot %s: %w", slotID, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return &slot, nil
}

func insertSlots(tx *gorm.DB, shiftID string, slots []db.ShiftRole) error {
	for i := range slots {
		slots[i].ShiftID = shiftID
		if err := tx.Create(&slots[i]).Error; err != nil {
			return fmt.Errorf("failed to insert slot %s: %w", slots[i].RoleName, err)
		}
	}
	return nil
}

func cancelPendingTrades(tx *gorm.DB, slotID string) ([]string, error) {
	var ids []string
	err := tx.Model(&db.ShiftTrade{}).
		Where("shift_role_id = ? AND status = ?", slotID, db.TradeStatusPending).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find pending trades: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	err = tx.Model(&db.ShiftTrade{}).
		Where("id IN ? AND status = ?", ids, db.TradeStatusPending).
		Updates(map[string]any{"status": db.TradeStatusCancelled, "resolved_at": time.Now().UTC()}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to cancel pending trades: %w", err)
	}
	return ids, nil
}

// slotMissOrState distinguishes a missing slot from one in the wrong state
// after a conditional write touched no rows.
func slotMissOrState(tx *gorm.DB, slotID string, stateErr error) error {
	found, err := exists(tx, &db.ShiftRole{}, slotID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("slot %s: %w", slotID, db.ErrNotFound)
	}
	return fmt.Errorf("slot %s: %w", slotID, stateErr)
}
