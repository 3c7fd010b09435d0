package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/voreskerne/frivillig/pkg/db"
)

const slotColumns = `id, shift_id, role_name, user_id`

// GetSlot retrieves a single slot by id
func (d *DB) GetSlot(ctx context.Context, slotID string) (*db.ShiftRole, error) {
	row := d.pool.QueryRow(ctx, `SELECT `+slotColumns+` FROM shift_roles WHERE id = $1`, slotID)
	slot, err := scanSlot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("slot %s: %w", slotID, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return slot, nil
}

// ListSlotsByShift retrieves all slots belonging to a shift
func (d *DB) ListSlotsByShift(ctx context.Context, shiftID string) ([]db.ShiftRole, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT `+slotColumns+` FROM shift_roles WHERE shift_id = $1 ORDER BY role_name, id
	`, shiftID)
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	defer rows.Close()

	var slots []db.ShiftRole
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, *slot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating slots: %w", err)
	}

	return slots, nil
}

// CreateSlots adds slots to an existing shift
func (d *DB) CreateSlots(ctx context.Context, shiftID string, slots []db.ShiftRole) error {
	return d.inTx(ctx, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `SELECT id FROM shifts WHERE id = $1 FOR SHARE`, shiftID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("shift %s: %w", shiftID, db.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to lock shift: %w", err)
		}
		return insertSlots(ctx, tx, shiftID, slots)
	})
}

// ClaimSlot assigns a vacant slot to userID. It fails with ErrSlotUnavailable
// if the slot is already held at the moment of the write.
func (d *DB) ClaimSlot(ctx context.Context, slotID, userID string) (*db.ShiftRole, error) {
	var slot *db.ShiftRole
	err := d.inTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE shift_roles SET user_id = $2
			WHERE id = $1 AND user_id IS NULL
			RETURNING `+slotColumns, slotID, userID)
		var err error
		slot, err = scanSlot(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return slotMissOrState(ctx, tx, slotID, db.ErrSlotUnavailable)
		}
		if err != nil {
			return fmt.Errorf("failed to claim slot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// ReleaseSlot vacates a slot held by userID and cancels any pending trade on it
func (d *DB) ReleaseSlot(ctx context.Context, slotID, userID string) (*db.ReleaseOutcome, error) {
	outcome := &db.ReleaseOutcome{}
	err := d.inTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE shift_roles SET user_id = NULL
			WHERE id = $1 AND user_id = $2
			RETURNING `+slotColumns, slotID, userID)
		slot, err := scanSlot(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return slotMissOrState(ctx, tx, slotID, db.ErrNotHolder)
		}
		if err != nil {
			return fmt.Errorf("failed to release slot: %w", err)
		}
		outcome.Slot = slot

		outcome.CancelledTradeIDs, err = cancelPendingTrades(ctx, tx, slotID)
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
	err := d.inTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+slotColumns+` FROM shift_roles WHERE id = $1 FOR UPDATE`, slotID)
		current, err := scanSlot(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("slot %s: %w", slotID, db.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to lock slot: %w", err)
		}

		roleName := current.RoleName
		if update.RoleName != nil {
			roleName = *update.RoleName
		}
		userID := current.UserID
		if update.ClearUser {
			userID = nil
		} else if update.UserID != nil {
			userID = update.UserID
		}

		row = tx.QueryRow(ctx, `
			UPDATE shift_roles SET role_name = $2, user_id = $3
			WHERE id = $1
			RETURNING `+slotColumns, slotID, roleName, userID)
		updated, err = scanSlot(row)
		if foreignKeyViolated(err) {
			return fmt.Errorf("user %s: %w", *userID, db.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to update slot: %w", err)
		}

		if db.HolderChanged(current.UserID, updated.UserID) {
			if _, err := cancelPendingTrades(ctx, tx, slotID); err != nil {
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
	return d.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM shift_trades WHERE shift_role_id = $1`, slotID); err != nil {
			return fmt.Errorf("failed to delete slot trades: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM shift_roles WHERE id = $1 AND user_id IS NULL`, slotID)
		if err != nil {
			return fmt.Errorf("failed to delete slot: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return slotMissOrState(ctx, tx, slotID, db.ErrConflict)
		}
		return nil
	})
}

func insertSlots(ctx context.Context, tx pgx.Tx, shiftID string, slots []db.ShiftRole) error {
	for i := range slots {
		slots[i].ShiftID = shiftID
		_, err := tx.Exec(ctx, `
			INSERT INTO shift_roles (id, shift_id, role_name, user_id)
			VALUES ($1, $2, $3, $4)
		`, slots[i].ID, shiftID, slots[i].RoleName, slots[i].UserID)
		if foreignKeyViolated(err) && slots[i].UserID != nil {
			return fmt.Errorf("user %s: %w", *slots[i].UserID, db.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to insert slot %s: %w", slots[i].RoleName, err)
		}
	}
	return nil
}

func cancelPendingTrades(ctx context.Context, tx pgx.Tx, slotID string) ([]string, error) {
	rows, err := tx.Query(ctx, `
		UPDATE shift_trades SET status = 'CANCELLED', resolved_at = NOW()
		WHERE shift_role_id = $1 AND status = 'PENDING'
		RETURNING id
	`, slotID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel pending trades: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect cancelled trades: %w", err)
	}
	return ids, nil
}

// slotMissOrState distinguishes a missing slot from one in the wrong state
// after a conditional write touched no rows.
func slotMissOrState(ctx context.Context, tx pgx.Tx, slotID string, stateErr error) error {
	found, err := exists(ctx, tx, "shift_roles", slotID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("slot %s: %w", slotID, db.ErrNotFound)
	}
	return fmt.Errorf("slot %s: %w", slotID, stateErr)
}

func scanSlot(row pgx.Row) (*db.ShiftRole, error) {
	var s db.ShiftRole
	if err := row.Scan(&s.ID, &s.ShiftID, &s.RoleName, &s.UserID); err != nil {
		return nil, err
	}
	return &s, nil
}
