package sqlite

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/voreskerne/frivillig/pkg/db"
)

// CreateShift inserts a shift and its slots in one transaction
func (d *DB) CreateShift(ctx context.Context, shift *db.Shift, slots []db.ShiftRole) error {
	return d.inTx(ctx, func(tx *gorm.DB) error {
		return insertShift(tx, shift, slots)
	})
}

// CreateShifts inserts a whole series in one transaction
func (d *DB) CreateShifts(ctx context.Context, shifts []db.ShiftWithSlots) error {
	return d.inTx(ctx, func(tx *gorm.DB) error {
		for i := range shifts {
			if err := insertShift(tx, &shifts[i].Shift, shifts[i].Slots); err != nil {
				return fmt.Errorf("shift %d of %d (%s): %w", i+1, len(shifts), shifts[i].Shift.Date, err)
			}
		}
		return nil
	})
}

// GetShift retrieves a single shift by id
func (d *DB) GetShift(ctx context.Context, shiftID string) (*db.Shift, error) {
	var shift db.Shift
	err := d.db.WithContext(ctx).Where("id = ?", shiftID).First(&shift).Error
	if notFound(err) {
		return nil, fmt.Errorf("shift %s: %w", shiftID, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shift: %w", err)
	}
	return &shift, nil
}

// ListShifts retrieves shifts dated within [from, to]. Empty bounds are open.
func (d *DB) ListShifts(ctx context.Context, from, to string) ([]db.Shift, error) {
	q := d.db.WithContext(ctx).Model(&db.Shift{})
	if from != "" {
		q = q.Where("date >= ?", from)
	}
	if to != "" {
		q = q.Where("date <= ?", to)
	}
	var shifts []db.Shift
	if err := q.Order("date, start_time, id").Find(&shifts).Error; err != nil {
		return nil, fmt.Errorf("failed to query shifts: %w", err)
	}
	return shifts, nil
}

// DeleteShift removes the shift's trades, its slots and the shift itself
func (d *DB) DeleteShift(ctx context.Context, shiftID string) error {
	return d.inTx(ctx, func(tx *gorm.DB) error {
		err := tx.Exec(`
			DELETE FROM shift_trades
			WHERE shift_role_id IN (SELECT id FROM shift_roles WHERE shift_id = ?)
		`, shiftID).Error
		if err != nil {
			return fmt.Errorf("failed to delete shift trades: %w", err)
		}
		if err := tx.Where("shift_id = ?", shiftID).Delete(&db.ShiftRole{}).Error; err != nil {
			return fmt.Errorf("failed to delete shift roles: %w", err)
		}
		res := tx.Where("id = ?", shiftID).Delete(&db.Shift{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete shift: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("shift %s: %w", shiftID, db.ErrNotFound)
		}
		return nil
	})
}

func insertShift(tx *gorm.DB, shift *db.Shift, slots []db.ShiftRole) error {
	if err := tx.Create(shift).Error; err != nil {
		return fmt.Errorf("failed to insert shift: %w", err)
	}
	return insertSlots(tx, shift.ID, slots)
}
