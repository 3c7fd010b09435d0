package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/voreskerne/frivillig/pkg/db"
)

// CreateShift inserts a shift and its slots in one transaction
func (d *DB) CreateShift(ctx context.Context, shift *db.Shift, slots []db.ShiftRole) error {
	return d.inTx(ctx, func(tx pgx.Tx) error {
		return insertShift(ctx, tx, shift, slots)
	})
}

// CreateShifts inserts a whole series in one transaction
func (d *DB) CreateShifts(ctx context.Context, shifts []db.ShiftWithSlots) error {
	return d.inTx(ctx, func(tx pgx.Tx) error {
		for i := range shifts {
			if err := insertShift(ctx, tx, &shifts[i].Shift, shifts[i].Slots); err != nil {
				return fmt.Errorf("shift %d of %d (%s): %w", i+1, len(shifts), shifts[i].Shift.Date, err)
			}
		}
		return nil
	})
}

// GetShift retrieves a single shift by id
func (d *DB) GetShift(ctx context.Context, shiftID string) (*db.Shift, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, date, start_time, end_time, title, description, created_at
		FROM shifts WHERE id = $1
	`, shiftID)
	s, err := scanShift(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("shift %s: %w", shiftID, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shift: %w", err)
	}
	return s, nil
}

// ListShifts retrieves shifts dated within [from, to]. Empty bounds are open.
func (d *DB) ListShifts(ctx context.Context, from, to string) ([]db.Shift, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, date, start_time, end_time, title, description, created_at
		FROM shifts
		WHERE date >= COALESCE(NULLIF($1, '')::date, '-infinity'::date)
		  AND date <= COALESCE(NULLIF($2, '')::date, 'infinity'::date)
		ORDER BY date, start_time NULLS FIRST, id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query shifts: %w", err)
	}
	defer rows.Close()

	var shifts []db.Shift
	for rows.Next() {
		s, err := scanShift(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shift: %w", err)
		}
		shifts = append(shifts, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shifts: %w", err)
	}

	return shifts, nil
}

// DeleteShift removes the shift's trades, its slots and the shift itself
func (d *DB) DeleteShift(ctx context.Context, shiftID string) error {
	return d.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			DELETE FROM shift_trades
			WHERE shift_role_id IN (SELECT id FROM shift_roles WHERE shift_id = $1)
		`, shiftID)
		if err != nil {
			return fmt.Errorf("failed to delete shift trades: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM shift_roles WHERE shift_id = $1`, shiftID); err != nil {
			return fmt.Errorf("failed to delete shift roles: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM shifts WHERE id = $1`, shiftID)
		if err != nil {
			return fmt.Errorf("failed to delete shift: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("shift %s: %w", shiftID, db.ErrNotFound)
		}
		return nil
	})
}

func insertShift(ctx context.Context, tx pgx.Tx, shift *db.Shift, slots []db.ShiftRole) error {
	createdAt := shift.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO shifts (id, date, start_time, end_time, title, description, created_at)
		VALUES ($1, $2::date, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7)
	`, shift.ID, shift.Date, shift.StartTime, shift.EndTime, shift.Title, shift.Description, createdAt)
	if err != nil {
		return fmt.Errorf("failed to insert shift: %w", err)
	}
	shift.CreatedAt = createdAt
	return insertSlots(ctx, tx, shift.ID, slots)
}

func scanShift(row pgx.Row) (*db.Shift, error) {
	var s db.Shift
	var date time.Time
	var startTime, endTime, title, description *string
	if err := row.Scan(&s.ID, &date, &startTime, &endTime, &title, &description, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Date = date.Format("2006-01-02")
	if startTime != nil {
		s.StartTime = *startTime
	}
	if endTime != nil {
		s.EndTime = *endTime
	}
	if title != nil {
		s.Title = *title
	}
	if description != nil {
		s.Description = *description
	}
	return &s, nil
}
