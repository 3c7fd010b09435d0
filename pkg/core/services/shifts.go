package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voreskerne/frivillig/pkg/core/series"
	"github.com/voreskerne/frivillig/pkg/db"
)

// UserLookup resolves the users admins assign to slots
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (*db.User, error)
}

// ShiftAdminStore is the subset of the store used by shift administration
type ShiftAdminStore interface {
	db.ShiftStore
	UserLookup
	CreateSlots(ctx context.Context, shiftID string, slots []db.ShiftRole) error
	UpdateSlot(ctx context.Context, slotID string, update db.SlotUpdate) (*db.ShiftRole, error)
	DeleteSlot(ctx context.Context, slotID string) error
}

// BoardStore is the subset of the store needed to render the shift board
type BoardStore interface {
	ListShifts(ctx context.Context, from, to string) ([]db.Shift, error)
	ListSlotsByShift(ctx context.Context, shiftID string) ([]db.ShiftRole, error)
	ListTrades(ctx context.Context, status db.TradeStatus) ([]db.ShiftTrade, error)
}

// SlotSpec describes one slot to create. UserID pre-assigns the slot.
type SlotSpec struct {
	RoleName string  `json:"roleName" yaml:"roleName" validate:"required"`
	UserID   *string `json:"userId,omitempty" yaml:"userId,omitempty"`
}

// ShiftSpec describes a shift and its slots
type ShiftSpec struct {
	Date        string     `json:"date" validate:"required"`
	StartTime   string     `json:"startTime,omitempty"`
	EndTime     string     `json:"endTime,omitempty"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Slots       []SlotSpec `json:"slots" validate:"required,min=1,dive"`
}

// SeriesSpec describes a recurring series of shifts. The template's Date is
// ignored; each occurrence of RRule starting at Start becomes one shift.
type SeriesSpec struct {
	RRule    string    `json:"rrule" validate:"required"`
	Start    string    `json:"start" validate:"required"`
	Count    int       `json:"count,omitempty" validate:"omitempty,min=1"`
	Template ShiftSpec `json:"template" validate:"-"`
}

// CreatedShift is a shift and the slots created with it
type CreatedShift = db.ShiftWithSlots

// BoardSlot is a slot as shown on the shift board
type BoardSlot struct {
	db.ShiftRole
	PendingTradeID string `json:"pendingTradeId,omitempty"`
}

// BoardShift is a shift with its slots as shown on the shift board
type BoardShift struct {
	db.Shift
	Slots []BoardSlot `json:"slots"`
}

// CreateShift validates the spec and creates the shift with its slots.
// Pre-assigned holders must be existing users.
func CreateShift(ctx context.Context, store ShiftAdminStore, logger *zap.Logger, spec ShiftSpec) (*CreatedShift, error) {
	if err := validateShiftSpec(spec, true); err != nil {
		return nil, err
	}
	if err := requireHolders(ctx, store, spec.Slots); err != nil {
		return nil, err
	}

	created := buildShift(spec, spec.Date, true)

	logger.Debug("Creating shift",
		zap.String("id", created.Shift.ID),
		zap.String("date", created.Shift.Date),
		zap.Int("slot_count", len(created.Slots)))

	if err := store.CreateShift(ctx, &created.Shift, created.Slots); err != nil {
		return nil, fmt.Errorf("failed to create shift: %w", err)
	}

	logger.Info("Shift created", zap.String("id", created.Shift.ID), zap.String("date", created.Shift.Date))
	return created, nil
}

// CreateShiftSeries expands a recurrence rule into dated shifts, each with the
// template's slots left vacant. The series is created as a whole or not at all.
func CreateShiftSeries(ctx context.Context, store db.ShiftStore, logger *zap.Logger, spec SeriesSpec) ([]CreatedShift, error) {
	dates, err := series.Expand(spec.RRule, spec.Start, spec.Count)
	if err != nil {
		return nil, err
	}
	if err := validateShiftSpec(spec.Template, false); err != nil {
		return nil, err
	}

	logger.Debug("Creating shift series", zap.String("rrule", spec.RRule), zap.Int("shift_count", len(dates)))

	created := make([]CreatedShift, 0, len(dates))
	for _, date := range dates {
		created = append(created, *buildShift(spec.Template, date, false))
	}
	if err := store.CreateShifts(ctx, created); err != nil {
		logger.Warn("Shift series not created", zap.String("rrule", spec.RRule), zap.Error(err))
		return nil, fmt.Errorf("failed to create shift series: %w", err)
	}

	logger.Info("Shift series created", zap.String("rrule", spec.RRule), zap.Int("shift_count", len(created)))
	return created, nil
}

// AddSlots creates further vacant or pre-assigned slots on an existing shift
func AddSlots(ctx context.Context, store ShiftAdminStore, logger *zap.Logger, shiftID string, specs []SlotSpec) ([]db.ShiftRole, error) {
	if err := requireIDs("shift id", shiftID); err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("at least one slot is required: %w", db.ErrInvalidArgument)
	}
	if err := validateSlotSpecs(specs); err != nil {
		return nil, err
	}
	if err := requireHolders(ctx, store, specs); err != nil {
		return nil, err
	}

	slots := buildSlots(shiftID, specs, true)
	if err := store.CreateSlots(ctx, shiftID, slots); err != nil {
		return nil, fmt.Errorf("failed to create slots: %w", err)
	}

	logger.Info("Slots added", zap.String("shift_id", shiftID), zap.Int("slot_count", len(slots)))
	return slots, nil
}

// UpdateSlot applies an admin edit to a slot, bypassing the take and trade
// rules. A change of holder cancels any pending trade on the slot.
func UpdateSlot(ctx context.Context, store ShiftAdminStore, logger *zap.Logger, slotID string, update db.SlotUpdate) (*db.ShiftRole, error) {
	if err := requireIDs("slot id", slotID); err != nil {
		return nil, err
	}
	if update.RoleName != nil && strings.TrimSpace(*update.RoleName) == "" {
		return nil, fmt.Errorf("role name cannot be blank: %w", db.ErrInvalidArgument)
	}
	if !update.ClearUser && update.UserID != nil {
		if _, err := store.GetUser(ctx, *update.UserID); err != nil {
			return nil, fmt.Errorf("failed to fetch new holder: %w", err)
		}
	}

	slot, err := store.UpdateSlot(ctx, slotID, update)
	if err != nil {
		return nil, fmt.Errorf("failed to update slot: %w", err)
	}

	logger.Info("Slot updated", zap.String("slot_id", slotID), zap.Stringp("user_id", slot.UserID))
	return slot, nil
}

// DeleteSlot removes a vacant slot. Held slots must be vacated first.
func DeleteSlot(ctx context.Context, store ShiftAdminStore, logger *zap.Logger, slotID string) error {
	if err := requireIDs("slot id", slotID); err != nil {
		return err
	}
	if err := store.DeleteSlot(ctx, slotID); err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}
	logger.Info("Slot deleted", zap.String("slot_id", slotID))
	return nil
}

// DeleteShift removes a shift together with its slots and their trades
func DeleteShift(ctx context.Context, store ShiftAdminStore, logger *zap.Logger, shiftID string) error {
	if err := requireIDs("shift id", shiftID); err != nil {
		return err
	}
	if err := store.DeleteShift(ctx, shiftID); err != nil {
		return fmt.Errorf("failed to delete shift: %w", err)
	}
	logger.Info("Shift deleted", zap.String("shift_id", shiftID))
	return nil
}

// ShiftBoard lists the shifts between from and to with their slots and any
// pending trade on each slot
func ShiftBoard(ctx context.Context, store BoardStore, logger *zap.Logger, from, to string) ([]BoardShift, error) {
	for field, value := range map[string]string{"from": from, "to": to} {
		if value != "" {
			if err := validateDate(field, value); err != nil {
				return nil, err
			}
		}
	}

	shifts, err := store.ListShifts(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list shifts: %w", err)
	}

	trades, err := store.ListTrades(ctx, db.TradeStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	pendingBySlot := make(map[string]string, len(trades))
	for _, t := range trades {
		pendingBySlot[t.ShiftRoleID] = t.ID
	}

	board := make([]BoardShift, 0, len(shifts))
	for _, shift := range shifts {
		slots, err := store.ListSlotsByShift(ctx, shift.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list slots for shift %s: %w", shift.ID, err)
		}
		entry := BoardShift{Shift: shift, Slots: make([]BoardSlot, 0, len(slots))}
		for _, slot := range slots {
			entry.Slots = append(entry.Slots, BoardSlot{ShiftRole: slot, PendingTradeID: pendingBySlot[slot.ID]})
		}
		board = append(board, entry)
	}

	logger.Debug("Built shift board", zap.String("from", from), zap.String("to", to), zap.Int("shift_count", len(board)))
	return board, nil
}

func validateShiftSpec(spec ShiftSpec, requireDate bool) error {
	if requireDate {
		if err := validateDate("shift date", spec.Date); err != nil {
			return err
		}
	}
	if err := validateTimes(spec.StartTime, spec.EndTime); err != nil {
		return err
	}
	if len(spec.Slots) == 0 {
		return fmt.Errorf("a shift needs at least one slot: %w", db.ErrInvalidArgument)
	}
	return validateSlotSpecs(spec.Slots)
}

func validateSlotSpecs(specs []SlotSpec) error {
	for i, s := range specs {
		if strings.TrimSpace(s.RoleName) == "" {
			return fmt.Errorf("slot %d has no role name: %w", i, db.ErrInvalidArgument)
		}
	}
	return nil
}

// requireHolders checks that every pre-assigned holder is a known user
func requireHolders(ctx context.Context, users UserLookup, specs []SlotSpec) error {
	for _, s := range specs {
		if s.UserID == nil || *s.UserID == "" {
			continue
		}
		if _, err := users.GetUser(ctx, *s.UserID); err != nil {
			return fmt.Errorf("failed to fetch slot holder: %w", err)
		}
	}
	return nil
}

func buildShift(spec ShiftSpec, date string, withHolders bool) *CreatedShift {
	shiftID := uuid.New().String()
	return &CreatedShift{
		Shift: db.Shift{
			ID:          shiftID,
			Date:        date,
			StartTime:   spec.StartTime,
			EndTime:     spec.EndTime,
			Title:       spec.Title,
			Description: spec.Description,
		},
		Slots: buildSlots(shiftID, spec.Slots, withHolders),
	}
}

func buildSlots(shiftID string, specs []SlotSpec, withHolders bool) []db.ShiftRole {
	slots := make([]db.ShiftRole, 0, len(specs))
	for _, s := range specs {
		slot := db.ShiftRole{
			ID:       uuid.New().String(),
			ShiftID:  shiftID,
			RoleName: strings.TrimSpace(s.RoleName),
		}
		if withHolders && s.UserID != nil && *s.UserID != "" {
			userID := *s.UserID
			slot.UserID = &userID
		}
		slots = append(slots, slot)
	}
	return slots
}
