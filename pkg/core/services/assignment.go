package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/voreskerne/frivillig/pkg/db"
)

// AdminFeed records activity that administrators should see
type AdminFeed interface {
	ShiftLeft(ctx context.Context, slot *db.ShiftRole, userID string) error
}

// LeaveResult represents the result of a user leaving a slot
type LeaveResult struct {
	Slot              *db.ShiftRole
	CancelledTradeIDs []string
}

// TakeSlot assigns a vacant slot to the user.
// The store only writes if the slot is still vacant, so of several concurrent
// callers exactly one succeeds and the rest get ErrSlotUnavailable.
func TakeSlot(ctx context.Context, store db.SlotStore, logger *zap.Logger, slotID, userID string) (*db.ShiftRole, error) {
	if err := requireIDs("slot id", slotID, "user id", userID); err != nil {
		return nil, err
	}

	logger.Debug("Taking slot", zap.String("slot_id", slotID), zap.String("user_id", userID))

	slot, err := store.ClaimSlot(ctx, slotID, userID)
	if err != nil {
		logger.Warn("Slot could not be taken", zap.String("slot_id", slotID), zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to take slot: %w", err)
	}

	logger.Info("Slot taken", zap.String("slot_id", slotID), zap.String("shift_id", slot.ShiftID), zap.String("user_id", userID))
	return slot, nil
}

// LeaveSlot vacates a slot held by the user. Any pending trade on the slot is
// cancelled in the same transaction. The admin feed is told afterwards; a
// failure there is logged and does not undo the leave.
func LeaveSlot(ctx context.Context, store db.SlotStore, feed AdminFeed, logger *zap.Logger, slotID, userID string) (*LeaveResult, error) {
	if err := requireIDs("slot id", slotID, "user id", userID); err != nil {
		return nil, err
	}

	logger.Debug("Leaving slot", zap.String("slot_id", slotID), zap.String("user_id", userID))

	outcome, err := store.ReleaseSlot(ctx, slotID, userID)
	if err != nil {
		logger.Warn("Slot could not be left", zap.String("slot_id", slotID), zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to leave slot: %w", err)
	}

	logger.Info("Slot left",
		zap.String("slot_id", slotID),
		zap.String("shift_id", outcome.Slot.ShiftID),
		zap.String("user_id", userID),
		zap.Strings("cancelled_trades", outcome.CancelledTradeIDs))

	if feed != nil {
		if err := feed.ShiftLeft(ctx, outcome.Slot, userID); err != nil {
			logger.Error("Failed to record shift left notification", zap.String("slot_id", slotID), zap.Error(err))
		}
	}

	return &LeaveResult{Slot: outcome.Slot, CancelledTradeIDs: outcome.CancelledTradeIDs}, nil
}
