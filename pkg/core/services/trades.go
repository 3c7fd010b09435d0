package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voreskerne/frivillig/pkg/db"
)

// TradeNotifier is told about trades that completed
type TradeNotifier interface {
	TradeCompleted(ctx context.Context, trade *db.ShiftTrade, slot *db.ShiftRole) error
}

// TradeOutcome represents the result of accepting a trade
type TradeOutcome struct {
	Trade *db.ShiftTrade
	Slot  *db.ShiftRole
}

// ProposeTrade offers a slot the user holds to anyone else.
// The slot keeps its holder until someone accepts.
func ProposeTrade(ctx context.Context, store db.TradeStore, logger *zap.Logger, slotID, offeringUserID string) (*db.ShiftTrade, error) {
	if err := requireIDs("slot id", slotID, "user id", offeringUserID); err != nil {
		return nil, err
	}

	logger.Debug("Proposing trade", zap.String("slot_id", slotID), zap.String("user_id", offeringUserID))

	// Early checks give precise errors; the store repeats them inside its transaction
	slot, err := store.GetSlot(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch slot: %w", err)
	}
	if !slot.IsHeldBy(offeringUserID) {
		logger.Warn("Trade proposed by non-holder", zap.String("slot_id", slotID), zap.String("user_id", offeringUserID))
		return nil, fmt.Errorf("slot %s: %w", slotID, db.ErrNotHolder)
	}

	trade := &db.ShiftTrade{
		ID:             uuid.New().String(),
		ShiftRoleID:    slotID,
		OfferingUserID: offeringUserID,
		Status:         db.TradeStatusPending,
	}
	if err := store.CreateTrade(ctx, trade); err != nil {
		logger.Warn("Trade could not be proposed", zap.String("slot_id", slotID), zap.Error(err))
		return nil, fmt.Errorf("failed to create trade: %w", err)
	}

	logger.Info("Trade proposed", zap.String("trade_id", trade.ID), zap.String("slot_id", slotID), zap.String("user_id", offeringUserID))
	return trade, nil
}

// AcceptTrade completes a pending trade: the trade is marked COMPLETED and the
// slot moves from the offering user to the acceptor in one transaction. If
// several users accept at once only one succeeds.
func AcceptTrade(ctx context.Context, store db.TradeStore, notifier TradeNotifier, logger *zap.Logger, tradeID, acceptingUserID string) (*TradeOutcome, error) {
	if err := requireIDs("trade id", tradeID, "user id", acceptingUserID); err != nil {
		return nil, err
	}

	logger.Debug("Accepting trade", zap.String("trade_id", tradeID), zap.String("user_id", acceptingUserID))

	trade, err := store.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trade: %w", err)
	}
	if trade.Status != db.TradeStatusPending {
		return nil, fmt.Errorf("trade %s is %s: %w", tradeID, trade.Status, db.ErrInvalidState)
	}
	if trade.OfferingUserID == acceptingUserID {
		return nil, fmt.Errorf("trade %s: %w", tradeID, db.ErrSelfTrade)
	}

	completed, slot, err := store.CompleteTrade(ctx, tradeID, acceptingUserID)
	if err != nil {
		logger.Warn("Trade could not be accepted", zap.String("trade_id", tradeID), zap.String("user_id", acceptingUserID), zap.Error(err))
		return nil, fmt.Errorf("failed to complete trade: %w", err)
	}

	logger.Info("Trade completed",
		zap.String("trade_id", tradeID),
		zap.String("slot_id", slot.ID),
		zap.String("from_user_id", completed.OfferingUserID),
		zap.String("to_user_id", acceptingUserID))

	if notifier != nil {
		if err := notifier.TradeCompleted(ctx, completed, slot); err != nil {
			logger.Error("Failed to notify trade completion", zap.String("trade_id", tradeID), zap.Error(err))
		}
	}

	return &TradeOutcome{Trade: completed, Slot: slot}, nil
}

// CancelTrade withdraws a pending trade. Only the offering user may cancel it.
func CancelTrade(ctx context.Context, store db.TradeStore, logger *zap.Logger, tradeID, requestingUserID string) (*db.ShiftTrade, error) {
	if err := requireIDs("trade id", tradeID, "user id", requestingUserID); err != nil {
		return nil, err
	}

	logger.Debug("Cancelling trade", zap.String("trade_id", tradeID), zap.String("user_id", requestingUserID))

	trade, err := store.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trade: %w", err)
	}
	if trade.OfferingUserID != requestingUserID {
		return nil, fmt.Errorf("trade %s: %w", tradeID, db.ErrNotOfferingUser)
	}

	cancelled, err := store.CancelTrade(ctx, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel trade: %w", err)
	}

	logger.Info("Trade cancelled", zap.String("trade_id", tradeID), zap.String("user_id", requestingUserID))
	return cancelled, nil
}

// ListPendingTrades returns every open offer
func ListPendingTrades(ctx context.Context, store db.TradeStore, logger *zap.Logger) ([]db.ShiftTrade, error) {
	trades, err := store.ListTrades(ctx, db.TradeStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	logger.Debug("Listed pending trades", zap.Int("count", len(trades)))
	return trades, nil
}
