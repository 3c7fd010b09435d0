package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/voreskerne/frivillig/pkg/db"
)

// Directory looks up the shifts and users a notification refers to
type Directory interface {
	GetShift(ctx context.Context, shiftID string) (*db.Shift, error)
	GetUser(ctx context.Context, userID string) (*db.User, error)
}

// TradeNotifier emails the offering user when someone takes over their slot
type TradeNotifier struct {
	Store     Directory
	Mailer    Mailer
	Templates Templates
	SiteName  string
	Logger    *zap.Logger
}

// TradeCompleted sends the shift_trade_completed email unless the offering
// user has opted out
func (n *TradeNotifier) TradeCompleted(ctx context.Context, trade *db.ShiftTrade, slot *db.ShiftRole) error {
	offering, err := n.Store.GetUser(ctx, trade.OfferingUserID)
	if err != nil {
		return fmt.Errorf("failed to fetch offering user: %w", err)
	}
	if !offering.NotifyTradeCompleted {
		n.Logger.Debug("Offering user opted out of trade emails", zap.String("user_id", offering.ID))
		return nil
	}

	if trade.AcceptingUserID == nil {
		return fmt.Errorf("trade %s has no accepting user", trade.ID)
	}
	accepting, err := n.Store.GetUser(ctx, *trade.AcceptingUserID)
	if err != nil {
		return fmt.Errorf("failed to fetch accepting user: %w", err)
	}

	shift, err := n.Store.GetShift(ctx, slot.ShiftID)
	if err != nil {
		return fmt.Errorf("failed to fetch shift: %w", err)
	}

	subject, body, err := n.Templates.Render(TemplateShiftTradeCompleted, map[string]string{
		"offeringUserName":  offering.Name,
		"acceptingUserName": accepting.Name,
		"shiftTitle":        shift.Title,
		"shiftDate":         shift.Date,
		"roleName":          slot.RoleName,
		"siteName":          n.SiteName,
	})
	if err != nil {
		return err
	}

	if err := n.Mailer.SendEmail(ctx, offering.Email, subject, body); err != nil {
		return fmt.Errorf("failed to send trade email: %w", err)
	}

	n.Logger.Info("Trade completion email sent", zap.String("trade_id", trade.ID), zap.String("to", offering.Email))
	return nil
}
