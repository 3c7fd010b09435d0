package server

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/voreskerne/frivillig/pkg/auth"
	"github.com/voreskerne/frivillig/pkg/core/services"
	"github.com/voreskerne/frivillig/pkg/db"
)

const sessionCookie = "jwt"

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type slotRequest struct {
	ShiftRoleID string `json:"shiftRoleId" validate:"required"`
}

type tradeRequest struct {
	TradeID string `json:"tradeId" validate:"required"`
}

type taskRequest struct {
	TaskID string `json:"taskId" validate:"required"`
}

type preferencesRequest struct {
	NotifyTradeCompleted *bool `json:"notifyTradeCompleted" validate:"required"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}

	issued, user, err := auth.Login(r.Context(), s.store, s.issuer, req.Email, req.Password)
	if err != nil {
		s.logger.Warn("Login failed", zap.String("email", req.Email), zap.Error(err))
		s.writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    issued.Token,
		Path:     "/",
		Expires:  issued.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	s.logger.Info("User logged in", zap.String("user_id", user.ID))
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"token":     issued.Token,
		"expiresAt": issued.ExpiresAt,
		"user":      user,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	if err := s.revoker.Revoke(r.Context(), sess.TokenID, time.Until(sess.ExpiresAt)); err != nil {
		s.writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	s.logger.Info("User logged out", zap.String("user_id", sess.UserID))
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	s.updatePreferences(w, r, sessionFrom(r.Context()).UserID)
}

func (s *Server) updatePreferences(w http.ResponseWriter, r *http.Request, userID string) {
	var req preferencesRequest
	if !s.decode(w, r, &req) {
		return
	}

	user, err := services.UpdatePreferences(r.Context(), s.store, s.logger, userID,
		services.Preferences{NotifyTradeCompleted: *req.NotifyTradeCompleted})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			RespondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := services.Leaderboard(r.Context(), s.store, s.logger, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, entries)
}

func (s *Server) handleShiftBoard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	board, err := services.ShiftBoard(r.Context(), s.store, s.logger, q.Get("from"), q.Get("to"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if board == nil {
		board = []services.BoardShift{}
	}
	RespondWithJSON(w, http.StatusOK, board)
}

func (s *Server) handleTakeSlot(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	if !s.decode(w, r, &req) {
		return
	}

	slot, err := services.TakeSlot(r.Context(), s.store, s.logger, req.ShiftRoleID, sessionFrom(r.Context()).UserID)
	s.metrics.SlotOp("take", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{"slot": slot})
}

func (s *Server) handleLeaveSlot(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := services.LeaveSlot(r.Context(), s.store, s.feed, s.logger, req.ShiftRoleID, sessionFrom(r.Context()).UserID)
	s.metrics.SlotOp("leave", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"slot":              result.Slot,
		"cancelledTradeIds": nonNil(result.CancelledTradeIDs),
	})
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := services.ListPendingTrades(r.Context(), s.store, s.logger)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if trades == nil {
		trades = []db.ShiftTrade{}
	}
	RespondWithJSON(w, http.StatusOK, trades)
}

func (s *Server) handleProposeTrade(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	if !s.decode(w, r, &req) {
		return
	}

	trade, err := services.ProposeTrade(r.Context(), s.store, s.logger, req.ShiftRoleID, sessionFrom(r.Context()).UserID)
	s.metrics.TradeOp("propose", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusCreated, map[string]any{"trade": trade})
}

func (s *Server) handleAcceptTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if !s.decode(w, r, &req) {
		return
	}

	outcome, err := services.AcceptTrade(r.Context(), s.store, s.notifier, s.logger, req.TradeID, sessionFrom(r.Context()).UserID)
	s.metrics.TradeOp("accept", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{"trade": outcome.Trade, "slot": outcome.Slot})
}

func (s *Server) handleCancelTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if !s.decode(w, r, &req) {
		return
	}

	trade, err := services.CancelTrade(r.Context(), s.store, s.logger, req.TradeID, sessionFrom(r.Context()).UserID)
	s.metrics.TradeOp("cancel", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{"trade": trade})
}

func (s *Server) handleTaskSignup(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := services.SignUpForTask(r.Context(), s.store, s.logger, req.TaskID, sessionFrom(r.Context()).UserID); err != nil {
		s.writeError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "signed up"})
}

func (s *Server) handleTaskUnregister(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := services.UnregisterFromTask(r.Context(), s.store, s.logger, req.TaskID, sessionFrom(r.Context()).UserID); err != nil {
		s.writeError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "unregistered"})
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
