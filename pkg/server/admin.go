package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/voreskerne/frivillig/pkg/core/services"
	"github.com/voreskerne/frivillig/pkg/db"
)

type addSlotsRequest struct {
	Roles []services.SlotSpec `json:"roles" validate:"required,min=1,dive"`
}

type updateSlotRequest struct {
	RoleName  *string `json:"roleName,omitempty" validate:"omitempty,min=1"`
	UserID    *string `json:"userId,omitempty" validate:"omitempty,min=1"`
	ClearUser bool    `json:"clearUser,omitempty"`
}

type createTaskRequest struct {
	Title            string `json:"title" validate:"required"`
	Description      string `json:"description"`
	TaskDate         string `json:"taskDate"`
	Category         string `json:"category"`
	Points           int    `json:"points" validate:"min=0"`
	VolunteersNeeded int    `json:"volunteersNeeded" validate:"required,min=1"`
}

type pointsRequest struct {
	Points *int `json:"points" validate:"required,min=0"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (s *Server) handleCreateShift(w http.ResponseWriter, r *http.Request) {
	var spec services.ShiftSpec
	if !s.decode(w, r, &spec) {
		return
	}

	created, err := services.CreateShift(r.Context(), s.store, s.logger, spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusCreated, created)
}

func (s *Server) handleCreateSeries(w http.ResponseWriter, r *http.Request) {
	var spec services.SeriesSpec
	if !s.decode(w, r, &spec) {
		return
	}

	created, err := services.CreateShiftSeries(r.Context(), s.store, s.logger, spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusCreated, map[string]any{"shifts": created})
}

func (s *Server) handleAddSlots(w http.ResponseWriter, r *http.Request) {
	var req addSlotsRequest
	if !s.decode(w, r, &req) {
		return
	}

	slots, err := services.AddSlots(r.Context(), s.store, s.logger, chi.URLParam(r, "id"), req.Roles)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusCreated, map[string]any{"slots": slots})
}

func (s *Server) handleDeleteShift(w http.ResponseWriter, r *http.Request) {
	if err := services.DeleteShift(r.Context(), s.store, s.logger, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleUpdateSlot(w http.ResponseWriter, r *http.Request) {
	var req updateSlotRequest
	if !s.decode(w, r, &req) {
		return
	}

	slot, err := services.UpdateSlot(r.Context(), s.store, s.logger, chi.URLParam(r, "id"), db.SlotUpdate{
		RoleName:  req.RoleName,
		UserID:    req.UserID,
		ClearUser: req.ClearUser,
	})
	s.metrics.SlotOp("update", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{"slot": slot})
}

func (s *Server) handleDeleteSlot(w http.ResponseWriter, r *http.Request) {
	err := services.DeleteSlot(r.Context(), s.store, s.logger, chi.URLParam(r, "id"))
	s.metrics.SlotOp("delete", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !s.decode(w, r, &req) {
		return
	}

	task, err := services.CreateTask(r.Context(), s.store, s.logger, services.TaskSpec{
		Title:            req.Title,
		Description:      req.Description,
		TaskDate:         req.TaskDate,
		Category:         req.Category,
		Points:           req.Points,
		VolunteersNeeded: req.VolunteersNeeded,
		CreatedBy:        sessionFrom(r.Context()).UserID,
	}, s.pointLimits())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusCreated, task)
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	result, err := services.MarkTaskCompleted(r.Context(), s.store, s.logger, chi.URLParam(r, "id"),
		services.CompletionOptions{AwardPoints: s.points.AwardEnabled()})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.metrics.PointsAwarded(result.PointsAwarded * len(result.AwardedUserIDs))
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"task":             result.Task,
		"alreadyCompleted": result.AlreadyCompleted,
		"awardedUserIds":   nonNil(result.AwardedUserIDs),
		"points":           result.PointsAwarded,
	})
}

func (s *Server) handleSetPoints(w http.ResponseWriter, r *http.Request) {
	var req pointsRequest
	if !s.decode(w, r, &req) {
		return
	}

	userID := chi.URLParam(r, "id")
	if err := s.store.SetUserPoints(r.Context(), userID, *req.Points); err != nil {
		s.writeError(w, r, fmt.Errorf("failed to set points: %w", err))
		return
	}

	s.logger.Info("User points set",
		zap.String("user_id", userID),
		zap.Int("points", *req.Points),
		zap.String("by", sessionFrom(r.Context()).UserID))
	RespondWithJSON(w, http.StatusOK, map[string]any{"userId": userID, "points": *req.Points})
}

func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !s.decode(w, r, &req) {
		return
	}

	user, err := services.AssignRole(r.Context(), s.store, s.logger, chi.URLParam(r, "id"), req.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("User role changed by admin",
		zap.String("user_id", user.ID),
		zap.String("role", user.RoleID),
		zap.String("by", sessionFrom(r.Context()).UserID))
	RespondWithJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) handleUpdateUserPreferences(w http.ResponseWriter, r *http.Request) {
	s.updatePreferences(w, r, chi.URLParam(r, "id"))
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := s.store.ListAdminNotifications(r.Context(), r.URL.Query().Get("unread") == "true")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if notifications == nil {
		notifications = []db.AdminNotification{}
	}
	RespondWithJSON(w, http.StatusOK, notifications)
}

func (s *Server) handleMarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	if err := s.store.MarkAdminNotificationsRead(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
