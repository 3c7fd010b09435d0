// Package server exposes the shift board, trades, tasks and admin operations over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/voreskerne/frivillig/internal/config"
	"github.com/voreskerne/frivillig/pkg/auth"
	"github.com/voreskerne/frivillig/pkg/core/access"
	"github.com/voreskerne/frivillig/pkg/core/services"
	"github.com/voreskerne/frivillig/pkg/db"
	"github.com/voreskerne/frivillig/pkg/metrics"
)

// Options are the collaborators a Server is built from. Notifier and Feed may
// be nil. Notifier is called from a background worker that Run starts.
type Options struct {
	Store    db.Database
	Revoker  auth.Revoker
	Notifier services.TradeNotifier
	Feed     services.AdminFeed
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Server   config.ServerConfig
	Points   config.PointsConfig
}

// Server is the HTTP API
type Server struct {
	store    db.Database
	revoker  auth.Revoker
	notifier services.TradeNotifier
	feed     services.AdminFeed
	metrics  *metrics.Metrics
	logger   *zap.Logger
	cfg      config.ServerConfig
	points   config.PointsConfig

	notifications *notificationQueue

	checker  *access.Checker
	issuer   *auth.TokenIssuer
	jwt      *jwtauth.JWTAuth
	validate *validator.Validate
	router   chi.Router
}

func New(opts Options) *Server {
	s := &Server{
		store:    opts.Store,
		revoker:  opts.Revoker,
		feed:     opts.Feed,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		cfg:      opts.Server,
		points:   opts.Points,
		checker:  access.NewChecker(opts.Store),
		issuer:   auth.NewTokenIssuer(opts.Server.JWTSecret, opts.Server.TokenTTL),
		jwt:      jwtauth.New("HS256", []byte(opts.Server.JWTSecret), nil),
		validate: validator.New(),
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.revoker == nil {
		s.revoker = auth.NewMemoryRevoker()
	}
	if opts.Notifier != nil {
		s.notifications = newNotificationQueue(opts.Notifier, opts.Server.NotifyQueue, s.metrics, s.logger)
		s.notifier = s.notifications
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(s.requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(jwtauth.Verify(s.jwt, jwtauth.TokenFromHeader, jwtauth.TokenFromCookie))

	// Public routes
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	router.Post("/login", s.handleLogin)

	router.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/logout", s.handleLogout)
		r.Put("/users/me/preferences", s.handleUpdatePreferences)
		r.Get("/leaderboard", s.handleLeaderboard)

		r.Get("/shifts", s.handleShiftBoard)
		r.Post("/shifts/take", s.handleTakeSlot)
		r.Post("/shifts/leave", s.handleLeaveSlot)

		r.Get("/shift_trades", s.handleListTrades)
		r.Post("/shift_trades", s.handleProposeTrade)
		r.Post("/shift_trades/accept", s.handleAcceptTrade)
		r.Delete("/shift_trades", s.handleCancelTrade)

		r.Post("/tasks/signup", s.handleTaskSignup)
		r.Post("/tasks/unregister", s.handleTaskUnregister)

		r.Route("/admin", func(ar chi.Router) {
			ar.Group(func(sr chi.Router) {
				sr.Use(s.requirePermission(access.ManageShifts))
				sr.Post("/shifts", s.handleCreateShift)
				sr.Post("/shifts/series", s.handleCreateSeries)
				sr.Post("/shifts/{id}/roles", s.handleAddSlots)
				sr.Delete("/shifts/{id}", s.handleDeleteShift)
				sr.Put("/shift_roles/{id}", s.handleUpdateSlot)
				sr.Delete("/shift_roles/{id}", s.handleDeleteSlot)
			})
			ar.Group(func(sr chi.Router) {
				sr.Use(s.requirePermission(access.ManageTasks))
				sr.Post("/tasks", s.handleCreateTask)
				sr.Post("/tasks/{id}/complete", s.handleCompleteTask)
			})
			ar.Group(func(sr chi.Router) {
				sr.Use(s.requirePermission(access.ManageUsers))
				sr.Put("/users/{id}/points", s.handleSetPoints)
				sr.Put("/users/{id}/role", s.handleAssignRole)
				sr.Put("/users/{id}/preferences", s.handleUpdateUserPreferences)
			})
			ar.Group(func(sr chi.Router) {
				sr.Use(s.requirePermission(access.AccessAdminPanel))
				sr.Get("/notifications", s.handleListNotifications)
				sr.Post("/notifications/read", s.handleMarkNotificationsRead)
			})
		})
	})

	return router
}

// pointLimits returns the range admins may attach to a task. With the points
// system off any non-negative value is accepted.
func (s *Server) pointLimits() services.PointLimits {
	if !s.points.AwardEnabled() {
		return services.PointLimits{Min: 0, Max: math.MaxInt}
	}
	return services.PointLimits{Min: s.points.Min, Max: s.points.Max}
}

// Run serves until ctx is cancelled, then shuts down gracefully. The
// notification worker runs alongside and is drained after the last request.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.notifications != nil {
		s.notifications.start()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("HTTP server listening", zap.String("addr", s.cfg.Addr))

	select {
	case err := <-errCh:
		s.drainNotifications(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server", zap.Duration("timeout", s.cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.drainNotifications(shutdownCtx)
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	<-errCh
	s.drainNotifications(shutdownCtx)
	return nil
}

// drainNotifications waits for queued trade notifications, bounded by the
// shutdown timeout
func (s *Server) drainNotifications(ctx context.Context) {
	if s.notifications == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.notifications.drain(ctx); err != nil {
		s.logger.Warn("Trade notifications not delivered", zap.Error(err))
	}
}
