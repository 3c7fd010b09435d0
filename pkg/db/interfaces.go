package db

import "context"

// ShiftStore defines the interface for shift database operations
type ShiftStore interface {
	CreateShift(ctx context.Context, shift *Shift, slots []ShiftRole) error
	// CreateShifts inserts every shift and its slots in one transaction.
	// Nothing is written if any insert fails.
	CreateShifts(ctx context.Context, shifts []ShiftWithSlots) error
	GetShift(ctx context.Context, shiftID string) (*Shift, error)
	ListShifts(ctx context.Context, from, to string) ([]Shift, error)
	DeleteShift(ctx context.Context, shiftID string) error
}

// SlotStore defines the interface for shift role slot operations.
// ClaimSlot and ReleaseSlot are conditional writes: they only succeed when the
// slot is in the expected prior state at the moment of the write.
type SlotStore interface {
	GetSlot(ctx context.Context, slotID string) (*ShiftRole, error)
	ListSlotsByShift(ctx context.Context, shiftID string) ([]ShiftRole, error)
	CreateSlots(ctx context.Context, shiftID string, slots []ShiftRole) error
	UpdateSlot(ctx context.Context, slotID string, update SlotUpdate) (*ShiftRole, error)
	DeleteSlot(ctx context.Context, slotID string) error
	ClaimSlot(ctx context.Context, slotID, userID string) (*ShiftRole, error)
	ReleaseSlot(ctx context.Context, slotID, userID string) (*ReleaseOutcome, error)
}

// TradeStore defines the interface for shift trade operations
type TradeStore interface {
	GetSlot(ctx context.Context, slotID string) (*ShiftRole, error)
	GetTrade(ctx context.Context, tradeID string) (*ShiftTrade, error)
	ListTrades(ctx context.Context, status TradeStatus) ([]ShiftTrade, error)
	CreateTrade(ctx context.Context, trade *ShiftTrade) error
	CompleteTrade(ctx context.Context, tradeID, acceptingUserID string) (*ShiftTrade, *ShiftRole, error)
	CancelTrade(ctx context.Context, tradeID string) (*ShiftTrade, error)
}

// TaskStore defines the interface for task, signup and point operations
type TaskStore interface {
	CreateTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, taskID string) (*Task, error)
	ListSignups(ctx context.Context, taskID string) ([]TaskSignup, error)
	SignUp(ctx context.Context, taskID, userID string) error
	Unregister(ctx context.Context, taskID, userID string) error
	CompleteTask(ctx context.Context, taskID string, awardPoints bool) (*CompletionOutcome, error)
}

// UserStore defines the interface for user account operations
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, userID string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	SetUserPoints(ctx context.Context, userID string, points int) error
	SetUserRole(ctx context.Context, userID, roleID string) error
	SetNotifyTradeCompleted(ctx context.Context, userID string, enabled bool) error
	// ListUsersByPoints returns up to limit users, highest balance first
	ListUsersByPoints(ctx context.Context, limit int) ([]User, error)
}

// RoleStore defines the interface for role and permission lookups
type RoleStore interface {
	GetRole(ctx context.Context, roleID string) (*Role, error)
	UpsertRole(ctx context.Context, role *Role) error
}

// NotificationStore defines the interface for the admin notification feed
type NotificationStore interface {
	InsertAdminNotification(ctx context.Context, n *AdminNotification) error
	ListAdminNotifications(ctx context.Context, unreadOnly bool) ([]AdminNotification, error)
	MarkAdminNotificationsRead(ctx context.Context) error
}

// Database defines the interface for all database operations.
// Both the pgx-backed postgres.DB and the gorm-backed sqlite.DB implement this interface.
type Database interface {
	ShiftStore
	SlotStore
	TradeStore
	TaskStore
	UserStore
	RoleStore
	NotificationStore
	RunMigrations(ctx context.Context) error
	Close()
}
