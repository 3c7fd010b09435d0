package db

import (
	"database/sql/driver"
	"time"
)

// TradeStatus is the lifecycle state of a shift trade
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "PENDING"
	TradeStatusCompleted TradeStatus = "COMPLETED"
	TradeStatusCancelled TradeStatus = "CANCELLED"
)

// Value stores the status as plain text
func (s TradeStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// NotificationTypeShiftLeft is recorded when a holder leaves a slot
const NotificationTypeShiftLeft = "ShiftLeft"

// Shift represents a dated shift that owns a set of role slots
type Shift struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	Date        string    `json:"date" gorm:"not null;index"`
	StartTime   string    `json:"startTime,omitempty"`
	EndTime     string    `json:"endTime,omitempty"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (Shift) TableName() string { return "shifts" }

// ShiftRole is one assignable slot within a shift. A nil UserID means vacant.
type ShiftRole struct {
	ID       string  `json:"id" gorm:"primaryKey"`
	ShiftID  string  `json:"shiftId" gorm:"not null;index"`
	RoleName string  `json:"roleName" gorm:"not null"`
	UserID   *string `json:"userId" gorm:"index"`
}

func (ShiftRole) TableName() string { return "shift_roles" }

// IsHeldBy reports whether the slot is currently held by userID
func (r *ShiftRole) IsHeldBy(userID string) bool {
	return r.UserID != nil && *r.UserID == userID
}

// ShiftTrade is an offer to hand a held slot to another user
type ShiftTrade struct {
	ID              string      `json:"id" gorm:"primaryKey"`
	ShiftRoleID     string      `json:"shiftRoleId" gorm:"not null;index"`
	OfferingUserID  string      `json:"offeringUserId" gorm:"not null"`
	AcceptingUserID *string     `json:"acceptingUserId"`
	Status          TradeStatus `json:"status" gorm:"not null;index"`
	CreatedAt       time.Time   `json:"createdAt"`
	ResolvedAt      *time.Time  `json:"resolvedAt,omitempty"`
}

func (ShiftTrade) TableName() string { return "shift_trades" }

// Task is a one-off volunteer task. VolunteersNeeded is the remaining capacity.
type Task struct {
	ID               string     `json:"id" gorm:"primaryKey"`
	Title            string     `json:"title" gorm:"not null"`
	Description      string     `json:"description"`
	TaskDate         string     `json:"taskDate"`
	Category         string     `json:"category"`
	Points           int        `json:"points" gorm:"not null"`
	VolunteersNeeded int        `json:"volunteersNeeded" gorm:"not null"`
	IsCompleted      bool       `json:"isCompleted" gorm:"not null"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	CreatedBy        string     `json:"createdBy,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

func (Task) TableName() string { return "tasks" }

// TaskSignup links a user to a task
type TaskSignup struct {
	TaskID    string    `json:"taskId" gorm:"primaryKey"`
	UserID    string    `json:"userId" gorm:"primaryKey;index"`
	CreatedAt time.Time `json:"createdAt"`
}

func (TaskSignup) TableName() string { return "task_signups" }

// User is a volunteer or administrator account
type User struct {
	ID                   string    `json:"id" gorm:"primaryKey"`
	Name                 string    `json:"name" gorm:"not null"`
	Email                string    `json:"email" gorm:"not null;uniqueIndex"`
	PasswordHash         string    `json:"-" gorm:"not null"`
	RoleID               string    `json:"role" gorm:"not null"`
	Points               int       `json:"points" gorm:"not null"`
	NotifyTradeCompleted bool      `json:"notifyTradeCompleted" gorm:"not null"`
	CreatedAt            time.Time `json:"createdAt"`
}

func (User) TableName() string { return "users" }

// Role maps a role id to its permission tags
type Role struct {
	ID          string   `json:"id" gorm:"primaryKey"`
	Name        string   `json:"name" gorm:"not null"`
	Permissions []string `json:"permissions" gorm:"serializer:json"`
	IsDefault   bool     `json:"isDefault" gorm:"not null"`
}

func (Role) TableName() string { return "roles" }

// AdminNotification is an entry in the admin activity feed
type AdminNotification struct {
	ID        string            `json:"id" gorm:"primaryKey"`
	Type      string            `json:"type" gorm:"not null"`
	Message   string            `json:"message" gorm:"not null"`
	Details   map[string]string `json:"details" gorm:"serializer:json"`
	Read      bool              `json:"read" gorm:"not null;index"`
	CreatedAt time.Time         `json:"createdAt"`
}

func (AdminNotification) TableName() string { return "admin_notifications" }

// ShiftWithSlots is a shift together with the slots it owns
type ShiftWithSlots struct {
	Shift Shift       `json:"shift"`
	Slots []ShiftRole `json:"slots"`
}

// SlotUpdate is an admin edit of a slot. ClearUser vacates the slot and wins over UserID.
type SlotUpdate struct {
	RoleName  *string
	UserID    *string
	ClearUser bool
}

// ReleaseOutcome is returned when a holder leaves a slot
type ReleaseOutcome struct {
	Slot              *ShiftRole
	CancelledTradeIDs []string
}

// CompletionOutcome is returned when a task is marked completed
type CompletionOutcome struct {
	Task             *Task
	AlreadyCompleted bool
	AwardedUserIDs   []string
}

// HolderChanged reports whether two slot holder values differ
func HolderChanged(before, after *string) bool {
	if before == nil || after == nil {
		return before != after
	}
	return *before != *after
}
