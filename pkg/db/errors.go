package db

import "errors"

// Errors shared by the stores, the services and the HTTP layer.
// Stores wrap them with context; callers match with errors.Is.
var (
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflict")
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrSlotUnavailable       = errors.New("slot is not vacant")
	ErrNotHolder             = errors.New("user does not hold this slot")
	ErrDuplicatePendingTrade = errors.New("slot already has a pending trade")
	ErrInvalidState          = errors.New("invalid state")
	ErrNotOfferingUser       = errors.New("only the offering user can cancel this trade")
	ErrSelfTrade             = errors.New("cannot accept your own trade")
	ErrTaskFull              = errors.New("task has no free places")
	ErrAlreadySignedUp       = errors.New("already signed up for this task")
	ErrNotSignedUp           = errors.New("not signed up for this task")
)
