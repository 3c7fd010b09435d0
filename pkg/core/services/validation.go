package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/voreskerne/frivillig/pkg/db"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// requireIDs takes name/value pairs and fails on the first blank value
func requireIDs(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%s is required: %w", pairs[i], db.ErrInvalidArgument)
		}
	}
	return nil
}

func validateDate(field, value string) error {
	if _, err := time.Parse(dateLayout, value); err != nil {
		return fmt.Errorf("%s %q is not a YYYY-MM-DD date: %w", field, value, db.ErrInvalidArgument)
	}
	return nil
}

// validateTimes checks optional HH:MM start and end times. When both are set
// the end must be after the start.
func validateTimes(start, end string) error {
	var startT, endT time.Time
	var err error
	if start != "" {
		if startT, err = time.Parse(timeLayout, start); err != nil {
			return fmt.Errorf("start time %q is not HH:MM: %w", start, db.ErrInvalidArgument)
		}
	}
	if end != "" {
		if endT, err = time.Parse(timeLayout, end); err != nil {
			return fmt.Errorf("end time %q is not HH:MM: %w", end, db.ErrInvalidArgument)
		}
	}
	if start != "" && end != "" && !endT.After(startT) {
		return fmt.Errorf("end time %s must be after start time %s: %w", end, start, db.ErrInvalidArgument)
	}
	return nil
}
