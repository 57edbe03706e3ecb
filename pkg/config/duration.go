package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrOutOfRange is returned when a configured value falls outside its allowed bounds.
var ErrOutOfRange = errors.New("value out of range")

// ValidateDurationRange reports whether lo <= d <= hi. The error wraps
// ErrOutOfRange and names the violated bound.
func ValidateDurationRange(d, lo, hi time.Duration) error {
	switch {
	case lo > hi:
		return fmt.Errorf("empty range [%v, %v]", lo, hi)
	case d < lo:
		return fmt.Errorf("%w: %v is below %v", ErrOutOfRange, d, lo)
	case d > hi:
		return fmt.Errorf("%w: %v is above %v", ErrOutOfRange, d, hi)
	}
	return nil
}
