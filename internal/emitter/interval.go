package emitter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/benmeehan/kitchen-simulator/internal/constants"
)

// ParseInterval reads an interval given either in milliseconds ("600000"), as
// a Go duration ("10m") or as "off". The result must be one of constants.Intervals.
func ParseInterval(value string) (time.Duration, error) {
	value = strings.TrimSpace(strings.ToLower(value))

	var d time.Duration
	switch {
	case value == "" || value == "off":
		d = constants.IntervalOff
	default:
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
			d = time.Duration(ms) * time.Millisecond
			break
		}
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("%w: interval %q: %v", ErrInvalidField, value, err)
		}
		d = parsed
	}

	if !validInterval(d) {
		return 0, fmt.Errorf("%w: interval %s is not one of %v", ErrInvalidField, d, constants.Intervals)
	}
	return d, nil
}

func validInterval(d time.Duration) bool {
	for _, allowed := range constants.Intervals {
		if d == allowed {
			return true
		}
	}
	return false
}

func validMethod(method string) bool {
	for _, allowed := range constants.HTTPMethods {
		if method == allowed {
			return true
		}
	}
	return false
}
