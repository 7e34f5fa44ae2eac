package scoring

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/coko7/advent-of-time/internal/apperror"
)

// Clock is a wall-clock time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Minutes returns the number of minutes since midnight.
func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

// Distance is the absolute number of minutes between c and other. Both are on
// the same calendar day: 23:50 and 00:10 are 1420 minutes apart, not 20.
func (c Clock) Distance(other Clock) int {
	d := c.Minutes() - other.Minutes()
	if d < 0 {
		return -d
	}
	return d
}

var errClockFormat = errors.New("expected HH:MM")

// ParseClock parses "H:MM" or "HH:MM" with 0 <= H <= 23 and 0 <= MM <= 59.
// Signs, spaces and extra components are rejected.
func ParseClock(s string) (Clock, error) {
	if len(s) > 5 {
		return Clock{}, errClockFormat
	}
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || !digits(hh, 1, 2) || !digits(mm, 2, 2) {
		return Clock{}, errClockFormat
	}

	hour, _ := strconv.Atoi(hh)
	minute, _ := strconv.Atoi(mm)
	if hour > 23 {
		return Clock{}, fmt.Errorf("hour %d out of range", hour)
	}
	if minute > 59 {
		return Clock{}, fmt.Errorf("minute %d out of range", minute)
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

// ParseGuess is ParseClock for user input: failures become an InvalidFormat
// guess error.
func ParseGuess(s string) (Clock, error) {
	c, err := ParseClock(s)
	if err != nil {
		return Clock{}, apperror.Guess(apperror.InvalidFormat, "guess %q is not a valid time: %v", s, err)
	}
	return c, nil
}

func digits(s string, minLen, maxLen int) bool {
	if len(s) < minLen || len(s) > maxLen {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
