package scoring

import (
	"time"

	"github.com/coko7/advent-of-time/internal/model"
)

// ReleaseZone is the fixed reference timezone of the calendar (CET, UTC+1).
// It does not follow daylight saving: the season runs in December.
var ReleaseZone = time.FixedZone("CET", 60*60)

// ReleaseHour is the local hour at which the current day unlocks.
const ReleaseHour = 6

// IsReleased reports whether day can be viewed and guessed at now.
//
// Days before today (in ReleaseZone) are always open, days after today never
// are, and today opens once the reference clock is past 06:00.
func IsReleased(now time.Time, day model.Day) bool {
	if !day.Valid() {
		return false
	}

	local := now.In(ReleaseZone)
	today := model.Day(local.Day())
	switch {
	case day < today:
		return true
	case day > today:
		return false
	}

	opening := time.Date(local.Year(), local.Month(), local.Day(), ReleaseHour, 0, 0, 0, ReleaseZone)
	return local.After(opening)
}

// CurrentDay returns today's calendar slot in ReleaseZone, capped at LastDay.
func CurrentDay(now time.Time) model.Day {
	d := model.Day(now.In(ReleaseZone).Day())
	if d > model.LastDay {
		return model.LastDay
	}
	return d
}
