// Package scoring turns a guessed time of day into points.
//
// THE REWARD CURVE:
// A guess is compared to the time the day's picture was taken. The absolute
// distance d (in minutes, same calendar day, no wrap around midnight) is fed
// into a continuous decay:
//
//	points = round(maxReward * (1 - (d / divider)^exponent))
//
// clamped to [0, maxReward]. An exact guess earns maxReward; a guess divider
// minutes away (or more) earns nothing. The three constants live in Config and
// are injected, so the curve can be retuned without touching stored guesses:
// points are always recomputed from the stored HH:MM.
package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/coko7/advent-of-time/internal/model"
)

// Defaults used when the configuration leaves the score block empty.
const (
	DefaultMaxReward = 100
	DefaultDivider   = 720 // 12 hours
	DefaultExponent  = 0.5
)

// Config holds the shape parameters of the reward curve.
type Config struct {
	MaxReward float64 `yaml:"max_reward"`
	Divider   int     `yaml:"divider"`
	Exponent  float64 `yaml:"exponent"`
}

// DefaultConfig returns the curve used in production unless overridden.
func DefaultConfig() Config {
	return Config{
		MaxReward: DefaultMaxReward,
		Divider:   DefaultDivider,
		Exponent:  DefaultExponent,
	}
}

// Validate rejects curves that would break the exact-match ceiling or the
// zero floor.
func (c Config) Validate() error {
	if c.MaxReward <= 0 {
		return errors.New("scoring: max_reward must be positive")
	}
	if c.Divider <= 0 {
		return errors.New("scoring: divider must be positive")
	}
	if c.Exponent <= 0 {
		return errors.New("scoring: exponent must be positive")
	}
	return nil
}

// Engine computes points. It is immutable and safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine validates cfg and returns an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// MaxReward returns the points awarded for an exact guess.
func (e *Engine) MaxReward() int {
	return int(math.Round(e.cfg.MaxReward))
}

// Points maps a minute distance to points.
func (e *Engine) Points(distance int) int {
	if distance < 0 {
		distance = -distance
	}
	if distance == 0 {
		return e.MaxReward()
	}
	if distance >= e.cfg.Divider {
		return 0
	}

	ratio := float64(distance) / float64(e.cfg.Divider)
	raw := e.cfg.MaxReward * (1 - math.Pow(ratio, e.cfg.Exponent))
	points := int(math.Round(raw))

	switch {
	case points < 0:
		return 0
	case points > e.MaxReward():
		return e.MaxReward()
	}
	return points
}

// Score returns the points earned by guess against truth.
func (e *Engine) Score(guess, truth Clock) int {
	return e.Points(guess.Distance(truth))
}

// PictureLookup resolves the ground truth of a day. Returning ok == false
// means the day has no picture (yet); its guesses then count for nothing.
type PictureLookup func(day model.Day) (model.Picture, bool)

// GuessPoints derives the points of a stored guess.
func (e *Engine) GuessPoints(entry model.GuessEntry, pic model.Picture) (int, error) {
	truth, err := ParseClock(pic.TimeTaken)
	if err != nil {
		return 0, fmt.Errorf("scoring: picture for day %d has invalid time %q: %w", pic.Day, pic.TimeTaken, err)
	}
	return e.Score(Clock{Hour: entry.Hour, Minute: entry.Minute}, truth), nil
}

// TotalScore sums the derived points of every guess the user made. Days whose
// picture is missing or malformed contribute zero.
func (e *Engine) TotalScore(u *model.User, lookup PictureLookup) int {
	total := 0
	for day, entry := range u.Guesses {
		pic, ok := lookup(day)
		if !ok {
			continue
		}
		points, err := e.GuessPoints(entry, pic)
		if err != nil {
			continue
		}
		total += points
	}
	return total
}
