package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/coko7/advent-of-time/internal/apperror"
	"github.com/coko7/advent-of-time/internal/leaderboard"
	"github.com/coko7/advent-of-time/internal/metrics"
	"github.com/coko7/advent-of-time/internal/model"
	"github.com/coko7/advent-of-time/internal/repository"
	"github.com/coko7/advent-of-time/internal/scoring"
)

// GameService holds the game rules: which days are open, what a player sees
// for a day, guess submission, the profile page and the leaderboard.
//
// Points are never stored. Every read derives them from the stored guess and
// the picture's time, so retuning the curve rescores the whole season.
type GameService struct {
	users    repository.UserRepository
	pictures repository.PictureRepository
	engine   *scoring.Engine
	metrics  *metrics.Metrics
	logger   *slog.Logger
	clock    Clock
}

// GameDeps groups the collaborators of GameService.
type GameDeps struct {
	Users    repository.UserRepository
	Pictures repository.PictureRepository
	Engine   *scoring.Engine
	Metrics  *metrics.Metrics // optional
	Logger   *slog.Logger
	Clock    Clock // optional, defaults to time.Now
}

func NewGameService(d GameDeps) *GameService {
	return &GameService{
		users:    d.Users,
		pictures: d.Pictures,
		engine:   d.Engine,
		metrics:  d.Metrics,
		logger:   d.Logger,
		clock:    d.Clock,
	}
}

// CalendarDay is one tile of the calendar.
type CalendarDay struct {
	Day      model.Day `json:"day"`
	Released bool      `json:"released"`
	Guessed  bool      `json:"guessed"`
}

// Calendar lists all 25 days. user may be nil for anonymous visitors.
func (s *GameService) Calendar(user *model.User) []CalendarDay {
	now := s.clock.now()
	days := make([]CalendarDay, 0, int(model.LastDay))
	for d := model.FirstDay; d <= model.LastDay; d++ {
		days = append(days, CalendarDay{
			Day:      d,
			Released: scoring.IsReleased(now, d),
			Guessed:  user != nil && user.HasGuessed(d),
		})
	}
	return days
}

// GuessResult is a player's guess for one day, revealed with the answer.
type GuessResult struct {
	Time        string    `json:"time"`
	Points      int       `json:"points"`
	RealTime    string    `json:"real_time"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// DayView is what a player sees for one released day. The real time is only
// part of it once the player has guessed.
type DayView struct {
	Day           model.Day    `json:"day"`
	ImageURL      string       `json:"img_src"`
	ImageAlt      string       `json:"img_alt"`
	DateHint      string       `json:"date_hint"`
	LocationHint  *string      `json:"location_hint,omitempty"`
	Authenticated bool         `json:"authenticated"`
	Guess         *GuessResult `json:"guess,omitempty"`
}

// Day returns the view of day for user (nil when anonymous). Days that are
// not released yet are reported as not found.
func (s *GameService) Day(ctx context.Context, user *model.User, day model.Day) (*DayView, error) {
	pic, err := s.releasedPicture(ctx, day)
	if err != nil {
		return nil, err
	}

	view := &DayView{
		Day:           day,
		ImageURL:      fmt.Sprintf("/day-pic/%d", day),
		ImageAlt:      fmt.Sprintf("Image for day %d", day),
		DateHint:      pic.OriginalDate,
		LocationHint:  pic.Location,
		Authenticated: user != nil,
	}

	if user != nil {
		if entry, ok := user.Guesses[day]; ok {
			points, err := s.engine.GuessPoints(entry, *pic)
			if err != nil {
				return nil, fmt.Errorf("service/game: %w", err)
			}
			view.Guess = &GuessResult{
				Time:        scoring.Clock{Hour: entry.Hour, Minute: entry.Minute}.String(),
				Points:      points,
				RealTime:    pic.TimeTaken,
				SubmittedAt: entry.SubmittedAt,
			}
		}
	}
	return view, nil
}

// PicturePath returns the image file of a released day.
func (s *GameService) PicturePath(ctx context.Context, day model.Day) (string, error) {
	pic, err := s.releasedPicture(ctx, day)
	if err != nil {
		return "", err
	}
	return s.pictures.ImagePath(*pic), nil
}

func (s *GameService) releasedPicture(ctx context.Context, day model.Day) (*model.Picture, error) {
	if !scoring.IsReleased(s.clock.now(), day) {
		return nil, apperror.NotFound("day", strconv.Itoa(int(day)))
	}
	pic, err := s.pictures.Get(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("service/game: loading picture of day %d: %w", day, err)
	}
	return pic, nil
}

// SubmitGuess records the first guess of userID for day and returns the
// points it earned.
//
// Checks, in order: the day is released, the user has not guessed it yet,
// the guess parses as HH:MM. Any failure is an *apperror.GuessError and
// nothing is stored.
func (s *GameService) SubmitGuess(ctx context.Context, userID string, day model.Day, raw string) (int, error) {
	now := s.clock.now()

	if !scoring.IsReleased(now, day) {
		return 0, s.rejectGuess(apperror.Guess(apperror.DayNotReleased, "day %d is not released yet", day))
	}

	var points int
	_, err := updateUser(ctx, s.users, userID, func(u *model.User) error {
		if u.HasGuessed(day) {
			return apperror.Guess(apperror.AlreadyGuessed, "You have already guessed this day!")
		}

		clock, err := scoring.ParseGuess(raw)
		if err != nil {
			return err
		}

		pic, err := s.pictures.Get(ctx, day)
		if err != nil {
			return fmt.Errorf("loading picture of day %d: %w", day, err)
		}

		entry := model.GuessEntry{SubmittedAt: now, Hour: clock.Hour, Minute: clock.Minute}
		points, err = s.engine.GuessPoints(entry, *pic)
		if err != nil {
			return err
		}
		u.AddGuess(day, entry)
		return nil
	})
	if err != nil {
		var ge *apperror.GuessError
		if errors.As(err, &ge) {
			return 0, s.rejectGuess(ge)
		}
		s.metrics.GuessRejected(metrics.OutcomeError)
		return 0, fmt.Errorf("service/guess: %w", err)
	}

	s.metrics.GuessAccepted(points)
	s.logger.Info("guess accepted",
		slog.String("userID", userID),
		slog.Int("day", int(day)),
		slog.Int("points", points),
	)
	return points, nil
}

func (s *GameService) rejectGuess(ge *apperror.GuessError) error {
	s.metrics.GuessRejected(string(ge.Reason))
	s.logger.Debug("guess rejected", slog.String("reason", string(ge.Reason)), slog.String("message", ge.Message))
	return fmt.Errorf("service/guess: %w", ge)
}

// ProfileDay is one row of the profile table.
type ProfileDay struct {
	Day      model.Day `json:"day"`
	Guessed  bool      `json:"guessed"`
	Time     string    `json:"time"`
	RealTime *string   `json:"real_time,omitempty"`
	Points   int       `json:"points"`
}

// ProfileView summarizes a player's season.
type ProfileView struct {
	DisplayName string       `json:"username"`
	AccountName string       `json:"account_name"`
	Provider    string       `json:"provider"`
	Days        []ProfileDay `json:"days"`
	TotalScore  int          `json:"total_score"`
	Rank        int          `json:"rank,omitempty"`
}

// Profile lists every day up to today with the user's guess and points.
func (s *GameService) Profile(ctx context.Context, user *model.User) (*ProfileView, error) {
	pics, err := s.pictureIndex(ctx)
	if err != nil {
		return nil, err
	}

	view := &ProfileView{
		DisplayName: user.DisplayName,
		AccountName: user.ProviderUsername,
		Provider:    user.OAuthProvider,
	}

	today := scoring.CurrentDay(s.clock.now())
	for d := model.FirstDay; d <= today; d++ {
		row := ProfileDay{Day: d}
		if entry, ok := user.Guesses[d]; ok {
			row.Guessed = true
			row.Time = scoring.Clock{Hour: entry.Hour, Minute: entry.Minute}.String()
			if pic, ok := pics[d]; ok {
				realTime := pic.TimeTaken
				row.RealTime = &realTime
				if p, err := s.engine.GuessPoints(entry, pic); err == nil {
					row.Points = p
				}
			}
		}
		view.Days = append(view.Days, row)
	}
	view.TotalScore = s.engine.TotalScore(user, lookupIn(pics))

	board, err := s.rank(ctx, pics)
	if err != nil {
		return nil, err
	}
	if e, ok := leaderboard.Position(board, user.ID); ok {
		view.Rank = e.Rank
	}
	return view, nil
}

// LeaderboardView is the ranked list of players.
type LeaderboardView struct {
	Entries   []leaderboard.Entry `json:"entries"`
	TotalDays int                 `json:"total_days"`
}

// Leaderboard ranks every visible player with at least one guess.
func (s *GameService) Leaderboard(ctx context.Context) (*LeaderboardView, error) {
	pics, err := s.pictureIndex(ctx)
	if err != nil {
		return nil, err
	}
	board, err := s.rank(ctx, pics)
	if err != nil {
		return nil, err
	}
	return &LeaderboardView{
		Entries:   board,
		TotalDays: int(scoring.CurrentDay(s.clock.now())),
	}, nil
}

func (s *GameService) rank(ctx context.Context, pics map[model.Day]model.Picture) ([]leaderboard.Entry, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/leaderboard: %w", err)
	}
	lookup := lookupIn(pics)
	return leaderboard.Rank(users, leaderboard.ScorerFunc(func(u *model.User) int {
		return s.engine.TotalScore(u, lookup)
	})), nil
}

func (s *GameService) pictureIndex(ctx context.Context) (map[model.Day]model.Picture, error) {
	list, err := s.pictures.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/game: %w", err)
	}
	idx := make(map[model.Day]model.Picture, len(list))
	for _, p := range list {
		idx[p.Day] = p
	}
	return idx, nil
}

func lookupIn(pics map[model.Day]model.Picture) scoring.PictureLookup {
	return func(day model.Day) (model.Picture, bool) {
		p, ok := pics[day]
		return p, ok
	}
}
