package service

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coko7/advent-of-time/internal/apperror"
	"github.com/coko7/advent-of-time/internal/model"
	"github.com/coko7/advent-of-time/internal/scoring"
)

// fakePictures is an in-memory repository.PictureRepository.
type fakePictures struct {
	pics map[model.Day]model.Picture
	err  error
}

func newFakePictures() *fakePictures {
	f := &fakePictures{pics: make(map[model.Day]model.Picture)}
	for d := model.FirstDay; d <= model.LastDay; d++ {
		f.pics[d] = model.Picture{
			Day:          d,
			Path:         "day" + strconv.Itoa(int(d)) + ".jpg",
			OriginalDate: "2024-06-01",
			TimeTaken:    "09:15",
		}
	}
	return f
}

func (f *fakePictures) Get(_ context.Context, day model.Day) (*model.Picture, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.pics[day]
	if !ok {
		return nil, apperror.NotFound("picture", strconv.Itoa(int(day)))
	}
	return &p, nil
}

func (f *fakePictures) List(_ context.Context) ([]model.Picture, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Picture, 0, len(f.pics))
	for d := model.FirstDay; d <= model.LastDay; d++ {
		if p, ok := f.pics[d]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePictures) ImagePath(pic model.Picture) string {
	return "/srv/pictures/" + pic.Path
}

type gameFixture struct {
	svc      *GameService
	repo     *fakeUserRepo
	pictures *fakePictures
}

// newGameFixture pins the clock to 2025-12-10 13:00 CET: days 1 to 10 are
// open, 11 onwards are not.
func newGameFixture(t *testing.T, users ...*model.User) *gameFixture {
	t.Helper()
	engine, err := scoring.NewEngine(scoring.DefaultConfig())
	require.NoError(t, err)

	f := &gameFixture{repo: newFakeUserRepo(users...), pictures: newFakePictures()}
	f.svc = NewGameService(GameDeps{
		Users:    f.repo,
		Pictures: f.pictures,
		Engine:   engine,
		Logger:   discardLogger(),
		Clock:    fixedClock(testNow),
	})
	return f
}

func player(id, name string) *model.User {
	return &model.User{
		ID:            id,
		DisplayName:   name,
		OAuthProvider: "discord",
		AccessToken:   "tok-" + id,
		Guesses:       map[model.Day]model.GuessEntry{},
	}
}

func guessAt(hour, minute int, at time.Time) model.GuessEntry {
	return model.GuessEntry{SubmittedAt: at, Hour: hour, Minute: minute}
}

// =========================================================================
// SubmitGuess TESTS
// =========================================================================

func TestSubmitGuess_Accepted(t *testing.T) {
	tests := []struct {
		guess  string
		points int
	}{
		{"09:15", 100},
		{"9:15", 100},
		{"12:15", 50}, // 180 minutes off, sqrt(0.25) = 0.5
		{"00:00", 12}, // 555 minutes off
		{"23:59", 0},  // past the 720 minute divider
	}

	for _, tt := range tests {
		t.Run(tt.guess, func(t *testing.T) {
			f := newGameFixture(t, player("1", "QuietOtter0001"))

			points, err := f.svc.SubmitGuess(context.Background(), "1", 3, tt.guess)
			require.NoError(t, err)

			stored := f.repo.stored(t, "1")
			require.True(t, stored.HasGuessed(3))
			assert.Equal(t, testNow, stored.Guesses[3].SubmittedAt)
			assert.Equal(t, tt.points, points)
		})
	}
}

func TestSubmitGuess_InvalidFormat(t *testing.T) {
	inputs := []string{"24:00", "12:60", "abc", "1:2:3", "", "-1:00", " 9:15"}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			f := newGameFixture(t, player("1", "a"))

			_, err := f.svc.SubmitGuess(context.Background(), "1", 3, in)

			assert.True(t, apperror.IsGuessReason(err, apperror.InvalidFormat), "got %v", err)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.False(t, f.repo.stored(t, "1").HasGuessed(3))
		})
	}
}

func TestSubmitGuess_NotReleased(t *testing.T) {
	for _, day := range []model.Day{11, 25, 0, 26} {
		t.Run(strconv.Itoa(int(day)), func(t *testing.T) {
			f := newGameFixture(t, player("1", "a"))

			_, err := f.svc.SubmitGuess(context.Background(), "1", day, "09:15")

			assert.True(t, apperror.IsGuessReason(err, apperror.DayNotReleased), "got %v", err)
			assert.Zero(t, f.repo.upserts)
		})
	}
}

func TestSubmitGuess_AlreadyGuessedKeepsFirstGuess(t *testing.T) {
	u := player("1", "a")
	first := guessAt(8, 0, testNow.Add(-time.Hour))
	u.Guesses[3] = first
	f := newGameFixture(t, u)

	_, err := f.svc.SubmitGuess(context.Background(), "1", 3, "09:15")

	var ge *apperror.GuessError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, apperror.AlreadyGuessed, ge.Reason)
	assert.Equal(t, "You have already guessed this day!", ge.Message)
	assert.Equal(t, first, f.repo.stored(t, "1").Guesses[3])
}

func TestSubmitGuess_RetriesOnConcurrentWrite(t *testing.T) {
	f := newGameFixture(t, player("1", "a"))
	f.repo.conflictOn = 1

	points, err := f.svc.SubmitGuess(context.Background(), "1", 3, "09:15")
	require.NoError(t, err)

	assert.Equal(t, 100, points)
	assert.Equal(t, 2, f.repo.upserts)
	assert.True(t, f.repo.stored(t, "1").HasGuessed(3))
}

func TestSubmitGuess_StoreFailure(t *testing.T) {
	f := newGameFixture(t, player("1", "a"))
	f.repo.upsertErr = apperror.Store("writing users", errors.New("disk full"))

	_, err := f.svc.SubmitGuess(context.Background(), "1", 3, "09:15")

	assert.ErrorIs(t, err, apperror.ErrStore)
}

func TestSubmitGuess_UnknownUser(t *testing.T) {
	f := newGameFixture(t)

	_, err := f.svc.SubmitGuess(context.Background(), "ghost", 3, "09:15")

	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// =========================================================================
// Calendar / Day TESTS
// =========================================================================

func TestCalendar(t *testing.T) {
	u := player("1", "a")
	u.Guesses[2] = guessAt(9, 0, testNow)
	f := newGameFixture(t)

	days := f.svc.Calendar(u)

	require.Len(t, days, 25)
	assert.Equal(t, model.Day(1), days[0].Day)
	assert.True(t, days[9].Released, "day 10")
	assert.False(t, days[10].Released, "day 11")
	assert.True(t, days[1].Guessed)
	assert.False(t, days[0].Guessed)

	for _, d := range f.svc.Calendar(nil) {
		assert.False(t, d.Guessed)
	}
}

func TestDay_Anonymous(t *testing.T) {
	f := newGameFixture(t)
	loc := "Lyon"
	pic := f.pictures.pics[4]
	pic.Location = &loc
	f.pictures.pics[4] = pic

	view, err := f.svc.Day(context.Background(), nil, 4)
	require.NoError(t, err)

	assert.Equal(t, "/day-pic/4", view.ImageURL)
	assert.Equal(t, "2024-06-01", view.DateHint)
	assert.Equal(t, &loc, view.LocationHint)
	assert.False(t, view.Authenticated)
	assert.Nil(t, view.Guess)
}

func TestDay_RevealsAnswerOnlyAfterGuess(t *testing.T) {
	u := player("1", "a")
	u.Guesses[4] = guessAt(12, 15, testNow)
	f := newGameFixture(t)

	view, err := f.svc.Day(context.Background(), u, 4)
	require.NoError(t, err)
	require.NotNil(t, view.Guess)
	assert.Equal(t, "12:15", view.Guess.Time)
	assert.Equal(t, "09:15", view.Guess.RealTime)
	assert.Equal(t, 50, view.Guess.Points)

	view, err = f.svc.Day(context.Background(), u, 5)
	require.NoError(t, err)
	assert.True(t, view.Authenticated)
	assert.Nil(t, view.Guess)
}

func TestDay_NotReleasedIsNotFound(t *testing.T) {
	f := newGameFixture(t)

	_, err := f.svc.Day(context.Background(), nil, 11)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = f.svc.PicturePath(context.Background(), 11)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestPicturePath(t *testing.T) {
	f := newGameFixture(t)

	path, err := f.svc.PicturePath(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "/srv/pictures/day7.jpg", path)
}

func TestDay_MissingPicture(t *testing.T) {
	f := newGameFixture(t)
	delete(f.pictures.pics, 6)

	_, err := f.svc.Day(context.Background(), nil, 6)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// =========================================================================
// Profile / Leaderboard TESTS
// =========================================================================

func TestProfile(t *testing.T) {
	u := player("1", "QuietOtter0001")
	u.ProviderUsername = "nelly"
	u.Guesses[1] = guessAt(9, 15, testNow)
	u.Guesses[2] = guessAt(12, 15, testNow)

	rival := player("2", "BoldFalcon0002")
	rival.Guesses[1] = guessAt(9, 15, testNow)
	rival.Guesses[2] = guessAt(9, 15, testNow)

	f := newGameFixture(t, u, rival)

	view, err := f.svc.Profile(context.Background(), u)
	require.NoError(t, err)

	assert.Equal(t, "QuietOtter0001", view.DisplayName)
	assert.Equal(t, "nelly", view.AccountName)
	assert.Equal(t, "discord", view.Provider)
	require.Len(t, view.Days, 10, "one row per day up to today")
	assert.True(t, view.Days[0].Guessed)
	assert.Equal(t, 100, view.Days[0].Points)
	assert.Equal(t, "12:15", view.Days[1].Time)
	require.NotNil(t, view.Days[1].RealTime)
	assert.Equal(t, "09:15", *view.Days[1].RealTime)
	assert.False(t, view.Days[2].Guessed)
	assert.Nil(t, view.Days[2].RealTime)
	assert.Equal(t, 150, view.TotalScore)
	assert.Equal(t, 2, view.Rank)
}

func TestProfile_UnrankedUser(t *testing.T) {
	u := player("1", "a")
	f := newGameFixture(t, u)

	view, err := f.svc.Profile(context.Background(), u)
	require.NoError(t, err)

	assert.Zero(t, view.TotalScore)
	assert.Zero(t, view.Rank)
}

func TestLeaderboard(t *testing.T) {
	early := player("1", "Early")
	early.Guesses[1] = guessAt(9, 15, testNow.Add(-2*time.Hour))

	late := player("2", "Late")
	late.Guesses[1] = guessAt(9, 15, testNow.Add(-time.Hour))

	best := player("3", "Best")
	best.Guesses[1] = guessAt(9, 15, testNow)
	best.Guesses[2] = guessAt(9, 15, testNow)

	hidden := player("4", "Hidden")
	hidden.Hidden = true
	hidden.Guesses[1] = guessAt(9, 15, testNow)
	hidden.Guesses[2] = guessAt(9, 15, testNow)
	hidden.Guesses[3] = guessAt(9, 15, testNow)

	idle := player("5", "Idle")

	f := newGameFixture(t, early, late, best, hidden, idle)

	view, err := f.svc.Leaderboard(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, view.TotalDays)
	require.Len(t, view.Entries, 3)
	assert.Equal(t, "Best", view.Entries[0].DisplayName)
	assert.Equal(t, 200, view.Entries[0].Score)
	assert.Equal(t, "Early", view.Entries[1].DisplayName, "ties go to the earlier last guess")
	assert.Equal(t, "Late", view.Entries[2].DisplayName)
	assert.Equal(t, 3, view.Entries[2].Rank)
}

func TestLeaderboard_PicturesUnavailable(t *testing.T) {
	f := newGameFixture(t)
	f.pictures.err = apperror.Store("reading pictures", errors.New("gone"))

	_, err := f.svc.Leaderboard(context.Background())
	assert.ErrorIs(t, err, apperror.ErrStore)
}
