package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/coko7/advent-of-time/internal/apperror"
	"github.com/coko7/advent-of-time/internal/auth"
	"github.com/coko7/advent-of-time/internal/model"
	"github.com/coko7/advent-of-time/internal/service"
)

// Game is the part of service.GameService the HTTP layer uses.
type Game interface {
	Calendar(user *model.User) []service.CalendarDay
	Day(ctx context.Context, user *model.User, day model.Day) (*service.DayView, error)
	PicturePath(ctx context.Context, day model.Day) (string, error)
	SubmitGuess(ctx context.Context, userID string, day model.Day, raw string) (int, error)
	Profile(ctx context.Context, user *model.User) (*service.ProfileView, error)
	Leaderboard(ctx context.Context) (*service.LeaderboardView, error)
}

// maxGuessBody caps the size of a guess request.
const maxGuessBody = 1 << 10

// GameHandler serves the calendar, the day pages, guesses, the profile and
// the leaderboard. Pages are JSON; the front end renders them.
type GameHandler struct {
	game   Game
	logger *slog.Logger
}

func NewGameHandler(game Game, logger *slog.Logger) *GameHandler {
	return &GameHandler{game: game, logger: logger}
}

// currentUser returns the user set by the auth middleware, or nil.
func currentUser(r *http.Request) *model.User {
	user, _ := auth.UserFromContext(r.Context())
	return user
}

// dayParam reads the {day} path segment. Anything that is not a number is
// reported as not found.
func dayParam(r *http.Request) (model.Day, error) {
	raw := chi.URLParam(r, "day")
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.NotFound("day", raw)
	}
	return model.Day(n), nil
}

type calendarResponse struct {
	Days []service.CalendarDay `json:"days"`
}

// HandleCalendar lists the 25 days with their release and guess state.
//
// HTTP: GET /api/calendar
func (h *GameHandler) HandleCalendar(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, calendarResponse{Days: h.game.Calendar(currentUser(r))})
}

// HandleDay returns the hints of a released day, plus the answer once the
// caller has guessed it.
//
// HTTP: GET /api/day/{day}
func (h *GameHandler) HandleDay(w http.ResponseWriter, r *http.Request) {
	day, err := dayParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := h.game.Day(r.Context(), currentUser(r), day)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleDayPicture streams the picture of a released day.
//
// HTTP: GET /day-pic/{day}
func (h *GameHandler) HandleDayPicture(w http.ResponseWriter, r *http.Request) {
	day, err := dayParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	path, err := h.game.PicturePath(r.Context(), day)
	if err != nil {
		writeError(w, err)
		return
	}
	http.ServeFile(w, r, path)
}

type guessRequest struct {
	Day   int    `json:"day"`
	Guess string `json:"guess"`
}

type guessResponse struct {
	Points int `json:"points"`
}

// HandleGuess records the caller's guess for a day.
//
// HTTP: POST /guess/{day}
// REQUEST BODY: {"day": 3, "guess": "14:05"}
// Auth: Required
//
// The day in the body must match the path. A refused guess answers 400 with
// {"error": "<reason>"}.
func (h *GameHandler) HandleGuess(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if user == nil {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}

	day, err := dayParam(r)
	if err != nil {
		writeGuessError(w, apperror.Guess(apperror.InvalidFormat, "invalid day"))
		return
	}

	var req guessRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxGuessBody)).Decode(&req); err != nil {
		h.logger.Debug("invalid guess JSON", slog.String("error", err.Error()))
		writeGuessError(w, apperror.Guess(apperror.InvalidFormat, "invalid request body"))
		return
	}
	if model.Day(req.Day) != day {
		writeGuessError(w, apperror.Guess(apperror.InvalidFormat, "day %d does not match the requested day %d", req.Day, day))
		return
	}

	points, err := h.game.SubmitGuess(r.Context(), user.ID, day, req.Guess)
	if err != nil {
		writeGuessError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, guessResponse{Points: points})
}

// HandleProfile returns the caller's season summary.
//
// HTTP: GET /api/profile
// Auth: Required
func (h *GameHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if user == nil {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}

	view, err := h.game.Profile(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleLeaderboard returns the ranked players.
//
// HTTP: GET /api/leaderboard
func (h *GameHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	view, err := h.game.Leaderboard(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleHealth is the liveness probe.
//
// HTTP: GET /healthz
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
