// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes users and pictures
//
// Services take repository interfaces, never a concrete store, and return
// apperror values that the handler layer maps to HTTP. None of them know about
// cookies, status codes or routing.
//
// TIME:
// Every service has a now func so tests can pin the clock. The release
// window, token expiry and guess timestamps all read it.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coko7/advent-of-time/internal/apperror"
	"github.com/coko7/advent-of-time/internal/model"
	"github.com/coko7/advent-of-time/internal/repository"
)

// Clock returns the current time. time.Now in production.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// updateUser reads the user with id, applies mutate and stores the result.
//
// When the store detects a concurrent write (apperror.ErrConflict) the whole
// read → mutate → upsert cycle runs once more on a fresh copy, so mutate must
// be safe to repeat. A second conflict is returned to the caller.
func updateUser(ctx context.Context, users repository.UserRepository, id string, mutate func(*model.User) error) (*model.User, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		u, err := users.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := mutate(u); err != nil {
			return nil, err
		}
		err = users.Upsert(ctx, u)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("service: user %s kept changing: %w", id, lastErr)
}
