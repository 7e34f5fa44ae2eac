// Package repository declares the storage contracts used by the services.
// Implementations live in sub-packages: jsonfile (flat files) and sqlite.
package repository

import (
	"context"

	"github.com/coko7/advent-of-time/internal/model"
)

// UserRepository persists player accounts.
//
// Lookups return an error matching apperror.ErrNotFound when nothing matches.
// I/O and decoding failures match apperror.ErrStore.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*model.User, error)

	// GetByAccessToken finds the user currently holding accessToken. An empty
	// token never matches.
	GetByAccessToken(ctx context.Context, accessToken string) (*model.User, error)

	// Upsert inserts the user or replaces the stored record with the same ID.
	// Stores with optimistic concurrency return apperror.ErrConflict when the
	// record changed since user was read; user.Version is updated on success.
	Upsert(ctx context.Context, user *model.User) error

	List(ctx context.Context) ([]*model.User, error)
}

// PictureRepository reads the day pictures. Pictures are managed outside the
// application, so there is no write side.
type PictureRepository interface {
	Get(ctx context.Context, day model.Day) (*model.Picture, error)
	List(ctx context.Context) ([]model.Picture, error)

	// ImagePath returns where the image file of pic lives on disk.
	ImagePath(pic model.Picture) string
}
