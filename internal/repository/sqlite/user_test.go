package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coko7/advent-of-time/internal/apperror"
	"github.com/coko7/advent-of-time/internal/model"
)

// newTestDB opens a private in-memory database.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser stores a fresh user and fails the test if it errors.
func createTestUser(t *testing.T, db *DB, id, token string) *model.User {
	t.Helper()
	expires := time.Date(2025, 12, 3, 10, 0, 0, 0, time.UTC)
	user := &model.User{
		ID:                  id,
		DisplayName:         "SwiftOtter" + id,
		ProviderUsername:    "user" + id,
		OAuthProvider:       "discord",
		AccessToken:         token,
		RefreshToken:        "refresh-" + id,
		AccessTokenExpireAt: &expires,
		Guesses:             map[model.Day]model.GuessEntry{},
	}
	if err := db.Upsert(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func TestUpsert_InsertSetsVersion(t *testing.T) {
	db := newTestDB(t)

	user := createTestUser(t, db, "1", "tok-1")

	if user.Version != 1 {
		t.Errorf("Upsert() version = %d, want 1", user.Version)
	}
}

func TestUpsert_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := createTestUser(t, db, "1", "tok-1")
	user.AddGuess(3, model.GuessEntry{
		SubmittedAt: time.Date(2025, 12, 3, 8, 0, 0, 0, time.UTC),
		Hour:        14,
		Minute:      5,
	})
	user.Hidden = true
	if err := db.Upsert(ctx, user); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := db.GetByID(ctx, "1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	if got.Version != 2 {
		t.Errorf("Version = %d, want 2", got.Version)
	}
	if !got.Hidden {
		t.Error("Hidden was not persisted")
	}
	g, ok := got.Guesses[3]
	if !ok {
		t.Fatal("guess for day 3 was not persisted")
	}
	if g.Hour != 14 || g.Minute != 5 {
		t.Errorf("guess = %02d:%02d, want 14:05", g.Hour, g.Minute)
	}
	if got.AccessTokenExpireAt == nil || !got.AccessTokenExpireAt.Equal(*user.AccessTokenExpireAt) {
		t.Errorf("AccessTokenExpireAt = %v, want %v", got.AccessTokenExpireAt, user.AccessTokenExpireAt)
	}
	if got.RefreshToken != "refresh-1" {
		t.Errorf("RefreshToken = %q, want refresh-1", got.RefreshToken)
	}
}

func TestUpsert_StaleVersionConflicts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "1", "tok-1")

	// Two requests read the same version...
	first, _ := db.GetByID(ctx, "1")
	second, _ := db.GetByID(ctx, "1")

	first.AddGuess(1, model.GuessEntry{Hour: 8})
	if err := db.Upsert(ctx, first); err != nil {
		t.Fatalf("first Upsert() error = %v", err)
	}

	// ...and the slower one must not erase the faster one's guess.
	second.AddGuess(2, model.GuessEntry{Hour: 9})
	err := db.Upsert(ctx, second)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("second Upsert() error = %v, want ErrConflict", err)
	}

	got, _ := db.GetByID(ctx, "1")
	if !got.HasGuessed(1) || got.HasGuessed(2) {
		t.Errorf("guesses = %v, want only day 1", got.Guesses)
	}
}

func TestUpsert_DuplicateInsertConflicts(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "1", "tok-1")

	dup := &model.User{ID: "1", DisplayName: "Other", OAuthProvider: "github"}
	err := db.Upsert(context.Background(), dup)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Upsert() error = %v, want ErrConflict", err)
	}
}

func TestUpsert_NilExpiry(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := &model.User{ID: "7", DisplayName: "x", OAuthProvider: "github", AccessToken: "forever"}
	if err := db.Upsert(ctx, user); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := db.GetByID(ctx, "7")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.AccessTokenExpireAt != nil {
		t.Errorf("AccessTokenExpireAt = %v, want nil", got.AccessTokenExpireAt)
	}
	if got.Guesses == nil {
		t.Error("Guesses should be an empty map, not nil")
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByID(context.Background(), "nope")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestGetByAccessToken(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "1", "tok-1")
	createTestUser(t, db, "2", "tok-2")

	tests := []struct {
		name    string
		token   string
		wantID  string
		wantErr error
	}{
		{"first", "tok-1", "1", nil},
		{"second", "tok-2", "2", nil},
		{"unknown", "tok-3", "", apperror.ErrNotFound},
		{"empty never matches", "", "", apperror.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.GetByAccessToken(ctx, tt.token)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("GetByAccessToken() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetByAccessToken() error = %v", err)
			}
			if got.ID != tt.wantID {
				t.Errorf("GetByAccessToken() ID = %q, want %q", got.ID, tt.wantID)
			}
		})
	}
}

func TestGetByAccessToken_LoggedOutUserHasNoSession(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "1", "tok-1")

	user.ClearAuth(time.Now())
	if err := db.Upsert(ctx, user); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if _, err := db.GetByAccessToken(ctx, "tok-1"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByAccessToken() after logout error = %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "b", "tok-b")
	createTestUser(t, db, "a", "tok-a")

	users, err := db.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("List() returned %d users, want 2", len(users))
	}
	if users[0].ID != "a" || users[1].ID != "b" {
		t.Errorf("List() order = [%s %s], want [a b]", users[0].ID, users[1].ID)
	}
}

func TestList_Empty(t *testing.T) {
	db := newTestDB(t)

	users, err := db.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(users) != 0 {
		t.Errorf("List() returned %d users, want 0", len(users))
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)

	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}
}
