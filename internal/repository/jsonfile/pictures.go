package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/coko7/advent-of-time/internal/apperror"
	"github.com/coko7/advent-of-time/internal/model"
	"github.com/coko7/advent-of-time/internal/repository"
)

var _ repository.PictureRepository = (*PictureStore)(nil)

// DefaultPictureTTL is how long pictures.json stays cached when the config
// does not say otherwise.
const DefaultPictureTTL = time.Minute

const picturesKey = "pictures"

// PictureStore reads pictures.json. Image paths inside it are relative to the
// directory holding the file.
//
// The parsed file is cached, so editing pictures.json during the season takes
// effect after at most one TTL.
type PictureStore struct {
	path  string
	dir   string
	cache *gocache.Cache
}

// NewPictureStore returns a store for the pictures file at path. A ttl <= 0
// selects DefaultPictureTTL.
func NewPictureStore(path string, ttl time.Duration) *PictureStore {
	if ttl <= 0 {
		ttl = DefaultPictureTTL
	}
	return &PictureStore{
		path:  path,
		dir:   filepath.Dir(path),
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Get returns the picture of day, or an apperror.ErrNotFound error.
func (s *PictureStore) Get(ctx context.Context, day model.Day) (*model.Picture, error) {
	pics, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range pics {
		if p.Day == day {
			return &p, nil
		}
	}
	return nil, apperror.NotFound("picture", strconv.Itoa(int(day)))
}

// List returns every picture ordered by day.
func (s *PictureStore) List(_ context.Context) ([]model.Picture, error) {
	v, ok := s.cache.Get(picturesKey)
	if !ok {
		pics, err := s.load()
		if err != nil {
			return nil, err
		}
		s.cache.SetDefault(picturesKey, pics)
		v = pics
	}

	// Callers get their own copy; the cached slice is shared.
	cached := v.([]model.Picture)
	out := make([]model.Picture, len(cached))
	copy(out, cached)
	return out, nil
}

func (s *PictureStore) ImagePath(pic model.Picture) string {
	if filepath.IsAbs(pic.Path) {
		return pic.Path
	}
	return filepath.Join(s.dir, pic.Path)
}

func (s *PictureStore) load() ([]model.Picture, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, apperror.Store("reading pictures", fmt.Errorf("jsonfile: %w", err))
	}

	var pics []model.Picture
	if err := json.Unmarshal(data, &pics); err != nil {
		return nil, apperror.Store("reading pictures", fmt.Errorf("jsonfile: decoding %s: %w", s.path, err))
	}
	sort.Slice(pics, func(i, j int) bool { return pics[i].Day < pics[j].Day })
	return pics, nil
}
