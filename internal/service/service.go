package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/nurse-directory/internal/dataset"
	"github.com/kjstillabower/nurse-directory/internal/models"
	"github.com/kjstillabower/nurse-directory/internal/normalize"
	"github.com/kjstillabower/nurse-directory/internal/observability"
)

// ErrNotFound matches any *NotFoundError.
var ErrNotFound = errors.New("no nurses found")

// NotFoundError reports that no rows matched City. City is the query as the
// caller sent it.
type NotFoundError struct {
	City string
}

func (e *NotFoundError) Error() string {
	return "no nurses found in city: " + e.City
}

// Is makes errors.Is(err, ErrNotFound) true for *NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// SortKey selects the descending sort field.
type SortKey string

const (
	SortByScore         SortKey = "score"
	SortByAverageRating SortKey = "average_rating"
)

// ParseSortKey accepts "score" or "average_rating". Empty means score.
func ParseSortKey(s string) (SortKey, error) {
	switch SortKey(s) {
	case "", SortByScore:
		return SortByScore, nil
	case SortByAverageRating:
		return SortByAverageRating, nil
	}
	return "", fmt.Errorf("unknown sort key %q (want score or average_rating)", s)
}

func (k SortKey) value(r *models.NurseRecord) float64 {
	if k == SortByAverageRating {
		return r.AverageRating
	}
	return r.Score
}

// TableLoader supplies the dataset for one lookup. *dataset.Store implements it.
type TableLoader interface {
	Load(ctx context.Context) (*dataset.Table, error)
}

// NurseService answers city lookups against the nurse dataset.
type NurseService struct {
	loader   TableLoader
	sortBy   SortKey
	enricher *Enricher
}

// NewNurseService creates a NurseService. enricher may be nil, in which case
// results carry no CityInfo.
func NewNurseService(loader TableLoader, sortBy SortKey, enricher *Enricher) *NurseService {
	if sortBy == "" {
		sortBy = SortByScore
	}
	return &NurseService{
		loader:   loader,
		sortBy:   sortBy,
		enricher: enricher,
	}
}

// FindNurses returns every nurse whose normalized city equals the normalized
// query, best first. Rows with equal sort values keep dataset order.
//
// Errors: wraps dataset.ErrDataUnavailable when the dataset cannot be loaded,
// *NotFoundError when nothing matches.
func (s *NurseService) FindNurses(ctx context.Context, city string) ([]models.NurseRecord, error) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx)

	table, err := s.loader.Load(ctx)
	if err != nil {
		outcome := "error"
		if errors.Is(err, dataset.ErrDataUnavailable) {
			outcome = "unavailable"
		}
		observability.RecordLookup(city, outcome)
		return nil, fmt.Errorf("load nurses: %w", err)
	}

	key := normalize.Key(city)
	var matches []models.NurseRecord
	if key != "" {
		keys := table.CityKeys()
		for i, row := range table.Rows() {
			if !row.HasCity() || keys[i] != key {
				continue
			}
			matches = append(matches, row.Record)
		}
	}
	if len(matches) == 0 {
		observability.RecordLookup(city, "not_found")
		logger.Debug("no nurses matched", zap.String("city", city), zap.String("key", key))
		return nil, &NotFoundError{City: city}
	}

	sortDescending(matches, s.sortBy)

	if s.enricher != nil {
		s.enricher.Enrich(ctx, matches)
	}

	observability.RecordLookup(city, "found")
	logger.Debug("nurses served",
		zap.String("city", city),
		zap.Int("count", len(matches)),
		zap.Duration("duration", time.Since(start)),
	)
	return matches, nil
}

// sortDescending orders records by key, highest first. The sort is stable and
// NaN values sort after every number.
func sortDescending(records []models.NurseRecord, key SortKey) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := key.value(&records[i]), key.value(&records[j])
		if math.IsNaN(a) {
			return false
		}
		if math.IsNaN(b) {
			return true
		}
		return a > b
	})
}
