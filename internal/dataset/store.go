package dataset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/nurse-directory/internal/observability"
)

// Store loads the dataset from path. With caching disabled every Load reads
// and parses the file again. With caching enabled the file is still read on
// every Load, but the parsed Table is reused while its xxhash fingerprint is
// unchanged.
type Store struct {
	path         string
	cacheEnabled bool

	mu          sync.RWMutex
	fingerprint uint64
	table       *Table

	group singleflight.Group
}

// NewStore returns a Store for the file at path.
func NewStore(path string, cacheEnabled bool) *Store {
	return &Store{path: path, cacheEnabled: cacheEnabled}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the current table. Errors wrap ErrDataUnavailable.
func (s *Store) Load(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	data, err := s.read()
	if err != nil {
		observability.DatasetLoadsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if !s.cacheEnabled {
		return s.parse(ctx, data, start)
	}

	fp := xxhash.Sum64(data)
	s.mu.RLock()
	cached := s.table
	hit := cached != nil && s.fingerprint == fp
	s.mu.RUnlock()
	if hit {
		observability.DatasetLoadsTotal.WithLabelValues("cached").Inc()
		return cached, nil
	}

	return s.parseShared(ctx, data, fp, start)
}

// parseShared parses data once per fingerprint and stores the result.
// Concurrent callers share the parse, which ignores their cancellation.
func (s *Store) parseShared(ctx context.Context, data []byte, fp uint64, start time.Time) (*Table, error) {
	parseCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(strconv.FormatUint(fp, 16), func() (interface{}, error) {
		t, err := s.parse(parseCtx, data, start)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.fingerprint = fp
		s.table = t
		s.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Table), nil
}

// Check reports whether the backing file exists and is non-empty. Used by
// the health endpoint; it does not parse.
func (s *Store) Check() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrDataUnavailable, s.path)
	}
	return nil
}

func (s *Store) read() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found", ErrDataUnavailable, s.path)
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrDataUnavailable, s.path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrDataUnavailable, s.path)
	}
	return data, nil
}

func (s *Store) parse(ctx context.Context, data []byte, start time.Time) (*Table, error) {
	t, err := Parse(ctx, s.path, data)
	observability.DatasetLoadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.DatasetLoadsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	observability.DatasetLoadsTotal.WithLabelValues("parsed").Inc()
	observability.DatasetRows.Set(float64(t.Len()))
	return t, nil
}
