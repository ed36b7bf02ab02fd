// Package dataset reads the offline-produced nurse table. The file is treated
// as a read-only blob; nothing in this package writes to it.
package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kjstillabower/nurse-directory/internal/models"
	"github.com/kjstillabower/nurse-directory/internal/normalize"
)

// ErrDataUnavailable is returned when the backing file is missing, empty,
// unreadable, or does not parse into a valid table.
var ErrDataUnavailable = errors.New("nurse data unavailable")

// Format identifies the on-disk encoding of the dataset.
type Format string

const (
	FormatJSON   Format = "json"
	FormatCSV    Format = "csv"
	FormatSQLite Format = "sqlite"
)

var sqliteMagic = []byte("SQLite format 3\x00")

// Row is one dataset row. CityValue is the raw city cell: nil when the cell is
// absent, a string for text cells, and any other decoded value otherwise.
type Row struct {
	Record    models.NurseRecord
	CityValue any
}

// HasCity reports whether the row carries a city value at all.
func (r Row) HasCity() bool {
	return r.CityValue != nil
}

// Table is an immutable parsed dataset. A Table may be shared between
// requests when the fingerprint cache is enabled.
type Table struct {
	rows []Row

	keysOnce sync.Once
	keys     []string
}

func newTable(rows []Row) (*Table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: dataset has no rows", ErrDataUnavailable)
	}
	seen := make(map[int]struct{}, len(rows))
	for i, r := range rows {
		if _, dup := seen[r.Record.NurseID]; dup {
			return nil, fmt.Errorf("%w: duplicate NurseID %d at row %d", ErrDataUnavailable, r.Record.NurseID, i+1)
		}
		seen[r.Record.NurseID] = struct{}{}
	}
	return &Table{rows: rows}, nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Rows returns the rows in source order. Callers must not modify the slice.
func (t *Table) Rows() []Row {
	return t.rows
}

// CityKeys returns the normalized city key per row, index-aligned with Rows.
// Rows without a string city get "".
func (t *Table) CityKeys() []string {
	t.keysOnce.Do(func() {
		t.keys = make([]string, len(t.rows))
		for i, r := range t.rows {
			t.keys[i] = normalize.KeyOf(r.CityValue)
		}
	})
	return t.keys
}

// DetectFormat picks the format from the file extension, falling back to
// sniffing the content.
func DetectFormat(path string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".csv":
		return FormatCSV
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite
	}
	if bytes.HasPrefix(data, sqliteMagic) {
		return FormatSQLite
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		return FormatJSON
	}
	return FormatCSV
}

// Parse decodes data read from path into a Table. SQLite files are opened
// from path directly.
func Parse(ctx context.Context, path string, data []byte) (*Table, error) {
	var (
		rows []Row
		err  error
	)
	switch DetectFormat(path, data) {
	case FormatJSON:
		rows, err = parseJSON(data)
	case FormatSQLite:
		rows, err = readSQLite(ctx, path)
	default:
		rows, err = parseCSV(data)
	}
	if err != nil {
		if errors.Is(err, ErrDataUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	return newTable(rows)
}

func cityString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	default:
		return fmt.Sprint(c)
	}
}
