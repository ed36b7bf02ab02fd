package dataset

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `[
  {"NurseID": 1, "FName": "Mona", "LName": "Adel", "PhoneNumber": 201001234567, "Email": "mona@example.com",
   "Experience": 7, "Specialty": "ICU", "City": "القاهرة", "Street": "Tahrir", "AverageRating": 4.5,
   "ReviewCount": 12, "Comment": "great", "Score": 9.0},
  {"NurseID": 2, "FName": "Omar", "LName": "Saleh", "PhoneNumber": 201001234568, "Email": "omar@example.com",
   "Experience": 3, "Specialty": "ER", "City": null, "Street": "Nile", "AverageRating": 3.9,
   "ReviewCount": 4, "Comment": "", "Score": 6.1},
  {"NurseID": 3, "FName": "Sara", "LName": "Hany", "PhoneNumber": 201001234569, "Email": "sara@example.com",
   "Experience": 5, "Specialty": "Pediatrics", "City": 42, "Street": "Giza St", "AverageRating": 4.1,
   "ReviewCount": 8, "Comment": "kind", "Score": 7.5}
]`

const sampleCSV = "\ufeffNurseID,FName,LName,PhoneNumber,Email,Experience,Specialty,City,Street,AverageRating,ReviewCount,Comment,Score\n" +
	"1,Mona,Adel,201001234567,mona@example.com,7,ICU,القاهرة,Tahrir,4.5,12.0,great,9.0\n" +
	"2,Omar,Saleh,2.01001234568e11,omar@example.com,3.0,ER,,Nile,3.9,4.0,,6.1\n" +
	"3,Sara,Hany,201001234569,sara@example.com,5,Pediatrics,  القاهره ,\"Giza, St\",4.1,8.0,kind,7.5\n"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParse_JSON(t *testing.T) {
	path := writeFile(t, "nurses.json", sampleJSON)
	table, err := NewStore(path, false).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, table.Len())

	rows := table.Rows()
	assert.Equal(t, "Mona", rows[0].Record.FName)
	assert.Equal(t, int64(201001234567), rows[0].Record.PhoneNumber)
	assert.True(t, rows[0].HasCity())
	assert.False(t, rows[1].HasCity(), "null city should be absent")
	assert.True(t, rows[2].HasCity())
	assert.Equal(t, "42", rows[2].Record.City)

	keys := table.CityKeys()
	assert.Equal(t, []string{"القاهره", "", ""}, keys, "non-string city yields empty key")
}

func TestParse_JSONIntegralFloats(t *testing.T) {
	content := `[{"NurseID": 1.0, "PhoneNumber": 2.01001234567e11, "Experience": 5.0, "City": "Cairo", "Score": 8.5}]`
	table, err := NewStore(writeFile(t, "floats.json", content), false).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())

	rec := table.Rows()[0].Record
	assert.Equal(t, 1, rec.NurseID)
	assert.Equal(t, int64(201001234567), rec.PhoneNumber)
	assert.Equal(t, 5, rec.Experience)
}

func TestParse_JSONFractionalInteger(t *testing.T) {
	content := `[{"NurseID": 1.5, "City": "Cairo", "Score": 8.5}]`
	_, err := NewStore(writeFile(t, "frac.json", content), false).Load(context.Background())
	require.ErrorIs(t, err, ErrDataUnavailable)
	assert.Contains(t, err.Error(), "NurseID")
}

func TestParse_CSV(t *testing.T) {
	path := writeFile(t, "nurses.csv", sampleCSV)
	table, err := NewStore(path, false).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, table.Len())

	rows := table.Rows()
	assert.Equal(t, 1, rows[0].Record.NurseID)
	assert.Equal(t, int64(201001234568), rows[1].Record.PhoneNumber)
	assert.Equal(t, 3, rows[1].Record.Experience)
	assert.False(t, rows[1].HasCity(), "empty cell should be absent")
	assert.Equal(t, "Giza, St", rows[2].Record.Street)
	assert.Equal(t, 7.5, rows[2].Record.Score)
	assert.Equal(t, table.CityKeys()[0], table.CityKeys()[2])
}

func TestParse_CSVBadNumber(t *testing.T) {
	content := "NurseID,City,Score\n1,Cairo,high\n"
	_, err := NewStore(writeFile(t, "bad.csv", content), false).Load(context.Background())
	require.ErrorIs(t, err, ErrDataUnavailable)
	assert.Contains(t, err.Error(), "Score")
}

func TestParse_CSVMissingColumn(t *testing.T) {
	_, err := NewStore(writeFile(t, "bad.csv", "NurseID,Score\n1,3\n"), false).Load(context.Background())
	require.ErrorIs(t, err, ErrDataUnavailable)
}

func writeSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nurses.db")
	db, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE nurses (
		NurseID INTEGER PRIMARY KEY, FName TEXT, LName TEXT, PhoneNumber INTEGER, Email TEXT,
		Experience INTEGER, Specialty TEXT, City TEXT, Street TEXT, AverageRating REAL,
		ReviewCount REAL, Comment TEXT, Score REAL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO nurses VALUES
		(1, 'Mona', 'Adel', 201001234567, 'mona@example.com', 7, 'ICU', 'القاهرة', 'Tahrir', 4.5, 12, 'great', 9.0),
		(2, 'Omar', 'Saleh', NULL, NULL, 3, 'ER', NULL, 'Nile', 3.9, 4, NULL, 6.1)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	return path
}

func TestParse_SQLite(t *testing.T) {
	table, err := NewStore(writeSQLite(t), false).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, "القاهرة", table.Rows()[0].Record.City)
	assert.False(t, table.Rows()[1].HasCity())
	assert.Equal(t, "", table.Rows()[1].Record.Email)
}

func TestStore_SharedParseIgnoresCallerCancel(t *testing.T) {
	path := writeSQLite(t)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewStore(path, true)
	table, err := s.parseShared(ctx, data, 1, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
}

func TestStore_Unavailable(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		path    string
		content *string
	}{
		{"missing", filepath.Join(dir, "missing.json"), nil},
		{"empty file", filepath.Join(dir, "empty.json"), strPtr("")},
		{"empty array", filepath.Join(dir, "rows.json"), strPtr("[]")},
		{"corrupt json", filepath.Join(dir, "corrupt.json"), strPtr("[{")},
		{"duplicate ids", filepath.Join(dir, "dup.json"), strPtr(`[{"NurseID":1,"City":"a"},{"NurseID":1,"City":"b"}]`)},
		{"header only csv", filepath.Join(dir, "header.csv"), strPtr("NurseID,City\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.content != nil {
				require.NoError(t, os.WriteFile(tt.path, []byte(*tt.content), 0o600))
			}
			for _, cache := range []bool{false, true} {
				_, err := NewStore(tt.path, cache).Load(context.Background())
				assert.ErrorIs(t, err, ErrDataUnavailable, "cache=%v", cache)
			}
		})
	}
}

func TestStore_NoCacheReloadsEveryCall(t *testing.T) {
	path := writeFile(t, "nurses.json", sampleJSON)
	s := NewStore(path, false)

	a, err := s.Load(context.Background())
	require.NoError(t, err)
	b, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

func TestStore_FingerprintCache(t *testing.T) {
	path := writeFile(t, "nurses.json", sampleJSON)
	s := NewStore(path, true)

	a, err := s.Load(context.Background())
	require.NoError(t, err)
	b, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Same(t, a, b, "unchanged file should reuse parsed table")

	changed := strings.Replace(sampleJSON, `"Score": 9.0`, `"Score": 1.0`, 1)
	require.NoError(t, os.WriteFile(path, []byte(changed), 0o600))
	c, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, a, c, "changed file should invalidate cache")
	assert.Equal(t, 1.0, c.Rows()[0].Record.Score)
}

func TestStore_FingerprintCacheFileRemoved(t *testing.T) {
	path := writeFile(t, "nurses.json", sampleJSON)
	s := NewStore(path, true)
	_, err := s.Load(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	_, err = s.Load(context.Background())
	assert.ErrorIs(t, err, ErrDataUnavailable, "cache must not mask a missing file")
}

func TestStore_Check(t *testing.T) {
	assert.NoError(t, NewStore(writeFile(t, "n.json", sampleJSON), false).Check())
	assert.ErrorIs(t, NewStore(writeFile(t, "e.json", ""), false).Check(), ErrDataUnavailable)
	assert.ErrorIs(t, NewStore(filepath.Join(t.TempDir(), "x.json"), false).Check(), ErrDataUnavailable)
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, DetectFormat("a.JSON", nil))
	assert.Equal(t, FormatCSV, DetectFormat("a.csv", nil))
	assert.Equal(t, FormatSQLite, DetectFormat("a.sqlite3", nil))
	assert.Equal(t, FormatJSON, DetectFormat("nurse_data", []byte("  [ ]")))
	assert.Equal(t, FormatSQLite, DetectFormat("nurse_data", append([]byte("SQLite format 3\x00"), 1, 2)))
	assert.Equal(t, FormatCSV, DetectFormat("nurse_data", []byte("NurseID,City")))
}

func strPtr(s string) *string { return &s }
