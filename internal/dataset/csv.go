package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/kjstillabower/nurse-directory/internal/models"
)

// Columns is the dataset header in export order.
var Columns = []string{
	"NurseID", "FName", "LName", "PhoneNumber", "Email", "Experience",
	"Specialty", "City", "Street", "AverageRating", "ReviewCount", "Comment", "Score",
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func parseCSV(data []byte) ([]Row, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, required := range []string{"NurseID", "City"} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("csv header missing column %s", required)
		}
	}

	var rows []Row
	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		row, err := csvRow(idx, rec)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func csvRow(idx map[string]int, rec []string) (Row, error) {
	cell := func(name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var (
		n   models.NurseRecord
		err error
	)
	if n.NurseID, err = parseInt("NurseID", cell("NurseID")); err != nil {
		return Row{}, err
	}
	phone, err := parseInt64("PhoneNumber", cell("PhoneNumber"))
	if err != nil {
		return Row{}, err
	}
	n.PhoneNumber = phone
	if n.Experience, err = parseInt("Experience", cell("Experience")); err != nil {
		return Row{}, err
	}
	if n.AverageRating, err = parseFloat("AverageRating", cell("AverageRating")); err != nil {
		return Row{}, err
	}
	if n.ReviewCount, err = parseFloat("ReviewCount", cell("ReviewCount")); err != nil {
		return Row{}, err
	}
	if n.Score, err = parseFloat("Score", cell("Score")); err != nil {
		return Row{}, err
	}
	n.FName = cell("FName")
	n.LName = cell("LName")
	n.Email = cell("Email")
	n.Specialty = cell("Specialty")
	n.Street = cell("Street")
	n.Comment = cell("Comment")

	// An empty cell is a missing value, as in the exporter's output.
	var city any
	if c := cell("City"); c != "" {
		city = c
		n.City = c
	}
	return Row{Record: n, CityValue: city}, nil
}

func parseInt(col, s string) (int, error) {
	v, err := parseInt64(col, s)
	return int(v), err
}

// parseInt64 accepts plain integers and integral floats such as "5.0" or
// "2.01e9", which the exporter emits for nullable integer columns.
func parseInt64(col, s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("column %s: invalid integer %q", col, s)
	}
	return int64(f), nil
}

func parseFloat(col, s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: invalid number %q", col, s)
	}
	return f, nil
}
