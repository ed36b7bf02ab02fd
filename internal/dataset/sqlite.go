package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/kjstillabower/nurse-directory/internal/models"
)

// readSQLite reads table "nurses" from a read-only SQLite database.
func readSQLite(ctx context.Context, path string) ([]Row, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite dataset: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	query := "SELECT " + strings.Join(Columns, ", ") + " FROM nurses ORDER BY rowid"
	rs, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query sqlite dataset: %w", err)
	}
	defer rs.Close()

	var rows []Row
	for rs.Next() {
		var (
			n                                      models.NurseRecord
			fname, lname, email, specialty, street sql.NullString
			comment, city                          sql.NullString
			phone                                  sql.NullInt64
			experience                             sql.NullInt64
			rating, reviews, score                 sql.NullFloat64
		)
		if err := rs.Scan(&n.NurseID, &fname, &lname, &phone, &email, &experience,
			&specialty, &city, &street, &rating, &reviews, &comment, &score); err != nil {
			return nil, fmt.Errorf("scan sqlite row: %w", err)
		}
		n.FName = fname.String
		n.LName = lname.String
		n.PhoneNumber = phone.Int64
		n.Email = email.String
		n.Experience = int(experience.Int64)
		n.Specialty = specialty.String
		n.Street = street.String
		n.AverageRating = rating.Float64
		n.ReviewCount = reviews.Float64
		n.Comment = comment.String
		n.Score = score.Float64

		var cityValue any
		if city.Valid {
			cityValue = city.String
			n.City = city.String
		}
		rows = append(rows, Row{Record: n, CityValue: cityValue})
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("iterate sqlite rows: %w", err)
	}
	return rows, nil
}
