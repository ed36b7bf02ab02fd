package dataset

import (
	"encoding/json"
	"fmt"

	"github.com/kjstillabower/nurse-directory/internal/models"
)

// jsonRow decodes integer columns as json.Number so integral floats such as
// 1.0 or 2.01e11 are accepted, matching the CSV reader.
type jsonRow struct {
	NurseID       json.Number `json:"NurseID"`
	FName         string      `json:"FName"`
	LName         string      `json:"LName"`
	PhoneNumber   json.Number `json:"PhoneNumber"`
	Email         string      `json:"Email"`
	Experience    json.Number `json:"Experience"`
	Specialty     string      `json:"Specialty"`
	City          any         `json:"City"`
	Street        string      `json:"Street"`
	AverageRating float64     `json:"AverageRating"`
	ReviewCount   float64     `json:"ReviewCount"`
	Comment       string      `json:"Comment"`
	Score         float64     `json:"Score"`
}

func parseJSON(data []byte) ([]Row, error) {
	var raw []jsonRow
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse json dataset: %w", err)
	}
	rows := make([]Row, 0, len(raw))
	for _, r := range raw {
		id, err := parseInt("NurseID", r.NurseID.String())
		if err != nil {
			return nil, err
		}
		phone, err := parseInt64("PhoneNumber", r.PhoneNumber.String())
		if err != nil {
			return nil, err
		}
		experience, err := parseInt("Experience", r.Experience.String())
		if err != nil {
			return nil, err
		}
		rows = append(rows, Row{
			CityValue: r.City,
			Record: models.NurseRecord{
				NurseID:       id,
				FName:         r.FName,
				LName:         r.LName,
				PhoneNumber:   phone,
				Email:         r.Email,
				Experience:    experience,
				Specialty:     r.Specialty,
				City:          cityString(r.City),
				Street:        r.Street,
				AverageRating: r.AverageRating,
				ReviewCount:   r.ReviewCount,
				Comment:       r.Comment,
				Score:         r.Score,
			},
		})
	}
	return rows, nil
}
