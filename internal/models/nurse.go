package models

// NurseRecord is one row of the nurse dataset. JSON names follow the dataset
// column names so responses match the offline export.
type NurseRecord struct {
	NurseID       int       `json:"NurseID"`
	FName         string    `json:"FName"`
	LName         string    `json:"LName"`
	PhoneNumber   int64     `json:"PhoneNumber"`
	Email         string    `json:"Email"`
	Experience    int       `json:"Experience"`
	Specialty     string    `json:"Specialty"`
	City          string    `json:"City"`
	Street        string    `json:"Street"`
	AverageRating float64   `json:"AverageRating"`
	ReviewCount   float64   `json:"ReviewCount"`
	Comment       string    `json:"Comment"`
	Score         float64   `json:"Score"`
	CityInfo      *CityInfo `json:"CityInfo,omitempty"` // set only when enrichment is enabled
}
