package models

// CityInfo is auxiliary city metadata from the city API. A degraded lookup
// carries only Name.
type CityInfo struct {
	Name       string `json:"name"`
	Population int64  `json:"population,omitempty"`
	Region     string `json:"region,omitempty"`
	Country    string `json:"country,omitempty"`
}
