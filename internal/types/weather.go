package types

import "time"

// Conditions is a current-weather observation in imperial units.
type Conditions struct {
	Location    string  `json:"location"`
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feels_like"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
	// Visibility in kilometres.
	Visibility int `json:"visibility"`
}

// Advisory is an official weather warning issued for a location.
type Advisory struct {
	SenderName  string    `json:"sender_name"`
	Event       string    `json:"event"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags,omitempty"`
}

// AirQuality is an air pollution reading. AQI is on the 1 (good) to 5 (very
// poor) scale.
type AirQuality struct {
	AQI  int     `json:"aqi"`
	PM25 float64 `json:"pm2_5"`
	PM10 float64 `json:"pm10"`
	O3   float64 `json:"o3"`
	NO2  float64 `json:"no2"`
}

var aqiLevels = [...]string{"Good", "Fair", "Moderate", "Poor", "Very Poor"}

// Level returns the label for the AQI value.
func (a AirQuality) Level() string {
	if a.AQI < 1 || a.AQI > len(aqiLevels) {
		return "Unknown"
	}
	return aqiLevels[a.AQI-1]
}
