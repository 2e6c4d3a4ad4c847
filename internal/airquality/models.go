package airquality

import (
	"time"
)

// Pollutant is one of the six pollutant codes the service understands.
type Pollutant string

const (
	PM25 Pollutant = "PM2.5"
	PM10 Pollutant = "PM10"
	NO2  Pollutant = "NO2"
	SO2  Pollutant = "SO2"
	CO   Pollutant = "CO"
	O3   Pollutant = "O3"
)

// RequiredPollutants lists the pollutant fields a prediction needs, in the
// order the training dataset declares them.
var RequiredPollutants = []Pollutant{PM25, PM10, NO2, SO2, CO, O3}

// Pollutants maps pollutant codes to concentrations.
type Pollutants map[Pollutant]float64

// Weather field names as they appear in requests and in the feature schema.
const (
	FieldTemperature = "Temperature"
	FieldHumidity    = "Humidity"
	FieldWindSpeed   = "Wind_Speed"
	FieldPressure    = "Pressure"
)

// WeatherContext holds the optional weather inputs of a prediction.
type WeatherContext struct {
	Temperature float64 `json:"Temperature"`
	Humidity    float64 `json:"Humidity"`
	WindSpeed   float64 `json:"Wind_Speed"`
	Pressure    float64 `json:"Pressure"`
}

// DefaultWeather is used for every weather field the caller leaves out.
var DefaultWeather = WeatherContext{
	Temperature: 25,
	Humidity:    60,
	WindSpeed:   5,
	Pressure:    1013,
}

// MinAQI and MaxAQI bound every AQI score the service reports.
const (
	MinAQI = 0.0
	MaxAQI = 500.0
)

// ClampAQI limits a raw score to [MinAQI, MaxAQI].
func ClampAQI(v float64) float64 {
	if v < MinAQI {
		return MinAQI
	}
	if v > MaxAQI {
		return MaxAQI
	}
	return v
}

// Coordinates are always (lat, lon), whatever order a provider uses.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// PredictionResult is the outcome of a single prediction request.
type PredictionResult struct {
	AQI float64 `json:"aqi"`
	AqiInfo
	Pollutants    Pollutants     `json:"pollutants"`
	Weather       WeatherContext `json:"weather"`
	Contributions Contributions  `json:"contributions"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Source identifies which provider role answered a realtime request.
type Source string

const (
	SourcePrimary   Source = "primary"
	SourceSecondary Source = "secondary"
)

// RealtimeReading is the canonical realtime AQI view, whichever provider
// produced it.
type RealtimeReading struct {
	Source      Source      `json:"source"`
	Provider    string      `json:"provider"`
	City        string      `json:"city"`
	Coordinates Coordinates `json:"coordinates"`
	AQI         float64     `json:"aqi"`
	AqiInfo
	Pollutants Pollutants `json:"pollutants"`
	Timestamp  time.Time  `json:"timestamp"`
}

// City is an entry of the static city catalog.
type City struct {
	Name    string  `json:"name" yaml:"name"`
	Country string  `json:"country" yaml:"country"`
	Lat     float64 `json:"lat" yaml:"lat"`
	Lon     float64 `json:"lon" yaml:"lon"`
}
