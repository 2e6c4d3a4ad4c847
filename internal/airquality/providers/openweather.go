package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/i474232898/aqi-service/internal/airquality"
)

var errCityNotFound = errors.New("city not found")

// openWeatherLevels maps the OpenWeatherMap 1-5 air quality index to an
// estimated point on the continuous AQI scale.
var openWeatherLevels = map[int]float64{
	1: 25,
	2: 75,
	3: 125,
	4: 175,
	5: 250,
}

// OpenWeatherLevelToAQI converts an OpenWeatherMap level to an AQI score.
// Unknown levels are treated as Moderate (75).
func OpenWeatherLevelToAQI(level int) float64 {
	if v, ok := openWeatherLevels[level]; ok {
		return v
	}
	return 75
}

// OpenWeatherProvider implements airquality.Provider for the OpenWeatherMap
// air pollution and geocoding APIs.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

func NewOpenWeatherProvider(client *http.Client, cfg Config, logger *slog.Logger) *OpenWeatherProvider {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://api.openweathermap.org"
	}

	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: newHTTPConfig(client, cfg.MaxRetries),
		circuit: newCircuitBreaker("openweathermap", logger),
		logger:  logger,
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

// Fetch geocodes the city when no coordinates are supplied, then reads the
// current air pollution for those coordinates.
func (p *OpenWeatherProvider) Fetch(ctx context.Context, q airquality.RealtimeQuery) (airquality.ProviderReading, error) {
	if p.apiKey == "" {
		return airquality.ProviderReading{}, fmt.Errorf("openweathermap: %w", errAPIKeyMissing)
	}

	city := q.City
	var lat, lon float64
	if q.HasCoordinates() {
		lat, lon = *q.Lat, *q.Lon
	} else {
		if city == "" {
			return airquality.ProviderReading{}, fmt.Errorf("openweathermap: neither coordinates nor city given")
		}
		loc, err := p.geocode(ctx, city)
		if err != nil {
			return airquality.ProviderReading{}, err
		}
		p.logger.Debug("geocoded city", "query", city, "name", loc.Name, "lat", loc.Lat, "lon", loc.Lon)
		lat, lon, city = loc.Lat, loc.Lon, loc.Name
	}

	values := url.Values{}
	values.Set("lat", formatCoord(lat))
	values.Set("lon", formatCoord(lon))
	values.Set("appid", p.apiKey)
	u := fmt.Sprintf("%s/data/2.5/air_pollution?%s", p.baseURL, values.Encode())

	var payload struct {
		List []struct {
			Main struct {
				AQI int `json:"aqi"`
			} `json:"main"`
			Components struct {
				CO   float64 `json:"co"`
				NO2  float64 `json:"no2"`
				O3   float64 `json:"o3"`
				SO2  float64 `json:"so2"`
				PM25 float64 `json:"pm2_5"`
				PM10 float64 `json:"pm10"`
			} `json:"components"`
		} `json:"list"`
	}
	if err := getJSON(ctx, p.httpCfg, p.circuit, u, &payload); err != nil {
		return airquality.ProviderReading{}, fmt.Errorf("openweathermap air_pollution: %w", err)
	}
	if len(payload.List) == 0 {
		return airquality.ProviderReading{}, fmt.Errorf("openweathermap: %w", errEmptyPollution)
	}

	item := payload.List[0]
	return airquality.ProviderReading{
		Provider:    p.name,
		City:        city,
		Coordinates: airquality.Coordinates{Lat: lat, Lon: lon},
		AQI:         OpenWeatherLevelToAQI(item.Main.AQI),
		Pollutants: airquality.Pollutants{
			airquality.PM25: item.Components.PM25,
			airquality.PM10: item.Components.PM10,
			airquality.NO2:  item.Components.NO2,
			airquality.SO2:  item.Components.SO2,
			// reported in µg/m³, the rest of the service uses mg/m³ for CO
			airquality.CO: item.Components.CO / 1000,
			airquality.O3: item.Components.O3,
		},
	}, nil
}

type geoLocation struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

func (p *OpenWeatherProvider) geocode(ctx context.Context, city string) (geoLocation, error) {
	values := url.Values{}
	values.Set("q", city)
	values.Set("limit", "1")
	values.Set("appid", p.apiKey)
	u := fmt.Sprintf("%s/geo/1.0/direct?%s", p.baseURL, values.Encode())

	var locs []geoLocation
	if err := getJSON(ctx, p.httpCfg, p.circuit, u, &locs); err != nil {
		return geoLocation{}, fmt.Errorf("openweathermap geocoding: %w", err)
	}
	if len(locs) == 0 {
		return geoLocation{}, fmt.Errorf("openweathermap geocoding %q: %w", city, errCityNotFound)
	}
	if locs[0].Name == "" {
		locs[0].Name = city
	}
	return locs[0], nil
}
