package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/i474232898/aqi-service/internal/airquality"
)

// IQAirProvider implements airquality.Provider for the IQAir AirVisual API.
type IQAirProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

func NewIQAirProvider(client *http.Client, cfg Config, logger *slog.Logger) *IQAirProvider {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://api.airvisual.com"
	}

	return &IQAirProvider{
		name:    "iqair",
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: newHTTPConfig(client, cfg.MaxRetries),
		circuit: newCircuitBreaker("iqair", logger),
		logger:  logger,
	}
}

func (p *IQAirProvider) Name() string {
	return p.name
}

// Fetch queries nearest_city when coordinates are given and falls back to
// the city endpoint when that fails or no coordinates were supplied.
func (p *IQAirProvider) Fetch(ctx context.Context, q airquality.RealtimeQuery) (airquality.ProviderReading, error) {
	if p.apiKey == "" {
		return airquality.ProviderReading{}, fmt.Errorf("iqair: %w", errAPIKeyMissing)
	}

	var (
		data    *iqairData
		lastErr error
	)

	if q.HasCoordinates() {
		values := url.Values{}
		values.Set("lat", formatCoord(*q.Lat))
		values.Set("lon", formatCoord(*q.Lon))

		d, err := p.query(ctx, "/v2/nearest_city", values)
		if err != nil {
			p.logger.Info("iqair nearest_city failed, trying city endpoint", "lat", *q.Lat, "lon", *q.Lon, "error", err)
			lastErr = err
		} else {
			data = d
		}
	}

	if data == nil && q.City != "" {
		values := url.Values{}
		values.Set("city", q.City)
		values.Set("state", "")
		values.Set("country", "")

		d, err := p.query(ctx, "/v2/city", values)
		if err != nil {
			return airquality.ProviderReading{}, err
		}
		data = d
	}

	if data == nil {
		if lastErr != nil {
			return airquality.ProviderReading{}, lastErr
		}
		return airquality.ProviderReading{}, fmt.Errorf("iqair: neither coordinates nor city given")
	}

	return p.normalize(data)
}

func (p *IQAirProvider) query(ctx context.Context, path string, values url.Values) (*iqairData, error) {
	values.Set("key", p.apiKey)
	u := fmt.Sprintf("%s%s?%s", p.baseURL, path, values.Encode())

	var payload struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	if err := getJSON(ctx, p.httpCfg, p.circuit, u, &payload); err != nil {
		return nil, fmt.Errorf("iqair %s: %w", path, err)
	}

	if payload.Status != "success" {
		var failure struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payload.Data, &failure)
		return nil, fmt.Errorf("iqair %s: status %q: %s", path, payload.Status, failure.Message)
	}

	var data iqairData
	if err := json.Unmarshal(payload.Data, &data); err != nil {
		return nil, fmt.Errorf("iqair %s: decode data: %w", path, err)
	}
	return &data, nil
}

type iqairData struct {
	City     string `json:"city"`
	State    string `json:"state"`
	Country  string `json:"country"`
	Location struct {
		// GeoJSON order: [lon, lat]
		Coordinates []float64 `json:"coordinates"`
	} `json:"location"`
	Current struct {
		Pollution *iqairPollution `json:"pollution"`
	} `json:"current"`
}

type iqairPollution struct {
	AQIUS *float64      `json:"aqius"`
	P2    concentration `json:"p2"`
	P1    concentration `json:"p1"`
	N2    concentration `json:"n2"`
	S2    concentration `json:"s2"`
	CO    concentration `json:"co"`
	O3    concentration `json:"o3"`
}

// concentration accepts either a bare number or an object with a "conc"
// field, which is how the paid IQAir tiers report pollutants.
type concentration float64

func (c *concentration) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = 0
		return nil
	}
	if len(b) > 0 && b[0] == '{' {
		var obj struct {
			Conc float64 `json:"conc"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*c = concentration(obj.Conc)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*c = concentration(f)
	return nil
}

func (p *IQAirProvider) normalize(d *iqairData) (airquality.ProviderReading, error) {
	pol := d.Current.Pollution
	if pol == nil || pol.AQIUS == nil {
		return airquality.ProviderReading{}, fmt.Errorf("iqair: %w", errEmptyPollution)
	}
	if len(d.Location.Coordinates) < 2 {
		return airquality.ProviderReading{}, fmt.Errorf("iqair: malformed coordinates %v", d.Location.Coordinates)
	}

	name := d.City
	if d.State != "" {
		name += ", " + d.State
	}
	name += ", " + d.Country

	return airquality.ProviderReading{
		Provider: p.name,
		City:     name,
		Coordinates: airquality.Coordinates{
			Lat: d.Location.Coordinates[1],
			Lon: d.Location.Coordinates[0],
		},
		AQI: *pol.AQIUS,
		Pollutants: airquality.Pollutants{
			airquality.PM25: float64(pol.P2),
			airquality.PM10: float64(pol.P1),
			airquality.NO2:  float64(pol.N2),
			airquality.SO2:  float64(pol.S2),
			airquality.CO:   float64(pol.CO),
			airquality.O3:   float64(pol.O3),
		},
	}, nil
}
