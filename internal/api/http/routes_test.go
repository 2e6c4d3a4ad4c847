package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/aqi-service/internal/airquality"
	"github.com/i474232898/aqi-service/internal/config"
	"github.com/i474232898/aqi-service/internal/regression"
	"github.com/i474232898/aqi-service/internal/store"
)

var fixedNow = func() time.Time { return time.Date(2026, 10, 18, 10, 30, 0, 0, time.UTC) }

type stubProvider struct {
	name    string
	reading airquality.ProviderReading
	err     error
}

func (p stubProvider) Name() string { return p.name }

func (p stubProvider) Fetch(_ context.Context, q airquality.RealtimeQuery) (airquality.ProviderReading, error) {
	if p.err != nil {
		return airquality.ProviderReading{}, p.err
	}
	r := p.reading
	r.City = q.City
	return r, nil
}

func leafArtifact(value float64) *regression.Artifact {
	return &regression.Artifact{
		Name:     "Random Forest",
		Family:   regression.FamilyEnsemble,
		Features: []string{"PM2.5", "PM10", "NO2", "SO2", "CO", "O3", "Temperature", "Humidity", "Wind_Speed", "Pressure"},
		Model: &regression.Ensemble{
			Average: true,
			Trees:   []regression.Tree{{Nodes: []regression.Node{{Leaf: true, Value: value}}}},
		},
	}
}

func newTestApp(artifact *regression.Artifact, primary, secondary airquality.Provider) *fiber.App {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterRoutes(app, Deps{
		Predictor: airquality.NewPredictionService(artifact),
		Realtime:  airquality.NewRealtimeAggregator(primary, secondary, logger),
		Simulator: airquality.NewSeededSimulator(7, fixedNow),
		Cities:    store.NewCityCatalog(config.DefaultCities()),
		Logger:    logger,
		Now:       fixedNow,
	})
	return app
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return resp.StatusCode, body
}

func get(t *testing.T, app *fiber.App, target string) (int, map[string]any) {
	t.Helper()
	return do(t, app, httptest.NewRequest(http.MethodGet, target, nil))
}

func post(t *testing.T, app *fiber.App, target, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return do(t, app, req)
}

func TestHealth(t *testing.T) {
	status, body := get(t, newTestApp(leafArtifact(42), nil, nil), "/api/health")
	if status != http.StatusOK || body["status"] != "healthy" || body["model_loaded"] != true {
		t.Fatalf("status=%d body=%v", status, body)
	}

	_, body = get(t, newTestApp(nil, nil, nil), "/api/health")
	if body["model_loaded"] != false {
		t.Fatalf("model_loaded=%v want false", body["model_loaded"])
	}
}

func TestPredict(t *testing.T) {
	app := newTestApp(leafArtifact(42), nil, nil)

	status, body := post(t, app, "/api/predict",
		`{"PM2.5": 35.5, "PM10": 50, "NO2": 20, "SO2": "5", "CO": 0.5, "O3": 30, "Humidity": 70}`)
	if status != http.StatusOK {
		t.Fatalf("status=%d body=%v", status, body)
	}
	if body["success"] != true || body["aqi"] != 42.0 || body["category"] != "Good" {
		t.Fatalf("body=%v", body)
	}
	weather, _ := body["weather"].(map[string]any)
	if weather["Humidity"] != 70.0 || weather["Temperature"] != 25.0 {
		t.Fatalf("weather=%v", weather)
	}
	contributions, _ := body["contributions"].(map[string]any)
	if len(contributions) != 6 {
		t.Fatalf("contributions=%v", contributions)
	}
}

func TestPredictErrors(t *testing.T) {
	tests := []struct {
		name     string
		artifact *regression.Artifact
		body     string
		status   int
		message  string
	}{
		{"missing field", leafArtifact(42), `{"PM10": 50, "NO2": 20, "SO2": 5, "CO": 0.5, "O3": 30}`, http.StatusBadRequest, "Missing field: PM2.5"},
		{"invalid value", leafArtifact(42), `{"PM2.5": "lots", "PM10": 50, "NO2": 20, "SO2": 5, "CO": 0.5, "O3": 30}`, http.StatusBadRequest, "Invalid input values"},
		{"malformed json", leafArtifact(42), `{"PM2.5": `, http.StatusBadRequest, "Invalid JSON body"},
		{"model unavailable", nil, `{"PM2.5": 1, "PM10": 1, "NO2": 1, "SO2": 1, "CO": 1, "O3": 1}`, http.StatusInternalServerError, "ML model not available"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := post(t, newTestApp(tt.artifact, nil, nil), "/api/predict", tt.body)
			if status != tt.status {
				t.Fatalf("status=%d want %d body=%v", status, tt.status, body)
			}
			msg, _ := body["error"].(string)
			if body["success"] != false || !strings.Contains(msg, tt.message) {
				t.Fatalf("body=%v want error containing %q", body, tt.message)
			}
		})
	}
}

func TestRealtime(t *testing.T) {
	reading := airquality.ProviderReading{
		Provider:    "openweathermap",
		Coordinates: airquality.Coordinates{Lat: 51.5, Lon: -0.12},
		AQI:         125,
		Pollutants:  airquality.Pollutants{airquality.PM25: 40},
	}
	app := newTestApp(nil,
		stubProvider{name: "iqair", err: errors.New("iqair: api key is not configured")},
		stubProvider{name: "openweathermap", reading: reading},
	)

	status, body := get(t, app, "/api/realtime")
	if status != http.StatusOK {
		t.Fatalf("status=%d body=%v", status, body)
	}
	if body["source"] != "secondary" || body["provider"] != "openweathermap" {
		t.Fatalf("body=%v", body)
	}
	if body["city"] != "London" || body["category"] != "Unhealthy for Sensitive Groups" {
		t.Fatalf("body=%v", body)
	}
}

func TestRealtimeErrors(t *testing.T) {
	failing := stubProvider{name: "down", err: errors.New("connection refused")}
	app := newTestApp(nil, failing, failing)

	status, body := get(t, app, "/api/realtime?city=Paris")
	if status != http.StatusInternalServerError {
		t.Fatalf("status=%d", status)
	}
	if body["error"] != airquality.ErrProvidersUnavailable.Error() {
		t.Fatalf("error=%v", body["error"])
	}

	for _, target := range []string{"/api/realtime?lat=abc&lon=1", "/api/realtime?lat=91&lon=0", "/api/realtime?lat=0&lon=-181"} {
		if status, _ := get(t, app, target); status != http.StatusBadRequest {
			t.Fatalf("%s: status=%d want 400", target, status)
		}
	}
}

func TestForecast(t *testing.T) {
	app := newTestApp(nil, nil, nil)

	status, body := get(t, app, "/api/forecast?city=Delhi&current_aqi=180")
	if status != http.StatusOK || body["city"] != "Delhi" {
		t.Fatalf("status=%d body=%v", status, body)
	}
	points, _ := body["forecast"].([]any)
	if len(points) != 24 {
		t.Fatalf("got %d points, want 24", len(points))
	}
	for _, p := range points {
		aqi := p.(map[string]any)["aqi"].(float64)
		if aqi < 0 || aqi > 500 {
			t.Fatalf("aqi %v out of range", aqi)
		}
	}

	for _, target := range []string{"/api/forecast?current_aqi=x", "/api/forecast?current_aqi=-1", "/api/forecast?current_aqi=501"} {
		if status, _ := get(t, app, target); status != http.StatusBadRequest {
			t.Fatalf("%s: status=%d want 400", target, status)
		}
	}
}

func TestHistorical(t *testing.T) {
	app := newTestApp(nil, nil, nil)

	status, body := get(t, app, "/api/historical")
	if status != http.StatusOK {
		t.Fatalf("status=%d body=%v", status, body)
	}
	hourly, _ := body["hourly"].([]any)
	daily, _ := body["daily"].([]any)
	if len(hourly) != 7*24 || len(daily) == 0 {
		t.Fatalf("hourly=%d daily=%d", len(hourly), len(daily))
	}

	_, body = get(t, app, "/api/historical?days=2")
	if hourly, _ := body["hourly"].([]any); len(hourly) != 48 {
		t.Fatalf("hourly=%d want 48", len(hourly))
	}

	for _, target := range []string{"/api/historical?days=0", "/api/historical?days=91", "/api/historical?days=week"} {
		if status, _ := get(t, app, target); status != http.StatusBadRequest {
			t.Fatalf("%s: status=%d want 400", target, status)
		}
	}
}

func TestCities(t *testing.T) {
	app := newTestApp(nil, nil, nil)

	_, body := get(t, app, "/api/cities")
	cities, _ := body["cities"].([]any)
	if len(cities) != 8 {
		t.Fatalf("got %d cities, want 8", len(cities))
	}

	status, body := get(t, app, "/api/cities/tokyo")
	city, _ := body["city"].(map[string]any)
	if status != http.StatusOK || city["name"] != "Tokyo" {
		t.Fatalf("status=%d body=%v", status, body)
	}

	for target, want := range map[string]string{
		"/api/cities/New%20York":    "New York",
		"/api/cities/los%20angeles": "Los Angeles",
	} {
		status, body := get(t, app, target)
		city, _ := body["city"].(map[string]any)
		if status != http.StatusOK || city["name"] != want {
			t.Fatalf("%s: status=%d body=%v", target, status, body)
		}
	}

	status, body = get(t, app, "/api/cities/Atlantis")
	if status != http.StatusNotFound || body["error"] != "City not found: Atlantis" {
		t.Fatalf("status=%d body=%v want 404", status, body)
	}
}
