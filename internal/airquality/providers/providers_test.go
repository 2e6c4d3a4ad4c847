package providers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/aqi-service/internal/airquality"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr(v float64) *float64 { return &v }

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

const iqairNearest = `{
  "status": "success",
  "data": {
    "city": "Los Angeles",
    "state": "California",
    "country": "USA",
    "location": {"type": "Point", "coordinates": [-118.2437, 34.0522]},
    "current": {"pollution": {"ts": "2026-10-18T10:00:00.000Z", "aqius": 87, "p2": {"conc": 29.1, "aqius": 87}, "o3": 41}}
  }
}`

func TestIQAirNearestCity(t *testing.T) {
	var gotKey string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/nearest_city" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotKey = r.URL.Query().Get("key")
		_, _ = io.WriteString(w, iqairNearest)
	})

	p := NewIQAirProvider(srv.Client(), Config{BaseURL: srv.URL, APIKey: "k"}, quietLogger())
	got, err := p.Fetch(context.Background(), airquality.RealtimeQuery{City: "London", Lat: ptr(34.05), Lon: ptr(-118.24)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotKey != "k" {
		t.Fatalf("key=%q", gotKey)
	}
	if got.City != "Los Angeles, California, USA" {
		t.Fatalf("city=%q", got.City)
	}
	if got.Coordinates.Lat != 34.0522 || got.Coordinates.Lon != -118.2437 {
		t.Fatalf("coordinates not swapped to (lat, lon): %+v", got.Coordinates)
	}
	if got.AQI != 87 || got.Pollutants[airquality.PM25] != 29.1 || got.Pollutants[airquality.O3] != 41 {
		t.Fatalf("reading=%+v", got)
	}
	if got.Pollutants[airquality.NO2] != 0 {
		t.Fatalf("absent NO2 should be 0, got %v", got.Pollutants[airquality.NO2])
	}
}

func TestIQAirFallsBackToCityQuery(t *testing.T) {
	var paths []string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/v2/nearest_city" {
			_, _ = io.WriteString(w, `{"status":"fail","data":{"message":"no_nearest_station"}}`)
			return
		}
		if r.URL.Query().Get("city") != "Paris" {
			t.Errorf("city=%q", r.URL.Query().Get("city"))
		}
		_, _ = io.WriteString(w, `{"status":"success","data":{"city":"Paris","country":"France",
			"location":{"coordinates":[2.35,48.85]},"current":{"pollution":{"aqius":40}}}}`)
	})

	p := NewIQAirProvider(srv.Client(), Config{BaseURL: srv.URL, APIKey: "k"}, quietLogger())
	got, err := p.Fetch(context.Background(), airquality.RealtimeQuery{City: "Paris", Lat: ptr(1), Lon: ptr(2)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 2 || paths[1] != "/v2/city" {
		t.Fatalf("paths=%v", paths)
	}
	if got.City != "Paris, France" {
		t.Fatalf("city=%q", got.City)
	}
}

func TestIQAirFailures(t *testing.T) {
	tests := []struct {
		name   string
		apiKey string
		body   string
		status int
	}{
		{"missing key", "", iqairNearest, http.StatusOK},
		{"status fail", "k", `{"status":"fail","data":{"message":"city_not_found"}}`, http.StatusOK},
		{"empty pollution", "k", `{"status":"success","data":{"city":"X","country":"Y","location":{"coordinates":[1,2]},"current":{"pollution":{}}}}`, http.StatusOK},
		{"missing pollution", "k", `{"status":"success","data":{"city":"X","country":"Y","location":{"coordinates":[1,2]},"current":{}}}`, http.StatusOK},
		{"malformed json", "k", `{"status":`, http.StatusOK},
		{"http error", "k", `{"status":"fail"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			p := NewIQAirProvider(srv.Client(), Config{BaseURL: srv.URL, APIKey: tt.apiKey}, quietLogger())
			if _, err := p.Fetch(context.Background(), airquality.RealtimeQuery{City: "X"}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestIQAirErrorDoesNotLeakKey(t *testing.T) {
	p := NewIQAirProvider(&http.Client{Timeout: time.Second}, Config{BaseURL: "http://127.0.0.1:1", APIKey: "secret-key"}, quietLogger())
	_, err := p.Fetch(context.Background(), airquality.RealtimeQuery{City: "X"})
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "secret-key") {
		t.Fatalf("error leaks api key: %v", err)
	}
}

func TestOpenWeatherLevelToAQI(t *testing.T) {
	tests := map[int]float64{1: 25, 2: 75, 3: 125, 4: 175, 5: 250, 0: 75, 9: 75}
	for level, want := range tests {
		if got := OpenWeatherLevelToAQI(level); got != want {
			t.Errorf("level %d -> %v want %v", level, got, want)
		}
	}
}

const owmPollution = `{"coord":{"lon":-0.1278,"lat":51.5074},"list":[{"main":{"aqi":3},
  "components":{"co":230.31,"no":0.1,"no2":12.5,"o3":60.1,"so2":1.2,"pm2_5":8.4,"pm10":11.3,"nh3":0.5},"dt":1760781600}]}`

func TestOpenWeatherGeocodesCity(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/geo/1.0/direct":
			if r.URL.Query().Get("q") != "london" || r.URL.Query().Get("limit") != "1" {
				t.Errorf("query=%v", r.URL.Query())
			}
			_, _ = io.WriteString(w, `[{"name":"London","lat":51.5074,"lon":-0.1278,"country":"GB"}]`)
		case "/data/2.5/air_pollution":
			if r.URL.Query().Get("lat") != "51.5074" || r.URL.Query().Get("appid") != "k" {
				t.Errorf("query=%v", r.URL.Query())
			}
			_, _ = io.WriteString(w, owmPollution)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	p := NewOpenWeatherProvider(srv.Client(), Config{BaseURL: srv.URL, APIKey: "k"}, quietLogger())
	got, err := p.Fetch(context.Background(), airquality.RealtimeQuery{City: "london"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.City != "London" || got.AQI != 125 {
		t.Fatalf("city=%q aqi=%v", got.City, got.AQI)
	}
	if got.Coordinates.Lat != 51.5074 || got.Coordinates.Lon != -0.1278 {
		t.Fatalf("coordinates=%+v", got.Coordinates)
	}
	if math.Abs(got.Pollutants[airquality.CO]-0.23031) > 1e-9 {
		t.Fatalf("CO=%v want 0.23031", got.Pollutants[airquality.CO])
	}
	if got.Pollutants[airquality.PM25] != 8.4 || got.Pollutants[airquality.PM10] != 11.3 {
		t.Fatalf("pollutants=%v", got.Pollutants)
	}
}

func TestOpenWeatherSkipsGeocodingWithCoordinates(t *testing.T) {
	var calls int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/data/2.5/air_pollution" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"list":[{"main":{"aqi":0},"components":{}}]}`)
	})

	p := NewOpenWeatherProvider(srv.Client(), Config{BaseURL: srv.URL, APIKey: "k"}, quietLogger())
	got, err := p.Fetch(context.Background(), airquality.RealtimeQuery{City: "Somewhere", Lat: ptr(10), Lon: ptr(20)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls=%d want 1", calls)
	}
	if got.AQI != 75 || got.City != "Somewhere" || got.Coordinates.Lat != 10 {
		t.Fatalf("reading=%+v", got)
	}
}

func TestOpenWeatherFailures(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		geo     string
		polling string
	}{
		{"missing key", "", `[]`, owmPollution},
		{"city not found", "k", `[]`, owmPollution},
		{"empty list", "k", `[{"name":"X","lat":1,"lon":2}]`, `{"list":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				if strings.HasPrefix(r.URL.Path, "/geo") {
					_, _ = io.WriteString(w, tt.geo)
					return
				}
				_, _ = io.WriteString(w, tt.polling)
			})
			p := NewOpenWeatherProvider(srv.Client(), Config{BaseURL: srv.URL, APIKey: tt.apiKey}, quietLogger())
			_, err := p.Fetch(context.Background(), airquality.RealtimeQuery{City: "X"})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.name == "city not found" && !errors.Is(err, errCityNotFound) {
				t.Fatalf("err=%v want errCityNotFound", err)
			}
		})
	}
}

func TestResilienceRetries(t *testing.T) {
	var calls int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"list":[{"main":{"aqi":1},"components":{}}]}`)
	})

	noRetry := NewOpenWeatherProvider(srv.Client(), Config{BaseURL: srv.URL, APIKey: "k"}, quietLogger())
	if _, err := noRetry.Fetch(context.Background(), airquality.RealtimeQuery{Lat: ptr(1), Lon: ptr(1)}); !errors.Is(err, errServerError) {
		t.Fatalf("err=%v want errServerError", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls=%d want 1 (no retries by default)", calls)
	}

	atomic.StoreInt32(&calls, 0)
	withRetry := NewOpenWeatherProvider(srv.Client(), Config{BaseURL: srv.URL, APIKey: "k", MaxRetries: 1}, quietLogger())
	got, err := withRetry.Fetch(context.Background(), airquality.RealtimeQuery{Lat: ptr(1), Lon: ptr(1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 || got.AQI != 25 {
		t.Fatalf("calls=%d aqi=%v", calls, got.AQI)
	}
}

func TestBreakerIgnoresRejectedQueries(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("city") {
		case "Nowhere":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"status":"fail","data":{"message":"city_not_found"}}`)
		case "Atlantis":
			_, _ = io.WriteString(w, `{"status":"fail","data":{"message":"city_not_found"}}`)
		default:
			_, _ = io.WriteString(w, `{"status":"success","data":{"city":"Paris","country":"France",
				"location":{"coordinates":[2.35,48.85]},"current":{"pollution":{"aqius":40}}}}`)
		}
	})

	p := NewIQAirProvider(srv.Client(), Config{BaseURL: srv.URL, APIKey: "k"}, quietLogger())
	for i := 0; i < 10; i++ {
		for _, city := range []string{"Nowhere", "Atlantis"} {
			_, err := p.Fetch(context.Background(), airquality.RealtimeQuery{City: city})
			if err == nil || errors.Is(err, errCircuitOpen) {
				t.Fatalf("attempt %d %s: err=%v", i, city, err)
			}
		}
	}

	got, err := p.Fetch(context.Background(), airquality.RealtimeQuery{City: "Paris"})
	if err != nil {
		t.Fatalf("valid query rejected after bad ones: %v", err)
	}
	if got.AQI != 40 {
		t.Fatalf("aqi=%v", got.AQI)
	}
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var calls int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	p := NewIQAirProvider(srv.Client(), Config{BaseURL: srv.URL, APIKey: "k"}, quietLogger())
	var err error
	for i := 0; i < 10; i++ {
		_, err = p.Fetch(context.Background(), airquality.RealtimeQuery{City: "Paris"})
	}
	if !errors.Is(err, errCircuitOpen) {
		t.Fatalf("err=%v want errCircuitOpen", err)
	}
	if n := atomic.LoadInt32(&calls); n >= 10 {
		t.Fatalf("calls=%d, breaker never short-circuited", n)
	}
}
