package airquality

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/i474232898/aqi-service/internal/regression"
)

var validate = validator.New()

// PredictionInput is a decoded prediction request body. Values may be JSON
// numbers or numeric strings.
type PredictionInput map[string]any

// PredictionService scores pollutant and weather inputs with the trained
// artifact loaded at startup. The artifact is never mutated, so a single
// service is safe for concurrent use.
type PredictionService struct {
	artifact *regression.Artifact
	now      func() time.Time
}

// NewPredictionService builds the service. A nil artifact yields a service
// whose every prediction fails with ErrModelUnavailable.
func NewPredictionService(artifact *regression.Artifact) *PredictionService {
	return &PredictionService{
		artifact: artifact,
		now:      time.Now,
	}
}

// Ready reports whether a model artifact is loaded.
func (s *PredictionService) Ready() bool {
	return s.artifact != nil
}

// Artifact returns the loaded artifact, or nil.
func (s *PredictionService) Artifact() *regression.Artifact {
	return s.artifact
}

// Predict validates the input, fills weather defaults, scores the model and
// classifies the clamped result.
func (s *PredictionService) Predict(in PredictionInput) (PredictionResult, error) {
	if s.artifact == nil {
		return PredictionResult{}, ErrModelUnavailable
	}

	for _, p := range RequiredPollutants {
		if _, ok := in[string(p)]; !ok {
			return PredictionResult{}, missingField(string(p))
		}
	}

	pollutants := make(Pollutants, len(RequiredPollutants))
	for _, p := range RequiredPollutants {
		v, err := toFloat(string(p), in[string(p)])
		if err != nil {
			return PredictionResult{}, err
		}
		if err := validate.Var(v, "gte=0"); err != nil {
			return PredictionResult{}, invalidInput("%s must be non-negative", p)
		}
		pollutants[p] = v
	}

	weather, err := parseWeather(in)
	if err != nil {
		return PredictionResult{}, err
	}

	raw, err := s.score(pollutants, weather)
	if err != nil {
		return PredictionResult{}, err
	}
	aqi := ClampAQI(raw)

	return PredictionResult{
		AQI:           math.Round(aqi*10) / 10,
		AqiInfo:       Classify(aqi),
		Pollutants:    pollutants,
		Weather:       weather,
		Contributions: ComputeContributions(pollutants),
		Timestamp:     s.now(),
	}, nil
}

func (s *PredictionService) score(pollutants Pollutants, weather WeatherContext) (float64, error) {
	values := map[string]float64{
		FieldTemperature: weather.Temperature,
		FieldHumidity:    weather.Humidity,
		FieldWindSpeed:   weather.WindSpeed,
		FieldPressure:    weather.Pressure,
	}
	for p, v := range pollutants {
		values[string(p)] = v
	}

	x := make([]float64, len(s.artifact.Features))
	for i, name := range s.artifact.Features {
		v, ok := values[name]
		if !ok {
			return 0, fmt.Errorf("model feature %q has no matching input", name)
		}
		x[i] = v
	}

	switch s.artifact.Family {
	case regression.FamilyLinear:
		if s.artifact.Scaler == nil {
			return 0, fmt.Errorf("linear model loaded without scaler")
		}
		scaled, err := s.artifact.Scaler.Transform(x)
		if err != nil {
			return 0, fmt.Errorf("scale features: %w", err)
		}
		return s.artifact.Model.Predict(scaled), nil
	case regression.FamilyEnsemble:
		return s.artifact.Model.Predict(x), nil
	default:
		return 0, fmt.Errorf("unsupported model family %q", s.artifact.Family)
	}
}

func parseWeather(in PredictionInput) (WeatherContext, error) {
	w := DefaultWeather
	fields := []struct {
		name string
		dst  *float64
	}{
		{FieldTemperature, &w.Temperature},
		{FieldHumidity, &w.Humidity},
		{FieldWindSpeed, &w.WindSpeed},
		{FieldPressure, &w.Pressure},
	}
	for _, f := range fields {
		raw, ok := in[f.name]
		if !ok {
			continue
		}
		v, err := toFloat(f.name, raw)
		if err != nil {
			return WeatherContext{}, err
		}
		*f.dst = v
	}
	return w, nil
}

func toFloat(field string, v any) (float64, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, invalidInput("%s: %q is not a number", field, t.String())
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, invalidInput("%s: %q is not a number", field, t)
		}
		f = n
	case nil:
		return 0, invalidInput("%s must not be null", field)
	default:
		return 0, invalidInput("%s: unsupported value %v", field, t)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalidInput("%s must be a finite number", field)
	}
	return f, nil
}
