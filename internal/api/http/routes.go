package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/aqi-service/internal/airquality"
	"github.com/i474232898/aqi-service/internal/store"
)

var validate = validator.New()

const (
	forecastHours     = 24
	defaultCurrentAQI = 75
	defaultDays       = 7
)

// Deps carries the immutable services shared by every handler.
type Deps struct {
	Predictor   *airquality.PredictionService
	Realtime    *airquality.RealtimeAggregator
	Simulator   *airquality.Simulator
	Cities      *store.CityCatalog
	DefaultCity string
	Logger      *slog.Logger

	// Now stamps response timestamps; defaults to time.Now.
	Now func() time.Time
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.DefaultCity == "" {
		deps.DefaultCity = "London"
	}
	h := &handlers{Deps: deps}

	api := app.Group("/api")
	api.Get("/health", h.health)
	api.Post("/predict", h.predict)
	api.Get("/realtime", h.realtime)
	api.Get("/forecast", h.forecast)
	api.Get("/historical", h.historical)
	api.Get("/cities", h.cities)
	api.Get("/cities/:name", h.city)
}

// ErrorHandler renders every error as {"success": false, "error": msg}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   err.Error(),
	})
}

type handlers struct {
	Deps
}

func (h *handlers) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":       "healthy",
		"model_loaded": h.Predictor != nil && h.Predictor.Ready(),
		"timestamp":    h.Now(),
	})
}

type predictResponse struct {
	Success bool `json:"success"`
	airquality.PredictionResult
}

func (h *handlers) predict(c *fiber.Ctx) error {
	var in airquality.PredictionInput
	dec := json.NewDecoder(bytes.NewReader(c.Body()))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid JSON body")
	}

	if h.Predictor == nil {
		return h.fail("predict", airquality.ErrModelUnavailable)
	}
	res, err := h.Predictor.Predict(in)
	if err != nil {
		return h.fail("predict", err)
	}
	return c.JSON(predictResponse{Success: true, PredictionResult: res})
}

type realtimeQuery struct {
	City string
	Lat  *float64 `validate:"omitempty,gte=-90,lte=90"`
	Lon  *float64 `validate:"omitempty,gte=-180,lte=180"`
}

type realtimeResponse struct {
	Success bool `json:"success"`
	airquality.RealtimeReading
}

func (h *handlers) realtime(c *fiber.Ctx) error {
	q := realtimeQuery{City: strings.TrimSpace(c.Query("city"))}
	if q.City == "" {
		q.City = h.DefaultCity
	}

	var err error
	if q.Lat, err = optionalFloat(c, "lat"); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if q.Lon, err = optionalFloat(c, "lon"); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid input values: "+err.Error())
	}

	reading, err := h.Realtime.Fetch(c.UserContext(), airquality.RealtimeQuery{City: q.City, Lat: q.Lat, Lon: q.Lon})
	if err != nil {
		return h.fail("realtime", err)
	}
	return c.JSON(realtimeResponse{Success: true, RealtimeReading: reading})
}

type forecastQuery struct {
	City       string
	CurrentAQI float64 `validate:"gte=0,lte=500"`
}

func (h *handlers) forecast(c *fiber.Ctx) error {
	q := forecastQuery{City: strings.TrimSpace(c.Query("city")), CurrentAQI: defaultCurrentAQI}
	if q.City == "" {
		q.City = h.DefaultCity
	}
	v, err := optionalFloat(c, "current_aqi")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if v != nil {
		q.CurrentAQI = *v
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid input values: "+err.Error())
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"city":      q.City,
		"forecast":  h.Simulator.Forecast(q.CurrentAQI, forecastHours),
		"timestamp": h.Now(),
	})
}

type historicalQuery struct {
	Days int `validate:"gte=1,lte=90"`
}

func (h *handlers) historical(c *fiber.Ctx) error {
	q := historicalQuery{Days: defaultDays}
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid input values: days must be an integer")
		}
		q.Days = n
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid input values: "+err.Error())
	}

	series := h.Simulator.Historical(q.Days)
	return c.JSON(fiber.Map{
		"success":   true,
		"hourly":    series.Hourly,
		"daily":     series.Daily,
		"timestamp": h.Now(),
	})
}

func (h *handlers) cities(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"cities":  h.Cities.List(),
	})
}

func (h *handlers) city(c *fiber.Ctx) error {
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid city name")
	}

	city, err := h.Cities.Lookup(name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "City not found: "+name)
		}
		return h.fail("cities", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"city":    city,
	})
}

// fail translates a domain error into a *fiber.Error. Input errors are
// returned verbatim as 400s; everything else is a 500.
func (h *handlers) fail(op string, err error) error {
	var ie *airquality.InputError
	switch {
	case errors.As(err, &ie):
		return fiber.NewError(fiber.StatusBadRequest, ie.Msg)
	case errors.Is(err, airquality.ErrModelUnavailable),
		errors.Is(err, airquality.ErrProvidersUnavailable):
		h.Logger.Error("request failed", "op", op, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	default:
		h.Logger.Error("unexpected error", "op", op, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

func optionalFloat(c *fiber.Ctx, key string) (*float64, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, errors.New("Invalid input values: " + key + " must be a number")
	}
	return &v, nil
}
