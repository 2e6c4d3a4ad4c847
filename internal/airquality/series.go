package airquality

import (
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// The series below are simulations for display purposes only. They are a
// clamped random walk and carry no forecasting accuracy whatsoever.

const (
	forecastStdDev = 10.0

	rushMean      = 20.0
	rushStdDev    = 10.0
	offPeakMean   = 0.0
	offPeakStdDev = 15.0

	// historical walks drift back toward their starting level by this
	// fraction of the gap each hour, so rush-hour bias does not pin them at 500
	meanReversion = 0.2
)

// ForecastPoint is one simulated hourly forecast value.
type ForecastPoint struct {
	Time     time.Time `json:"time"`
	Hour     string    `json:"hour"`
	AQI      float64   `json:"aqi"`
	Category string    `json:"category"`
	Color    string    `json:"color"`
}

// HistoricalPoint is one simulated past hourly value.
type HistoricalPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Date      string    `json:"date"`
	Hour      string    `json:"hour"`
	AQI       float64   `json:"aqi"`
	Category  string    `json:"category"`
	Color     string    `json:"color"`
}

// DailyAggregate summarizes one calendar day of a historical series.
type DailyAggregate struct {
	Date string  `json:"date"`
	Mean float64 `json:"aqi"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// HistoricalSeries is an hourly series with per-day aggregates sorted by date.
type HistoricalSeries struct {
	Hourly []HistoricalPoint `json:"hourly"`
	Daily  []DailyAggregate  `json:"daily"`
}

// Simulator generates synthetic AQI series. Each call draws from its own
// random generator so a Simulator holds no mutable state.
type Simulator struct {
	newRand func() *rand.Rand
	now     func() time.Time
}

// NewSimulator returns a simulator seeded randomly on every call.
func NewSimulator() *Simulator {
	return &Simulator{
		newRand: func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		},
		now: time.Now,
	}
}

// NewSeededSimulator returns a deterministic simulator: every call replays
// the same random sequence from seed, anchored at now().
func NewSeededSimulator(seed uint64, now func() time.Time) *Simulator {
	return &Simulator{
		newRand: func() *rand.Rand {
			return rand.New(rand.NewPCG(seed, seed))
		},
		now: now,
	}
}

// Forecast walks hours hourly steps forward from baseline, starting now.
func (s *Simulator) Forecast(baseline float64, hours int) []ForecastPoint {
	if hours <= 0 {
		return []ForecastPoint{}
	}
	r := s.newRand()
	start := s.now()
	current := ClampAQI(baseline)

	points := make([]ForecastPoint, 0, hours)
	for i := 0; i < hours; i++ {
		current = ClampAQI(current + r.NormFloat64()*forecastStdDev)
		ts := start.Add(time.Duration(i) * time.Hour)
		info := Classify(current)

		points = append(points, ForecastPoint{
			Time:     ts,
			Hour:     ts.Format("15:04"),
			AQI:      round1(current),
			Category: info.Category,
			Color:    info.Color,
		})
	}
	return points
}

// Historical simulates days*24 hourly values ending one hour before now,
// with a higher mean perturbation during the morning and evening rush.
func (s *Simulator) Historical(days int) HistoricalSeries {
	if days <= 0 {
		return HistoricalSeries{Hourly: []HistoricalPoint{}, Daily: []DailyAggregate{}}
	}
	r := s.newRand()
	end := s.now()
	n := days * 24

	base := 50 + r.Float64()*100
	current := base

	hourly := make([]HistoricalPoint, 0, n)
	for i := 0; i < n; i++ {
		ts := end.Add(-time.Duration(n-i) * time.Hour)

		var delta float64
		if isRushHour(ts.Hour()) {
			delta = rushMean + r.NormFloat64()*rushStdDev
		} else {
			delta = offPeakMean + r.NormFloat64()*offPeakStdDev
		}
		current = ClampAQI(current + delta + meanReversion*(base-current))
		info := Classify(current)

		hourly = append(hourly, HistoricalPoint{
			Timestamp: ts,
			Date:      ts.Format("2006-01-02"),
			Hour:      ts.Format("15:04"),
			AQI:       round1(current),
			Category:  info.Category,
			Color:     info.Color,
		})
	}

	return HistoricalSeries{
		Hourly: hourly,
		Daily:  dailyAggregates(hourly),
	}
}

func isRushHour(h int) bool {
	return (h >= 7 && h <= 9) || (h >= 17 && h <= 19)
}

// dailyAggregates relies on hourly being in chronological order.
func dailyAggregates(hourly []HistoricalPoint) []DailyAggregate {
	var (
		out    []DailyAggregate
		values []float64
		date   string
	)
	flush := func() {
		if len(values) == 0 {
			return
		}
		out = append(out, DailyAggregate{
			Date: date,
			Mean: round1(stat.Mean(values, nil)),
			Min:  floats.Min(values),
			Max:  floats.Max(values),
		})
		values = values[:0]
	}

	for _, p := range hourly {
		if p.Date != date {
			flush()
			date = p.Date
		}
		values = append(values, p.AQI)
	}
	flush()
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
