package airquality

import (
	"context"
)

// RealtimeQuery identifies the place a realtime reading is requested for.
// Lat and Lon are only used when both are set.
type RealtimeQuery struct {
	City string
	Lat  *float64
	Lon  *float64
}

// HasCoordinates reports whether the caller supplied both coordinates.
func (q RealtimeQuery) HasCoordinates() bool {
	return q.Lat != nil && q.Lon != nil
}

// ProviderReading is a single provider's response, already normalized to
// canonical pollutant codes and (lat, lon) order.
type ProviderReading struct {
	Provider    string
	City        string
	Coordinates Coordinates
	AQI         float64
	Pollutants  Pollutants
}

// Provider abstracts a realtime air quality source (e.g. IQAir, OpenWeatherMap).
type Provider interface {
	Name() string
	Fetch(ctx context.Context, q RealtimeQuery) (ProviderReading, error)
}
