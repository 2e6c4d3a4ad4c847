package airquality

import (
	"context"
	"log/slog"
	"time"
)

// RealtimeAggregator asks the primary provider first and falls back to the
// secondary one. Results are never cached; every call hits the network.
type RealtimeAggregator struct {
	primary   Provider
	secondary Provider
	logger    *slog.Logger
	now       func() time.Time
}

// NewRealtimeAggregator creates an aggregator. Either provider may be nil,
// in which case it is treated as always failing.
func NewRealtimeAggregator(primary, secondary Provider, logger *slog.Logger) *RealtimeAggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &RealtimeAggregator{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
		now:       time.Now,
	}
}

// Fetch returns the current AQI for the query. Individual provider failures
// are logged and swallowed; only when both fail is ErrProvidersUnavailable
// returned.
func (a *RealtimeAggregator) Fetch(ctx context.Context, q RealtimeQuery) (RealtimeReading, error) {
	attempts := []struct {
		source   Source
		provider Provider
	}{
		{SourcePrimary, a.primary},
		{SourceSecondary, a.secondary},
	}

	for _, at := range attempts {
		if at.provider == nil {
			continue
		}

		r, err := at.provider.Fetch(ctx, q)
		if err != nil {
			a.logger.Warn("realtime provider failed",
				"provider", at.provider.Name(),
				"source", at.source,
				"city", q.City,
				"error", err,
			)
			continue
		}

		a.logger.Debug("realtime provider answered", "provider", r.Provider, "source", at.source, "city", r.City)
		return a.normalize(at.source, r), nil
	}

	a.logger.Error("all realtime providers failed", "city", q.City)
	return RealtimeReading{}, ErrProvidersUnavailable
}

func (a *RealtimeAggregator) normalize(source Source, r ProviderReading) RealtimeReading {
	aqi := ClampAQI(r.AQI)
	pollutants := make(Pollutants, len(RequiredPollutants))
	for _, p := range RequiredPollutants {
		pollutants[p] = r.Pollutants[p]
	}

	return RealtimeReading{
		Source:      source,
		Provider:    r.Provider,
		City:        r.City,
		Coordinates: r.Coordinates,
		AQI:         aqi,
		AqiInfo:     Classify(aqi),
		Pollutants:  pollutants,
		Timestamp:   a.now(),
	}
}
