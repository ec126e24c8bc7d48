package application

import (
	"context"
	"math"

	"github.com/example/autoplanner/internal/persistence"
	"github.com/example/autoplanner/internal/timeutil"
)

// Defaults for adaptive duration specs when the caller leaves them unset.
const (
	defaultAdaptiveLastN      = 5
	defaultAdaptiveWindowDays = 30
)

// effectiveAdaptiveDuration computes the series' duration in minutes from
// recent completion history: the average of recent durations scaled by the
// buffer percentage and clamped to the configured bounds. With no usable
// history the fallback applies unclamped.
func effectiveAdaptiveDuration(ctx context.Context, store persistence.Store, seriesID string, spec AdaptiveSpec, asOf timeutil.Date) (int, error) {
	q := persistence.DurationQuery{LastN: spec.LastN}
	if q.LastN <= 0 {
		q = persistence.DurationQuery{WindowDays: spec.WindowDays, AsOf: asOf}
	}
	durations, err := store.RecentDurations(ctx, seriesID, q)
	if err != nil {
		return 0, err
	}
	if len(durations) == 0 {
		return spec.FallbackMinutes, nil
	}

	total := 0
	for _, d := range durations {
		total += d
	}
	average := float64(total) / float64(len(durations))
	minutes := int(math.Round(average * (1 + spec.BufferPercent/100)))

	if spec.MinMinutes != nil && minutes < *spec.MinMinutes {
		minutes = *spec.MinMinutes
	}
	if spec.MaxMinutes != nil && minutes > *spec.MaxMinutes {
		minutes = *spec.MaxMinutes
	}
	return minutes, nil
}
