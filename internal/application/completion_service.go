package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/autoplanner/internal/persistence"
	"github.com/example/autoplanner/internal/timeutil"
)

// CompletionTimes optionally carries the measured execution window of a
// logged completion; both ends are needed for the duration history adaptive
// durations read.
type CompletionTimes struct {
	Start *timeutil.DateTime
	End   *timeutil.DateTime
}

// CompletionService logs executions and manages per-instance exceptions.
type CompletionService struct {
	store       persistence.Store
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewCompletionService wires dependencies for completion and exception
// operations.
func NewCompletionService(store persistence.Store, idGenerator func() string, now func() time.Time, logger *slog.Logger) *CompletionService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &CompletionService{store: store, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *CompletionService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "CompletionService", operation, attrs...)
}

// LogCompletion records that the instance scheduled on instanceDate was
// executed. The occurrence must be generated by the series' patterns, must
// not be cancelled, and may be logged only once.
func (s *CompletionService) LogCompletion(ctx context.Context, seriesID string, instanceDate timeutil.Date, times CompletionTimes) error {
	logger := s.loggerWith(ctx, "LogCompletion", "series_id", seriesID, "instance_date", instanceDate.String())

	err := s.store.Transaction(ctx, func(tx persistence.Store) error {
		series, err := s.loadSeries(ctx, tx, seriesID)
		if err != nil {
			return err
		}

		exists, err := instanceExistsOn(ctx, tx, series, instanceDate)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNonExistentInstance
		}
		if e, err := tx.GetInstanceException(ctx, seriesID, instanceDate); err == nil && e.Type == exceptionCancelled {
			return ErrCancelledInstance
		} else if err != nil && !errors.Is(err, persistence.ErrNotFound) {
			return err
		}
		if _, err := tx.GetCompletion(ctx, seriesID, instanceDate); err == nil {
			return ErrDuplicateCompletion
		} else if !errors.Is(err, persistence.ErrNotFound) {
			return err
		}

		validation := &ValidationError{}
		if times.Start != nil && times.End != nil && !times.Start.Before(*times.End) {
			validation.add("end", "must be after start")
		}
		if err := validation.errOrNil(); err != nil {
			return err
		}

		actualDate := instanceDate
		if times.Start != nil {
			actualDate = times.Start.Date
		}
		return tx.CreateCompletion(ctx, persistence.Completion{
			ID:           s.idGenerator(),
			SeriesID:     seriesID,
			InstanceDate: instanceDate,
			ActualDate:   actualDate,
			StartTime:    times.Start,
			EndTime:      times.End,
		})
	})
	if err != nil {
		logger.Warn("completion rejected", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.Info("completion logged")
	return nil
}

// CancelInstance cancels one occurrence. Cancelling an already cancelled
// occurrence fails; a prior reschedule for the key is replaced.
func (s *CompletionService) CancelInstance(ctx context.Context, seriesID string, originalDate timeutil.Date) error {
	logger := s.loggerWith(ctx, "CancelInstance", "series_id", seriesID, "original_date", originalDate.String())

	err := s.store.Transaction(ctx, func(tx persistence.Store) error {
		series, err := s.loadSeries(ctx, tx, seriesID)
		if err != nil {
			return err
		}
		if series.Locked {
			return ErrLockedSeries
		}
		exists, err := instanceExistsOn(ctx, tx, series, originalDate)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNonExistentInstance
		}
		if e, err := tx.GetInstanceException(ctx, seriesID, originalDate); err == nil && e.Type == exceptionCancelled {
			return ErrAlreadyCancelled
		} else if err != nil && !errors.Is(err, persistence.ErrNotFound) {
			return err
		}
		return tx.UpsertInstanceException(ctx, persistence.InstanceException{
			ID:           s.idGenerator(),
			SeriesID:     seriesID,
			OriginalDate: originalDate,
			Type:         exceptionCancelled,
		})
	})
	if err != nil {
		logger.Warn("cancel rejected", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.Info("instance cancelled")
	return nil
}

// RescheduleInstance moves one occurrence to a new date and time. The
// exception is keyed on the original date; re-rescheduling replaces the
// prior override, and linked children pick the move up automatically since
// child targets are recomputed, never cached.
func (s *CompletionService) RescheduleInstance(ctx context.Context, seriesID string, originalDate timeutil.Date, newDateTime timeutil.DateTime) error {
	logger := s.loggerWith(ctx, "RescheduleInstance", "series_id", seriesID, "original_date", originalDate.String())

	err := s.store.Transaction(ctx, func(tx persistence.Store) error {
		series, err := s.loadSeries(ctx, tx, seriesID)
		if err != nil {
			return err
		}
		if series.Locked {
			return ErrLockedSeries
		}
		exists, err := instanceExistsOn(ctx, tx, series, originalDate)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNonExistentInstance
		}

		newDate := newDateTime.Date
		newTime := newDateTime.Time
		return tx.UpsertInstanceException(ctx, persistence.InstanceException{
			ID:           s.idGenerator(),
			SeriesID:     seriesID,
			OriginalDate: originalDate,
			Type:         exceptionRescheduled,
			NewDate:      &newDate,
			NewTime:      &newTime,
		})
	})
	if err != nil {
		logger.Warn("reschedule rejected", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.Info("instance rescheduled", "new_datetime", newDateTime.String())
	return nil
}

func (s *CompletionService) loadSeries(ctx context.Context, tx persistence.Store, seriesID string) (Series, error) {
	row, err := tx.GetSeries(ctx, seriesID)
	if errors.Is(err, persistence.ErrNotFound) {
		return Series{}, ErrNotFound
	}
	if err != nil {
		return Series{}, err
	}
	return loadSeriesDetail(ctx, tx, row)
}
