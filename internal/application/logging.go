package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/autoplanner/internal/logging"
	"github.com/example/autoplanner/internal/persistence"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var validation *ValidationError
	switch {
	case errors.As(err, &validation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrLockedSeries):
		return "locked_series"
	case errors.Is(err, ErrCompletionsExist):
		return "completions_exist"
	case errors.Is(err, ErrLinkedChildrenExist):
		return "linked_children_exist"
	case errors.Is(err, ErrNonExistentInstance):
		return "non_existent_instance"
	case errors.Is(err, ErrAlreadyCancelled):
		return "already_cancelled"
	case errors.Is(err, ErrCancelledInstance):
		return "cancelled_instance"
	case errors.Is(err, ErrCycleDetected):
		return "cycle_detected"
	case errors.Is(err, ErrChainDepthExceeded):
		return "chain_depth_exceeded"
	case errors.Is(err, ErrChildAlreadyLinked):
		return "child_already_linked"
	case errors.Is(err, ErrDuplicateCompletion):
		return "duplicate_completion"
	case errors.Is(err, ErrInvalidCondition):
		return "invalid_condition"
	case errors.Is(err, ErrGapLeapDisabled):
		return "gap_leap_disabled"
	case errors.Is(err, ErrNoCycling):
		return "no_cycling"
	case errors.Is(err, persistence.ErrDuplicate):
		return "duplicate_key"
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return "foreign_key"
	case errors.Is(err, persistence.ErrInvalidData):
		return "invalid_data"
	case errors.Is(err, persistence.ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
