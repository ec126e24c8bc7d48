package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/autoplanner/internal/persistence"
	"github.com/example/autoplanner/internal/timeutil"
)

// LinkInput describes a new or updated parent-to-child link.
type LinkInput struct {
	ParentSeriesID        string
	ChildSeriesID         string
	TargetDistanceMinutes int
	EarlyWobbleMinutes    int
	LateWobbleMinutes     int
}

// LinkService manages the temporal chain graph. The graph is a forest:
// every child has at most one parent, cycles are rejected, and no
// root-to-leaf path may exceed MaxChainDepth series.
type LinkService struct {
	store       persistence.Store
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewLinkService wires dependencies for link operations.
func NewLinkService(store persistence.Store, idGenerator func() string, now func() time.Time, logger *slog.Logger) *LinkService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &LinkService{store: store, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *LinkService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "LinkService", operation, attrs...)
}

// LinkSeries creates a link after checking every chain invariant.
func (s *LinkService) LinkSeries(ctx context.Context, input LinkInput) (string, error) {
	logger := s.loggerWith(ctx, "LinkSeries", "parent_id", input.ParentSeriesID, "child_id", input.ChildSeriesID)

	validation := &ValidationError{}
	if input.EarlyWobbleMinutes < 0 {
		validation.add("earlyWobble", "must not be negative")
	}
	if input.LateWobbleMinutes < 0 {
		validation.add("lateWobble", "must not be negative")
	}
	if input.ParentSeriesID == input.ChildSeriesID {
		validation.add("childSeriesId", "cannot link a series to itself")
	}
	if err := validation.errOrNil(); err != nil {
		logger.Warn("link rejected", "error", err, "error_kind", ErrorKind(err))
		return "", err
	}

	var linkID string
	err := s.store.Transaction(ctx, func(tx persistence.Store) error {
		if _, err := tx.GetSeries(ctx, input.ParentSeriesID); err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if _, err := tx.GetSeries(ctx, input.ChildSeriesID); err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}

		if _, err := tx.GetLinkByChild(ctx, input.ChildSeriesID); err == nil {
			return ErrChildAlreadyLinked
		} else if !errors.Is(err, persistence.ErrNotFound) {
			return err
		}

		links, err := tx.ListLinks(ctx)
		if err != nil {
			return err
		}
		parentOf := make(map[string]string, len(links))
		childrenOf := make(map[string][]string, len(links))
		for _, l := range links {
			parentOf[l.ChildSeriesID] = l.ParentSeriesID
			childrenOf[l.ParentSeriesID] = append(childrenOf[l.ParentSeriesID], l.ChildSeriesID)
		}

		// Walk the proposed parent's ancestor chain; finding the child there
		// means the new edge closes a cycle.
		for ancestor := input.ParentSeriesID; ; {
			parent, ok := parentOf[ancestor]
			if !ok {
				break
			}
			if parent == input.ChildSeriesID {
				return ErrCycleDetected
			}
			ancestor = parent
		}

		// Depth counts the series on the longest root-to-leaf path the new
		// edge would create: ancestors of the parent, the parent itself,
		// the child, and the child's deepest subtree.
		depth := depthToRoot(input.ParentSeriesID, parentOf) + 2 + subtreeDepth(input.ChildSeriesID, childrenOf)
		if depth > MaxChainDepth {
			return ErrChainDepthExceeded
		}

		linkID = s.idGenerator()
		return tx.CreateLink(ctx, persistence.Link{
			ID:                    linkID,
			ParentSeriesID:        input.ParentSeriesID,
			ChildSeriesID:         input.ChildSeriesID,
			TargetDistanceMinutes: input.TargetDistanceMinutes,
			EarlyWobbleMinutes:    input.EarlyWobbleMinutes,
			LateWobbleMinutes:     input.LateWobbleMinutes,
		})
	})
	if err != nil {
		logger.Warn("link rejected", "error", err, "error_kind", ErrorKind(err))
		return "", err
	}
	logger.Info("series linked", "link_id", linkID)
	return linkID, nil
}

// UnlinkSeries removes the link whose child is the given series.
func (s *LinkService) UnlinkSeries(ctx context.Context, childSeriesID string) error {
	return s.store.Transaction(ctx, func(tx persistence.Store) error {
		link, err := tx.GetLinkByChild(ctx, childSeriesID)
		if errors.Is(err, persistence.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return tx.DeleteLink(ctx, link.ID)
	})
}

// UpdateLink adjusts the distance and wobble of an existing link. The
// endpoints are not updatable; relink instead.
func (s *LinkService) UpdateLink(ctx context.Context, linkID string, targetDistance, earlyWobble, lateWobble int) error {
	validation := &ValidationError{}
	if earlyWobble < 0 {
		validation.add("earlyWobble", "must not be negative")
	}
	if lateWobble < 0 {
		validation.add("lateWobble", "must not be negative")
	}
	if err := validation.errOrNil(); err != nil {
		return err
	}
	return s.store.Transaction(ctx, func(tx persistence.Store) error {
		link, err := tx.GetLink(ctx, linkID)
		if errors.Is(err, persistence.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		link.TargetDistanceMinutes = targetDistance
		link.EarlyWobbleMinutes = earlyWobble
		link.LateWobbleMinutes = lateWobble
		return tx.UpdateLink(ctx, link)
	})
}

// depthToRoot counts the series on the path from node to its chain root,
// excluding node itself.
func depthToRoot(node string, parentOf map[string]string) int {
	depth := 0
	for {
		parent, ok := parentOf[node]
		if !ok {
			return depth
		}
		depth++
		node = parent
	}
}

// subtreeDepth counts the series on the longest path from node down to a
// leaf, excluding node itself.
func subtreeDepth(node string, childrenOf map[string][]string) int {
	deepest := 0
	for _, child := range childrenOf[node] {
		if d := subtreeDepth(child, childrenOf) + 1; d > deepest {
			deepest = d
		}
	}
	return deepest
}

// ChildTarget is the computed target start for a linked child on one date.
type ChildTarget struct {
	Target   timeutil.DateTime
	Earliest timeutil.DateTime
	Latest   timeutil.DateTime
	// ParentCompleted reports whether the parent's effective end came from
	// a logged completion rather than the scheduled end.
	ParentCompleted bool
}

// CalculateChildTarget derives the child's target start on a date: the
// parent's effective end plus the link distance. The effective end is the
// completion's end time when the parent instance is completed, the
// scheduled end otherwise. Nothing is cached, so rescheduling the parent
// propagates on the next call.
func (s *LinkService) CalculateChildTarget(ctx context.Context, childSeriesID string, date timeutil.Date) (ChildTarget, error) {
	link, err := s.store.GetLinkByChild(ctx, childSeriesID)
	if errors.Is(err, persistence.ErrNotFound) {
		return ChildTarget{}, ErrNotFound
	}
	if err != nil {
		return ChildTarget{}, err
	}

	parentRow, err := s.store.GetSeries(ctx, link.ParentSeriesID)
	if err != nil {
		return ChildTarget{}, err
	}
	parent, err := loadSeriesDetail(ctx, s.store, parentRow)
	if err != nil {
		return ChildTarget{}, err
	}

	end, completed, err := s.effectiveEnd(ctx, parent, date)
	if err != nil {
		return ChildTarget{}, err
	}
	target := end.AddMinutes(link.TargetDistanceMinutes)
	return ChildTarget{
		Target:          target,
		Earliest:        target.AddMinutes(-link.EarlyWobbleMinutes),
		Latest:          target.AddMinutes(link.LateWobbleMinutes),
		ParentCompleted: completed,
	}, nil
}

// effectiveEnd resolves the parent instance's end on a date, preferring the
// logged completion end time.
func (s *LinkService) effectiveEnd(ctx context.Context, parent Series, date timeutil.Date) (timeutil.DateTime, bool, error) {
	completion, err := s.store.GetCompletion(ctx, parent.ID, date)
	if err == nil && completion.EndTime != nil {
		return *completion.EndTime, true, nil
	}
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return timeutil.DateTime{}, false, err
	}

	start := date.At(timeutil.TimeOfDay{})
	if parent.TimeOfDay != nil {
		start = date.At(*parent.TimeOfDay)
	}
	minutes := 0
	switch parent.Duration.Kind {
	case DurationFixed:
		minutes = parent.Duration.Minutes
	case DurationAdaptive:
		minutes, err = effectiveAdaptiveDuration(ctx, s.store, parent.ID, *parent.Duration.Adaptive, date)
		if err != nil {
			return timeutil.DateTime{}, false, err
		}
	case DurationAllDay:
		minutes = 24 * 60
	}
	return start.AddMinutes(minutes), false, nil
}
