package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/autoplanner/internal/application"
	"github.com/example/autoplanner/internal/config"
	"github.com/example/autoplanner/internal/logging"
	"github.com/example/autoplanner/internal/persistence/sqlite"
	"github.com/example/autoplanner/internal/reflow"
	"github.com/example/autoplanner/internal/timeutil"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.ContextWithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	store, err := sqlite.Open(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close storage", "error", err)
		}
	}()

	if err := store.Migrate(ctx); err != nil {
		logger.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}

	engine := reflow.NewEngine()
	engine.StepMinutes = cfg.TimeStepMinutes
	engine.NodeBudget = cfg.SearchBudget

	planner := application.NewPlanner(store,
		application.WithLogger(logger),
		application.WithEngine(engine),
	)

	if err := printSchedule(ctx, planner, cfg.HorizonDays); err != nil {
		logger.Error("failed to materialize schedule", "error", err)
		os.Exit(1)
	}
}

// printSchedule materializes the schedule from today over the configured
// horizon and writes it to stdout as JSON lines.
func printSchedule(ctx context.Context, planner *application.Planner, horizonDays int) error {
	now := time.Now()
	today := timeutil.NewDate(now.Year(), int(now.Month()), now.Day())

	schedule, err := planner.GetSchedule(ctx, application.DateRange{
		From: today,
		To:   today.AddDays(horizonDays),
	})
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	for _, inst := range schedule.Instances {
		record := map[string]any{
			"series_id": inst.SeriesID,
			"title":     inst.Title,
			"date":      inst.Date.String(),
			"all_day":   inst.AllDay,
		}
		if inst.Start != nil {
			record["start"] = inst.Start.String()
			record["end"] = inst.End.String()
		}
		if err := encoder.Encode(record); err != nil {
			return err
		}
	}
	for _, r := range schedule.PendingReminders {
		if err := encoder.Encode(map[string]any{
			"reminder_id":   r.ReminderID,
			"series_id":     r.SeriesID,
			"instance_date": r.InstanceDate.String(),
			"label":         r.Label,
			"fire_at":       r.FireAt.String(),
		}); err != nil {
			return err
		}
	}
	for _, c := range schedule.Conflicts {
		if err := encoder.Encode(map[string]any{
			"conflict":    string(c.Type),
			"description": c.Description,
		}); err != nil {
			return err
		}
	}
	return nil
}
