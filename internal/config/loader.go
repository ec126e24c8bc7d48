// Package config loads the autoplanner binary's configuration from the
// process environment. The core library takes these values as plain
// parameters; only cmd/autoplanner reads the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config captures environment driven configuration values for the
// autoplanner binary.
type Config struct {
	SQLiteDSN       string
	HorizonDays     int
	SearchBudget    int
	TimeStepMinutes int
}

// Load parses configuration values from the current process environment,
// applying defaults for unset fields and collecting every invalid entry
// into one error.
func Load() (Config, error) {
	cfg := Config{
		SQLiteDSN:       "file:autoplanner.db",
		HorizonDays:     14,
		SearchBudget:    200_000,
		TimeStepMinutes: 1,
	}

	invalid := make([]string, 0, 3)

	if dsn := strings.TrimSpace(os.Getenv("AUTOPLANNER_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if value := strings.TrimSpace(os.Getenv("AUTOPLANNER_HORIZON_DAYS")); value != "" {
		days, err := strconv.Atoi(value)
		if err != nil || days <= 0 {
			invalid = append(invalid, "AUTOPLANNER_HORIZON_DAYS")
		} else {
			cfg.HorizonDays = days
		}
	}

	if value := strings.TrimSpace(os.Getenv("AUTOPLANNER_SEARCH_BUDGET")); value != "" {
		budget, err := strconv.Atoi(value)
		if err != nil || budget <= 0 {
			invalid = append(invalid, "AUTOPLANNER_SEARCH_BUDGET")
		} else {
			cfg.SearchBudget = budget
		}
	}

	if value := strings.TrimSpace(os.Getenv("AUTOPLANNER_TIME_STEP_MINUTES")); value != "" {
		step, err := strconv.Atoi(value)
		if err != nil || step <= 0 {
			invalid = append(invalid, "AUTOPLANNER_TIME_STEP_MINUTES")
		} else {
			cfg.TimeStepMinutes = step
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("config: invalid environment values: %s", strings.Join(invalid, ", "))
	}
	return cfg, nil
}
