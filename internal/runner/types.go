package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"loadceiling/internal/target"
)

// Status classifies a single query execution.
type Status int

const (
	StatusSuccess Status = iota
	StatusQueryFailure
	StatusConnectionFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusQueryFailure:
		return "query_failure"
	case StatusConnectionFailure:
		return "connection_failure"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// QueryOutcome is the result of one execution attempt.
// Err is empty iff Status is StatusSuccess.
type QueryOutcome struct {
	QueryName string        `json:"query_name"`
	Duration  time.Duration `json:"duration_ns"`
	Rows      int           `json:"rows_returned"`
	Status    Status        `json:"status"`
	Err       string        `json:"error,omitempty"`
}

func (o QueryOutcome) Success() bool {
	return o.Status == StatusSuccess
}

// Thresholds holds the stopping rule and the stability rule. They are
// evaluated independently.
type Thresholds struct {
	StopSuccessRate    float64 `json:"stop_success_rate"`
	StopConnFailures   int     `json:"stop_conn_failures"`
	StableSuccessRate  float64 `json:"stable_success_rate"`
	StableConnFailures int     `json:"stable_conn_failures"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		StopSuccessRate:    70,
		StopConnFailures:   10,
		StableSuccessRate:  95,
		StableConnFailures: 5,
	}
}

// Level is an optional worker count. The zero value means "not found",
// which is different from Level{Workers: 0, Found: true}.
type Level struct {
	Workers int
	Found   bool
}

func LevelOf(workers int) Level {
	return Level{Workers: workers, Found: true}
}

func (l Level) String() string {
	if !l.Found {
		return "none"
	}
	return strconv.Itoa(l.Workers)
}

func (l Level) MarshalJSON() ([]byte, error) {
	if !l.Found {
		return []byte("null"), nil
	}
	return json.Marshal(l.Workers)
}

func (l *Level) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = Level{}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*l = LevelOf(n)
	return nil
}

// Config drives one escalation run.
type Config struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"-"`

	StartWorkers  int `json:"start_workers"`
	MaxWorkers    int `json:"max_workers"`
	Step          int `json:"step"`
	UnitsPerStage int `json:"units_per_stage"`

	Thresholds Thresholds    `json:"thresholds"`
	Pause      time.Duration `json:"pause_ns"`

	ConnectTimeout time.Duration `json:"connect_timeout_ns"`
	IOTimeout      time.Duration `json:"io_timeout_ns"`
	ConnPolicy     target.Policy `json:"conn_policy"`

	// Seed for query sampling; 0 seeds from the clock.
	Seed int64 `json:"seed"`
	// ProgressEvery is the number of completions between progress events.
	ProgressEvery int `json:"progress_every"`
}

func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           9000,
		Database:       "default",
		User:           "default",
		StartWorkers:   5,
		MaxWorkers:     50,
		Step:           5,
		UnitsPerStage:  50,
		Thresholds:     DefaultThresholds(),
		Pause:          2 * time.Second,
		ConnectTimeout: 5 * time.Second,
		IOTimeout:      30 * time.Second,
		ConnPolicy:     target.PolicyFresh,
		ProgressEvery:  10,
	}
}

// Levels returns start, start+step, ... up to and including max.
func (c Config) Levels() []int {
	if c.Step <= 0 || c.StartWorkers > c.MaxWorkers {
		return nil
	}
	var levels []int
	for w := c.StartWorkers; w <= c.MaxWorkers; w += c.Step {
		levels = append(levels, w)
	}
	return levels
}

// ErrInvalidConfig is matched by every *ConfigError.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError reports an invalid run parameter.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Validate checks the configuration before any stage runs.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Host) == "":
		return &ConfigError{"host", "must not be empty"}
	case c.Port < 1 || c.Port > 65535:
		return &ConfigError{"port", fmt.Sprintf("%d is outside 1..65535", c.Port)}
	case c.StartWorkers <= 0:
		return &ConfigError{"start_workers", "must be > 0"}
	case c.MaxWorkers <= 0:
		return &ConfigError{"max_workers", "must be > 0"}
	case c.StartWorkers > c.MaxWorkers:
		return &ConfigError{"start_workers", fmt.Sprintf("%d exceeds max_workers %d", c.StartWorkers, c.MaxWorkers)}
	case c.Step <= 0:
		return &ConfigError{"step", "must be > 0"}
	case c.UnitsPerStage <= 0:
		return &ConfigError{"units_per_stage", "must be > 0"}
	case c.Pause < 0:
		return &ConfigError{"pause", "must not be negative"}
	case c.ConnectTimeout <= 0:
		return &ConfigError{"connect_timeout", "must be > 0"}
	case c.IOTimeout <= 0:
		return &ConfigError{"io_timeout", "must be > 0"}
	case c.ProgressEvery <= 0:
		return &ConfigError{"progress_every", "must be > 0"}
	}

	if _, err := target.ParsePolicy(string(c.ConnPolicy)); err != nil {
		return &ConfigError{"conn_policy", err.Error()}
	}
	return c.Thresholds.validate()
}

func (t Thresholds) validate() error {
	for _, r := range []struct {
		field string
		v     float64
	}{
		{"stop_success_rate", t.StopSuccessRate},
		{"stable_success_rate", t.StableSuccessRate},
	} {
		if r.v < 0 || r.v > 100 {
			return &ConfigError{r.field, fmt.Sprintf("%.1f is outside 0..100", r.v)}
		}
	}
	if t.StopConnFailures < 0 {
		return &ConfigError{"stop_conn_failures", "must not be negative"}
	}
	if t.StableConnFailures < 0 {
		return &ConfigError{"stable_conn_failures", "must not be negative"}
	}
	return nil
}
