package predlog

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/eta/core/model"
)

// Record captures one served prediction.
type Record struct {
	RequestID string           `json:"request_id"`
	Timestamp time.Time        `json:"timestamp"`
	Source    string           `json:"source"`
	Row       model.FeatureRow `json:"row"`
	Minutes   float64          `json:"minutes"`
	Error     string           `json:"error,omitempty"`
	// ModelTrainedAt identifies the pipeline that served the request.
	ModelTrainedAt time.Time `json:"model_trained_at"`
}

// Query defines filters for retrieving records. Zero values match anything.
type Query struct {
	Start       time.Time
	End         time.Time
	VehicleType string
	Source      string
	// Limit keeps the most recent records when > 0.
	Limit int
}

// Match reports whether r passes the filters of q, ignoring Limit.
func (q Query) Match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.VehicleType != "" && r.Row.VehicleType != q.VehicleType {
		return false
	}
	if q.Source != "" && r.Source != q.Source {
		return false
	}
	return true
}

func (q Query) limit(res []Record) []Record {
	if q.Limit > 0 && len(res) > q.Limit {
		return res[len(res)-q.Limit:]
	}
	return res
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore drops every record.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error            { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                    { return nil }

// Config selects and configures the store backend.
type Config struct {
	// Backend is "jsonl", "sqlite" or "none".
	Backend string `json:"backend"`
	// Path is the file location of the store.
	Path string `json:"path"`
	// MaxSizeMB triggers rotation when the file exceeds this size in megabytes.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" {
		switch c.Backend {
		case "sqlite":
			c.Path = "data/predictions.db"
		default:
			c.Path = "data/predictions.jsonl"
		}
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 10
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	switch c.Backend {
	case "jsonl", "sqlite", "none":
	default:
		return fmt.Errorf("unknown backend %s", c.Backend)
	}
	if c.Backend != "none" && c.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

// New opens the store described by cfg.
func New(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "none":
		return NopStore{}, nil
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	case "jsonl", "":
		return NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	}
	return nil, fmt.Errorf("unknown backend %s", cfg.Backend)
}
