// Package history persists finished load test runs to Redis and Postgres.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"history-calendar-loadtest/internal/cache"
	"history-calendar-loadtest/internal/database"
	"history-calendar-loadtest/internal/models"
)

const (
	RunsKey   = "loadtest:calendar:runs"
	LatestKey = "loadtest:calendar:latest"
	MaxRuns   = 100
)

// Sink stores run records.
type Sink interface {
	Name() string
	Save(ctx context.Context, run *models.RunRecord) error
	Recent(ctx context.Context, limit int) ([]models.RunRecord, error)
}

// RedisSink keeps the newest MaxRuns runs in a list plus the latest run
// under its own key.
type RedisSink struct {
	redis *cache.RedisClient
	limit int64
}

// NewRedisSink creates a sink that keeps runs in Redis
func NewRedisSink(redis *cache.RedisClient) *RedisSink {
	return &RedisSink{redis: redis, limit: MaxRuns}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Save(ctx context.Context, run *models.RunRecord) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	if err := s.redis.PushCapped(ctx, RunsKey, data, s.limit); err != nil {
		return fmt.Errorf("failed to append run: %w", err)
	}
	if err := s.redis.Set(ctx, LatestKey, data, 0); err != nil {
		return fmt.Errorf("failed to store latest run: %w", err)
	}
	return nil
}

func (s *RedisSink) Recent(ctx context.Context, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	entries, err := s.redis.Range(ctx, RunsKey, 0, int64(limit)-1)
	if err != nil {
		return nil, err
	}
	runs := make([]models.RunRecord, 0, len(entries))
	for _, entry := range entries {
		var run models.RunRecord
		if err := json.Unmarshal([]byte(entry), &run); err != nil {
			logrus.WithError(err).Warn("Skipping unreadable run history entry")
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// PostgresSink stores every run as a row.
type PostgresSink struct {
	db *gorm.DB
}

// NewPostgresSink creates a sink that stores runs in Postgres
func NewPostgresSink(db *gorm.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Save(ctx context.Context, run *models.RunRecord) error {
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func (s *PostgresSink) Recent(ctx context.Context, limit int) ([]models.RunRecord, error) {
	var runs []models.RunRecord
	err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	return runs, nil
}

// Recorder fans a run out to every configured sink. Sink failures are
// logged and never fail the run.
type Recorder struct {
	sinks  []Sink
	closer []func() error
}

// NewRecorder creates a recorder over the given sinks
func NewRecorder(sinks ...Sink) *Recorder {
	return &Recorder{sinks: sinks}
}

// Open connects the sinks whose URLs are set. A sink that cannot connect is
// skipped with a warning.
func Open(ctx context.Context, redisURL, databaseURL string) *Recorder {
	r := &Recorder{}
	if redisURL != "" {
		client, err := cache.NewRedisClient(ctx, redisURL)
		if err != nil {
			logrus.WithError(err).Warn("Run history in Redis disabled")
		} else {
			r.sinks = append(r.sinks, NewRedisSink(client))
			r.closer = append(r.closer, client.Close)
		}
	}
	if databaseURL != "" {
		db, err := database.Connect(databaseURL)
		if err != nil {
			logrus.WithError(err).Warn("Run history in Postgres disabled")
		} else {
			r.sinks = append(r.sinks, NewPostgresSink(db))
			r.closer = append(r.closer, func() error { return database.Close(db) })
		}
	}
	return r
}

// Enabled reports whether any sink is configured.
func (r *Recorder) Enabled() bool {
	return len(r.sinks) > 0
}

// Sinks returns the connected sinks in configuration order
func (r *Recorder) Sinks() []Sink {
	return r.sinks
}

// Save writes run to every sink and returns how many succeeded.
func (r *Recorder) Save(ctx context.Context, run *models.RunRecord) int {
	saved := 0
	for _, sink := range r.sinks {
		if err := sink.Save(ctx, run); err != nil {
			logrus.WithError(err).WithField("sink", sink.Name()).Error("Failed to save run history")
			continue
		}
		saved++
		logrus.WithFields(logrus.Fields{
			"sink":   sink.Name(),
			"run_id": run.ID,
		}).Info("Run history saved")
	}
	return saved
}

// Close releases every sink connection
func (r *Recorder) Close() error {
	var errs []error
	for _, c := range r.closer {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
