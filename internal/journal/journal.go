package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	metricsOnce    sync.Once
	writesTotal    *prometheus.CounterVec
	writeFailures  prometheus.Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "journal_writes_total",
			Help: "Total journal record writes, by outcome",
		}, []string{"outcome"})
		writeFailures = promauto.NewCounter(prometheus.CounterOpts{
			Name: "journal_write_failures_total",
			Help: "Total journal write failures (non-fatal, retried next tick)",
		})
	})
}

// WriteFailedError surfaces a non-fatal write failure per spec.md §7; the
// decision itself is still considered valid.
type WriteFailedError struct {
	CycleID string
	Cause   error
}

func (e *WriteFailedError) Error() string {
	return fmt.Sprintf("journal: write failed for cycle %s: %v", e.CycleID, e.Cause)
}

func (e *WriteFailedError) Unwrap() error { return e.Cause }

// Journal is an append-only JSONL sink serialized by an internal mutex
// (spec.md §5: "Journal … internally serialized"), grounded in structure on
// internal/audit/audit.go's typed-event + zerolog-mirror pattern but
// targeting a file, not Postgres, as the system of record.
type Journal struct {
	mu             sync.Mutex
	file           *os.File
	fsyncEachWrite bool
	log            zerolog.Logger
}

type Config struct {
	Path           string
	FsyncEachRecord bool
}

func Open(cfg Config, log zerolog.Logger) (*Journal, error) {
	initMetrics()
	f, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", cfg.Path, err)
	}
	return &Journal{
		file:           f,
		fsyncEachWrite: cfg.FsyncEachRecord,
		log:            log.With().Str("component", "journal").Logger(),
	}, nil
}

// Write appends one record. It is durable before returning success when
// FsyncEachRecord is set (the default — safe for production per spec.md §9
// Open Question 3). Write failures are non-fatal: the caller should retry
// on the next cycle's tick.
func (j *Journal) Write(r Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(r)
	if err != nil {
		writesTotal.WithLabelValues("failure").Inc()
		writeFailures.Inc()
		return &WriteFailedError{CycleID: r.CycleID, Cause: err}
	}
	data = append(data, '\n')

	if _, err := j.file.Write(data); err != nil {
		writesTotal.WithLabelValues("failure").Inc()
		writeFailures.Inc()
		j.log.Error().Err(err).Str("cycle_id", r.CycleID).Msg("journal write failed")
		return &WriteFailedError{CycleID: r.CycleID, Cause: err}
	}

	if j.fsyncEachWrite {
		if err := j.file.Sync(); err != nil {
			writesTotal.WithLabelValues("failure").Inc()
			writeFailures.Inc()
			j.log.Error().Err(err).Str("cycle_id", r.CycleID).Msg("journal fsync failed")
			return &WriteFailedError{CycleID: r.CycleID, Cause: err}
		}
	}

	writesTotal.WithLabelValues("success").Inc()
	return nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
