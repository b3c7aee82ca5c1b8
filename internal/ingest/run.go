package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/geosensor-ingest/internal/domain"
)

// Job describes one run over an area.
type Job struct {
	Sources        []Source
	Area           domain.Rectangle
	TileEdgeMeters int
	Discover       bool
	Fields         []string
	Scale          domain.Scale
}

// RunReport summarizes one run.
type RunReport struct {
	RunID      string                            `json:"run_id"`
	StartedAt  time.Time                         `json:"started_at"`
	FinishedAt time.Time                         `json:"finished_at"`
	Outcome    string                            `json:"outcome"`
	Discovery  map[domain.Source]DiscoveryReport `json:"discovery,omitempty"`
	Ingestion  map[domain.Source]IngestReport    `json:"ingestion"`
}

// Run outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// IngestArea ingests every stored sensor of src inside area. Sensors are
// processed by a bounded worker pool; each sensor is handled by exactly one
// worker so a (sensor, type) pair has a single writer.
func (o *Orchestrator) IngestArea(ctx context.Context, src Source, area domain.Rectangle, fields []string, scale domain.Scale) (IngestReport, error) {
	var report IngestReport
	if !scale.Valid() {
		return report, fmt.Errorf("%w: scale %q", domain.ErrInvalidInput, scale)
	}

	all, err := o.sensors.SensorsInArea(ctx, area)
	if err != nil {
		return report, fmt.Errorf("sensors in area: %w", err)
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(o.workers)

	for _, sensor := range all {
		if sensor.Source != src.Name() {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rep, err := o.IngestSensor(ctx, src, sensor, fields, scale)
			if err != nil && !isCancellation(ctx, err) {
				rep.Failed++
				o.logger.Warn("sensor ingestion failed",
					"source", string(src.Name()),
					"original_id", sensor.OriginalID,
					"error", err,
				)
			}
			mu.Lock()
			report.add(rep)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return report, ctx.Err()
}

// Run executes an optional discovery pass and an ingestion pass for every
// source of job. Cancellation ends the run early with outcome "cancelled"
// and no error.
func (o *Orchestrator) Run(ctx context.Context, job Job) (RunReport, error) {
	report := RunReport{
		RunID:     uuid.NewString(),
		StartedAt: domain.Now(),
		Discovery: make(map[domain.Source]DiscoveryReport),
		Ingestion: make(map[domain.Source]IngestReport),
	}
	log := o.logger.With("run_id", report.RunID)

	o.metrics.IngestRunning.Set(1)
	defer o.metrics.IngestRunning.Set(0)
	start := time.Now()

	err := o.run(ctx, job, &report)

	report.FinishedAt = domain.Now()
	switch {
	case err == nil:
		report.Outcome = OutcomeSuccess
		o.ready.Store(true)
	case isCancellation(ctx, err):
		report.Outcome = OutcomeCancelled
		err = nil
	default:
		report.Outcome = OutcomeError
	}
	o.metrics.Runs.WithLabelValues(report.Outcome).Inc()
	o.metrics.RunDuration.Observe(time.Since(start).Seconds())

	log.Info("run finished", "outcome", report.Outcome, "duration", report.FinishedAt.Sub(report.StartedAt).String())
	return report, err
}

func (o *Orchestrator) run(ctx context.Context, job Job, report *RunReport) error {
	if err := job.Area.Validate(); err != nil {
		return err
	}
	if !job.Scale.Valid() {
		return fmt.Errorf("%w: scale %q", domain.ErrInvalidInput, job.Scale)
	}
	if len(job.Sources) == 0 {
		return fmt.Errorf("%w: no sources configured", domain.ErrInvalidInput)
	}

	var errs []error
	for _, src := range job.Sources {
		if job.Discover {
			dr, err := o.Discover(ctx, src, job.Area, job.TileEdgeMeters)
			report.Discovery[src.Name()] = dr
			if err != nil {
				if isCancellation(ctx, err) {
					return err
				}
				errs = append(errs, fmt.Errorf("discover %s: %w", src.Name(), err))
				continue
			}
		}

		ir, err := o.IngestArea(ctx, src, job.Area, job.Fields, job.Scale)
		report.Ingestion[src.Name()] = ir
		if err != nil {
			if isCancellation(ctx, err) {
				return err
			}
			errs = append(errs, fmt.Errorf("ingest %s: %w", src.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// ResetSensor deletes every stored measurement of a sensor so the next run
// ingests its history again.
func (o *Orchestrator) ResetSensor(ctx context.Context, source domain.Source, originalID string) (int64, error) {
	sensor, ok, err := o.sensors.SensorByOriginalID(ctx, originalID, source)
	if err != nil {
		return 0, fmt.Errorf("look up sensor: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s/%s", domain.ErrUnknownSensor, source, originalID)
	}

	n, err := o.measurements.ClearForSensor(ctx, sensor.ID.Int64())
	if err != nil {
		return 0, fmt.Errorf("clear measurements: %w", err)
	}
	o.logger.Info("sensor measurements cleared", "source", string(source), "original_id", originalID, "sensor_id", sensor.ID.Int64(), "deleted", n)
	return n, nil
}
