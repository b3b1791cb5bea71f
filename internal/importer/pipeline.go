package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/example/carparkd/internal/carpark/domain"
	"github.com/example/carparkd/pkg/events"
)

// PipelineConfig defines tunables for the bulk import worker pool.
type PipelineConfig struct {
	// PoolSize bounds parallel row processing. The default of 1 keeps runs
	// sequential and deterministic.
	PoolSize int
}

// Pipeline imports car park registry rows from CSV. Rows are independent:
// each one is parsed, geocoded and persisted by a pool worker, and one row's
// failure never aborts another.
type Pipeline struct {
	store    domain.Registry
	geocoder domain.Geocoder
	events   *events.Publisher
	logger   *zap.Logger
	cfg      PipelineConfig
	tracer   trace.Tracer
}

// NewPipeline constructs the import pipeline.
func NewPipeline(store domain.Registry, geocoder domain.Geocoder, publisher *events.Publisher, logger *zap.Logger, cfg PipelineConfig) *Pipeline {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		store:    store,
		geocoder: geocoder,
		events:   publisher,
		logger:   logger,
		cfg:      cfg,
		tracer:   otel.Tracer("carpark.importer"),
	}
}

// ImportResult reports final per-row outcome counts for one run.
type ImportResult struct {
	Succeeded int
	Failed    int
}

type rowJob struct {
	number int
	record []string
}

// Import reads the CSV, fans rows out across the worker pool and blocks until
// every dispatched row has completed. The header row is consumed and logged
// but not validated. Only a malformed stream fails the whole run; individual
// bad rows are counted and logged.
func (p *Pipeline) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	ctx, span := p.tracer.Start(ctx, "carpark.import")
	defer span.End()

	start := time.Now()
	runID := uuid.NewString()
	logger := p.logger.With(zap.String("run_id", runID))

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return ImportResult{}, fmt.Errorf("read csv header: %w", err)
	}
	logger.Info("csv import started",
		zap.Strings("header", header),
		zap.Int("pool_size", p.cfg.PoolSize))

	records, err := reader.ReadAll()
	if err != nil {
		return ImportResult{}, fmt.Errorf("read csv rows: %w", err)
	}

	var succeeded, failed atomic.Int64
	jobs := make(chan rowJob)
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.PoolSize; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if err := p.processRow(ctx, job.record); err != nil {
					failed.Add(1)
					importRowsTotal.WithLabelValues("failure").Inc()
					logger.Warn("row failed", zap.Int("row", job.number), zap.Error(err))
					continue
				}
				n := succeeded.Add(1)
				importRowsTotal.WithLabelValues("success").Inc()
				if n%100 == 0 {
					logger.Info("import progress", zap.Int64("processed", n))
				}
			}
		}()
	}

	for i, record := range records {
		jobs <- rowJob{number: i + 1, record: record}
	}
	close(jobs)
	wg.Wait()

	result := ImportResult{Succeeded: int(succeeded.Load()), Failed: int(failed.Load())}
	importDurationSeconds.Observe(time.Since(start).Seconds())
	logger.Info("car park import completed",
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("total", len(records)))

	if err := p.events.Publish(ctx, events.Event{
		RunID:       runID,
		Type:        events.TypeCarParkImport,
		Succeeded:   result.Succeeded,
		Failed:      result.Failed,
		CompletedAt: time.Now().UTC(),
	}); err != nil {
		logger.Warn("publish import event failed", zap.Error(err))
	}

	return result, nil
}

// processRow runs one row's full parse, geocode, persist sequence.
func (p *Pipeline) processRow(ctx context.Context, record []string) error {
	cp, err := parseCarParkRow(record)
	if err != nil {
		return err
	}
	lat, lon, err := p.geocoder.Convert(ctx, cp.XCoord, cp.YCoord)
	if err != nil {
		return fmt.Errorf("geocode %s: %w", cp.CarParkNo, err)
	}
	cp.Latitude = &lat
	cp.Longitude = &lon
	if err := p.store.SaveCarPark(ctx, cp); err != nil {
		return err
	}
	return nil
}
