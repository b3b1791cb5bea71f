package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/example/carparkd/internal/carpark/domain"
	"github.com/example/carparkd/pkg/events"
)

// FeedConfig holds the availability feed endpoint settings.
type FeedConfig struct {
	URL     string
	Timeout time.Duration
}

// Feed polls the external availability feed and upserts per-lot-type
// snapshots. Entries for car parks missing from the registry are skipped with
// accounting; any fetch or parse error aborts the whole refresh, leaving
// already-applied upserts committed.
type Feed struct {
	store  domain.Store
	events *events.Publisher
	logger *zap.Logger
	http   *http.Client
	cfg    FeedConfig
	tracer trace.Tracer
}

// NewFeed constructs the feed importer.
func NewFeed(store domain.Store, publisher *events.Publisher, logger *zap.Logger, cfg FeedConfig) *Feed {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{
		store:  store,
		events: publisher,
		logger: logger,
		http:   &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		tracer: otel.Tracer("carpark.feed"),
	}
}

type feedDocument struct {
	Items []feedItem `json:"items"`
}

type feedItem struct {
	Timestamp   string      `json:"timestamp"`
	CarParkData []feedEntry `json:"carpark_data"`
}

type feedEntry struct {
	CarParkNumber string        `json:"carpark_number"`
	CarParkInfo   []feedLotInfo `json:"carpark_info"`
}

type feedLotInfo struct {
	LotType       string `json:"lot_type"`
	TotalLots     string `json:"total_lots"`
	LotsAvailable string `json:"lots_available"`
}

// FeedResult reports entry counts for one refresh run. Processed counts every
// car park entry seen, including the skipped ones.
type FeedResult struct {
	Processed int
	Skipped   int
}

// Refresh fetches the feed document once and applies it.
func (f *Feed) Refresh(ctx context.Context) (FeedResult, error) {
	ctx, span := f.tracer.Start(ctx, "availability.refresh")
	defer span.End()

	runID := uuid.NewString()
	logger := f.logger.With(zap.String("run_id", runID))

	doc, err := f.fetch(ctx)
	if err != nil {
		feedRefreshTotal.WithLabelValues("failure").Inc()
		return FeedResult{}, err
	}

	var result FeedResult
	skippedCarParks := make(map[string]struct{})

	for _, item := range doc.Items {
		updateTime, err := time.Parse(time.RFC3339, item.Timestamp)
		if err != nil {
			feedRefreshTotal.WithLabelValues("failure").Inc()
			return result, fmt.Errorf("parse feed timestamp %q: %w", item.Timestamp, err)
		}

		for _, entry := range item.CarParkData {
			exists, err := f.store.CarParkExists(ctx, entry.CarParkNumber)
			if err != nil {
				feedRefreshTotal.WithLabelValues("failure").Inc()
				return result, err
			}
			if !exists {
				result.Skipped++
				result.Processed++
				skippedCarParks[entry.CarParkNumber] = struct{}{}
				feedEntriesTotal.WithLabelValues("skipped").Inc()
				continue
			}

			for _, info := range entry.CarParkInfo {
				snap, err := buildSnapshot(entry.CarParkNumber, info, updateTime)
				if err != nil {
					feedRefreshTotal.WithLabelValues("failure").Inc()
					return result, err
				}
				if err := f.store.UpsertAvailability(ctx, snap); err != nil {
					feedRefreshTotal.WithLabelValues("failure").Inc()
					return result, err
				}
			}
			result.Processed++
			feedEntriesTotal.WithLabelValues("processed").Inc()
		}
	}

	if len(skippedCarParks) > 0 {
		logger.Warn("skipped unknown car parks",
			zap.Int("count", result.Skipped),
			zap.Strings("car_park_numbers", sortedKeys(skippedCarParks)))
	}
	logger.Info("availability refresh completed",
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped))
	feedRefreshTotal.WithLabelValues("success").Inc()

	if err := f.events.Publish(ctx, events.Event{
		RunID:       runID,
		Type:        events.TypeAvailabilityRefresh,
		Succeeded:   result.Processed - result.Skipped,
		Skipped:     result.Skipped,
		CompletedAt: time.Now().UTC(),
	}); err != nil {
		logger.Warn("publish refresh event failed", zap.Error(err))
	}

	return result, nil
}

func (f *Feed) fetch(ctx context.Context) (feedDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.URL, nil)
	if err != nil {
		return feedDocument{}, fmt.Errorf("build feed request: %w", err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return feedDocument{}, fmt.Errorf("fetch availability feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return feedDocument{}, fmt.Errorf("availability feed returned status %d", resp.StatusCode)
	}

	var doc feedDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return feedDocument{}, fmt.Errorf("decode availability feed: %w", err)
	}
	return doc, nil
}

// buildSnapshot converts one feed record; lot counts arrive as numeric strings.
func buildSnapshot(carParkNo string, info feedLotInfo, updateTime time.Time) (domain.AvailabilitySnapshot, error) {
	total, err := strconv.Atoi(info.TotalLots)
	if err != nil {
		return domain.AvailabilitySnapshot{}, fmt.Errorf("parse total lots %q for %s: %w", info.TotalLots, carParkNo, err)
	}
	available, err := strconv.Atoi(info.LotsAvailable)
	if err != nil {
		return domain.AvailabilitySnapshot{}, fmt.Errorf("parse available lots %q for %s: %w", info.LotsAvailable, carParkNo, err)
	}
	return domain.AvailabilitySnapshot{
		CarParkNo:      carParkNo,
		LotType:        info.LotType,
		TotalLots:      total,
		AvailableLots:  available,
		UpdateDatetime: updateTime,
	}, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
