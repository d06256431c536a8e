package usecase

import (
	"context"
	"errors"
	"time"

	"ProbDesk/internal/domain/models"
	drepo "ProbDesk/internal/domain/repository"
	domsvc "ProbDesk/internal/domain/service"
	"ProbDesk/internal/service/cache"
	"ProbDesk/internal/services/divergence"
	applogger "ProbDesk/pkg/logger"
)

const heatmapCacheKey = "heatmap"

var ErrMarketNotFound = errors.New("market not found")

// Dashboard serves the read side: heatmap, alert passes, market list and history.
type Dashboard struct {
	book        drepo.SnapshotBook
	agg         domsvc.Aggregator
	classifier  domsvc.Classifier
	tracker     domsvc.HistoryTracker
	archive     drepo.SnapshotArchive
	cache       cache.BytesCache
	cacheTTL    time.Duration
	backfillMax int
	defaultTF   drepo.Timeframe
	logger      *applogger.Logger
}

type DashboardOption func(*Dashboard)

// WithHeatmapCache caches the rendered heatmap for ttl.
func WithHeatmapCache(c cache.BytesCache, ttl time.Duration) DashboardOption {
	return func(d *Dashboard) {
		d.cache = c
		d.cacheTTL = ttl
	}
}

// WithArchive enables history backfill for markets the tracker has not seen.
func WithArchive(a drepo.SnapshotArchive, limit int) DashboardOption {
	return func(d *Dashboard) {
		d.archive = a
		if limit > 0 {
			d.backfillMax = limit
		}
	}
}

// WithDefaultTimeframe sets the history window used when a request names none.
func WithDefaultTimeframe(tf drepo.Timeframe) DashboardOption {
	return func(d *Dashboard) {
		if drepo.IsValidTimeframe(tf) {
			d.defaultTF = tf
		}
	}
}

func WithDashboardLogger(l *applogger.Logger) DashboardOption {
	return func(d *Dashboard) {
		if l != nil {
			d.logger = l
		}
	}
}

func NewDashboard(
	book drepo.SnapshotBook,
	agg domsvc.Aggregator,
	classifier domsvc.Classifier,
	tracker domsvc.HistoryTracker,
	opts ...DashboardOption,
) *Dashboard {
	d := &Dashboard{
		book:        book,
		agg:         agg,
		classifier:  classifier,
		tracker:     tracker,
		backfillMax: 500,
		defaultTF:   drepo.DefaultTimeframe(),
		logger:      applogger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Heatmap aggregates the current book. Cache failures fall back to a fresh pass.
func (d *Dashboard) Heatmap(ctx context.Context) (models.HeatmapData, error) {
	cached := d.cache != nil && d.cacheTTL > 0
	if cached {
		data, ok, err := cache.GetJSON[models.HeatmapData](ctx, d.cache, heatmapCacheKey)
		if err != nil {
			d.logger.Warn("heatmap cache get failed", applogger.Error(err))
		}
		if ok {
			return data, nil
		}
	}

	data := d.agg.Aggregate(d.book.Snapshot())

	if cached {
		if err := cache.SetJSON(ctx, d.cache, heatmapCacheKey, data, d.cacheTTL); err != nil {
			d.logger.Warn("heatmap cache set failed", applogger.Error(err))
		}
	}
	return data, nil
}

// Alerts runs a fresh classification pass over the latest snapshots.
// Overridden thresholds are validated like the configured ones.
func (d *Dashboard) Alerts(_ context.Context, thresholds models.AlertThresholds) ([]models.DivergenceAlert, models.AlertThresholds, error) {
	c := d.classifier
	if thresholds != c.Thresholds() {
		custom, err := divergence.NewClassifier(thresholds)
		if err != nil {
			return nil, thresholds, err
		}
		c = custom
	}
	return c.ClassifyAll(d.book.Snapshot()), c.Thresholds(), nil
}

func (d *Dashboard) DefaultTimeframe() drepo.Timeframe { return d.defaultTF }

func (d *Dashboard) DefaultThresholds() models.AlertThresholds { return d.classifier.Thresholds() }

// Markets returns the latest snapshot per market, sorted by market id.
func (d *Dashboard) Markets(_ context.Context) []models.ProbabilitySnapshot {
	return d.book.Snapshot()
}

// History returns the tracked series for a market, backfilling from the
// archive on a miss.
func (d *Dashboard) History(ctx context.Context, marketID string, tf drepo.Timeframe) (models.MarketProbabilityHistory, error) {
	if h, ok := d.tracker.Get(marketID, tf); ok {
		return h, nil
	}
	if d.archive == nil {
		return models.MarketProbabilityHistory{}, ErrMarketNotFound
	}

	rows, err := d.archive.Query(ctx, marketID, time.Unix(0, 0).UTC(), time.Now().UTC(), d.backfillMax)
	if err != nil {
		return models.MarketProbabilityHistory{}, err
	}
	if len(rows) == 0 {
		return models.MarketProbabilityHistory{}, ErrMarketNotFound
	}
	for _, s := range rows {
		d.tracker.Record(s)
	}
	d.logger.Debug("history backfilled",
		applogger.String("market_id", marketID),
		applogger.Int("points", len(rows)))

	h, _ := d.tracker.Get(marketID, tf)
	return h, nil
}
