package pilot

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/evidence-cli/internal/model"
)

// MetricsSource reports a site's current clinic metrics.
type MetricsSource interface {
	SiteMetrics(ctx context.Context, siteID string, asOf time.Time) (map[string]float64, error)
}

// MetricStore is the persistence StoreMetrics reads and writes.
type MetricStore interface {
	RecordMetric(ctx context.Context, obs *model.MetricObservation) error
	SiteMetricAverages(ctx context.Context, siteID string, from, before time.Time) (map[string]float64, error)
}

// DefaultMetricsWindow is how far back observations are averaged.
const DefaultMetricsWindow = 30 * 24 * time.Hour

// StoreMetrics averages recorded observations over a trailing window.
type StoreMetrics struct {
	store  MetricStore
	window time.Duration
}

// NewStoreMetrics creates a StoreMetrics. A non-positive window uses
// DefaultMetricsWindow.
func NewStoreMetrics(st MetricStore, window time.Duration) *StoreMetrics {
	if window <= 0 {
		window = DefaultMetricsWindow
	}
	return &StoreMetrics{store: st, window: window}
}

// SiteMetrics returns the per-metric average for observations in
// [asOf-window, asOf].
func (m *StoreMetrics) SiteMetrics(ctx context.Context, siteID string, asOf time.Time) (map[string]float64, error) {
	out, err := m.store.SiteMetricAverages(ctx, siteID, asOf.Add(-m.window), asOf.Add(time.Nanosecond))
	if err != nil {
		return nil, eris.Wrapf(err, "pilot: metrics for site %s", siteID)
	}
	return out, nil
}

// Record stores one observation.
func (m *StoreMetrics) Record(ctx context.Context, siteID, metric string, value float64, at time.Time) (*model.MetricObservation, error) {
	if siteID == "" || metric == "" {
		return nil, eris.New("pilot: site and metric are required")
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	obs := &model.MetricObservation{SiteID: siteID, Metric: metric, Value: value, ObservedAt: at.UTC()}
	if err := m.store.RecordMetric(ctx, obs); err != nil {
		return nil, eris.Wrap(err, "pilot: record metric")
	}
	return obs, nil
}

// CaptureMetrics reads every site's metrics concurrently. Sites that fail or
// report nothing are logged and left out.
func CaptureMetrics(ctx context.Context, src MetricsSource, siteIDs []string, asOf time.Time, concurrency int) model.SiteMetrics {
	log := zap.L().With(zap.String("component", "pilot"))
	if concurrency <= 0 {
		concurrency = 4
	}

	var mu sync.Mutex
	out := make(model.SiteMetrics, len(siteIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, siteID := range siteIDs {
		g.Go(func() error {
			m, err := src.SiteMetrics(gctx, siteID, asOf)
			if err != nil {
				log.Warn("site metrics unavailable", zap.String("site_id", siteID), zap.Error(err))
				return nil
			}
			if len(m) == 0 {
				log.Warn("site reported no metrics", zap.String("site_id", siteID))
				return nil
			}
			mu.Lock()
			out[siteID] = m
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
