package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/HatiCode/metrial/pkg/storage"
)

// ErrInsufficientData is returned when a (source, metric) pair does not have
// enough qualifying points in the baseline window. Check with errors.Is.
var ErrInsufficientData = errors.New("insufficient data")

const (
	defaultBaselineWindow = 7 * 24 * time.Hour
	defaultMinSamples     = 5
	defaultMinQuality     = 0.5
	defaultBaselineTTL    = 5 * time.Minute
)

// BaselineConfig holds the baseline engine's tuning knobs. Zero values
// select defaults.
type BaselineConfig struct {
	// Window is how far back qualifying points are gathered. Defaults to
	// seven days.
	Window time.Duration
	// MinSamples is the minimum number of qualifying points. Defaults
	// to 5.
	MinSamples int
	// MinQuality excludes points scored below it. Defaults to 0.5.
	MinQuality float64
	// TTL bounds how long a computed baseline is served from cache before
	// being recomputed. Defaults to five minutes.
	TTL time.Duration
}

type cachedBaseline struct {
	baseline storage.Baseline
	fetched  time.Time
}

// BaselineEngine computes and caches robust reference values per
// (source, metric) pair. The reference is the median of the window's
// qualifying points, which shrugs off outliers that would drag a mean.
// Safe for concurrent use.
type BaselineEngine struct {
	store      storage.Store
	window     time.Duration
	minSamples int
	minQuality float64
	ttl        time.Duration

	mu    sync.Mutex
	cache map[storage.MetricKey]cachedBaseline

	now func() time.Time
}

// NewBaselineEngine creates a baseline engine over the given store.
func NewBaselineEngine(store storage.Store, cfg BaselineConfig) *BaselineEngine {
	if cfg.Window <= 0 {
		cfg.Window = defaultBaselineWindow
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = defaultMinSamples
	}
	if cfg.MinQuality <= 0 {
		cfg.MinQuality = defaultMinQuality
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultBaselineTTL
	}

	return &BaselineEngine{
		store:      store,
		window:     cfg.Window,
		minSamples: cfg.MinSamples,
		minQuality: cfg.MinQuality,
		ttl:        cfg.TTL,
		cache:      make(map[storage.MetricKey]cachedBaseline),
		now:        time.Now,
	}
}

// Baseline returns the pair's baseline, computing it on first use and
// whenever the cached copy has outlived the TTL.
func (e *BaselineEngine) Baseline(ctx context.Context, source, metric string) (storage.Baseline, error) {
	key := storage.MetricKey{Source: source, Name: metric}

	e.mu.Lock()
	cached, ok := e.cache[key]
	e.mu.Unlock()
	if ok && e.now().Sub(cached.fetched) < e.ttl {
		return cached.baseline, nil
	}

	return e.Refresh(ctx, source, metric)
}

// Refresh recomputes the pair's baseline from the store, bypassing the
// cache, and persists the result.
func (e *BaselineEngine) Refresh(ctx context.Context, source, metric string) (storage.Baseline, error) {
	now := e.now()

	points, err := e.store.PointsSince(ctx, source, metric, now.Add(-e.window))
	if err != nil {
		return storage.Baseline{}, fmt.Errorf("baseline points for %s/%s: %w", source, metric, err)
	}

	values := make([]float64, 0, len(points))
	qualitySum := 0.0
	for _, p := range points {
		if p.QualityScore < e.minQuality {
			continue
		}
		v, ok := p.Float()
		if !ok {
			continue
		}
		values = append(values, v)
		qualitySum += p.QualityScore
	}

	if len(values) < e.minSamples {
		return storage.Baseline{}, fmt.Errorf("baseline for %s/%s: %w: %d qualifying points, need %d",
			source, metric, ErrInsufficientData, len(values), e.minSamples)
	}

	baseline := storage.Baseline{
		Source:      source,
		MetricName:  metric,
		Value:       Median(values),
		Method:      "median",
		SampleCount: len(values),
		Confidence:  qualitySum / float64(len(values)),
		UpdatedAt:   now,
	}

	if err := e.store.PutBaseline(ctx, baseline); err != nil {
		return storage.Baseline{}, fmt.Errorf("store baseline for %s/%s: %w", source, metric, err)
	}

	e.mu.Lock()
	e.cache[storage.MetricKey{Source: source, Name: metric}] = cachedBaseline{baseline: baseline, fetched: now}
	e.mu.Unlock()

	return baseline, nil
}
