// Package coordinator periodically pulls the winter status feed, filters it
// to the roads around the configured location and keeps the latest result
// available as an in-memory snapshot.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"vintervej/internal/modules/winter/types"
	"vintervej/internal/vejdirektoratet"
)

const (
	DefaultZoom     = 12
	DefaultRadius   = 1
	DefaultInterval = 30 * time.Minute
)

// Source is the upstream data dependency, implemented by
// vejdirektoratet.Client.
type Source interface {
	FetchWinterStatus(ctx context.Context) (map[string]vejdirektoratet.RawRecord, error)
	NearbyFeatureIDs(ctx context.Context, lat, lon float64, zoom, radius int) (map[string]struct{}, error)
}

// Sink receives the outcome of every refresh. A nil sink is allowed.
type Sink interface {
	RefreshSucceeded(sum types.Summary, segments []types.RoadSegment)
	RefreshFailed(err error)
}

type Options struct {
	Latitude   float64
	Longitude  float64
	Zoom       int
	TileRadius int
	Interval   time.Duration
}

// Snapshot is the last known state. After a failed refresh Err is set while
// Summary and Roads keep the last successful data, so consumers can serve
// stale results and flag them.
type Snapshot struct {
	Summary   *types.Summary
	Roads     []types.RoadSegment
	Err       error
	UpdatedAt time.Time
}

type Coordinator struct {
	source Source
	sink   Sink
	opts   Options
	logger *slog.Logger

	mu   sync.RWMutex
	snap Snapshot
}

func New(source Source, sink Sink, opts Options, logger *slog.Logger) *Coordinator {
	if opts.Zoom <= 0 {
		opts.Zoom = DefaultZoom
	}
	if opts.TileRadius < 0 {
		opts.TileRadius = DefaultRadius
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		source: source,
		sink:   sink,
		opts:   opts,
		logger: logger,
	}
}

// Run refreshes immediately, then on every interval tick until the context
// is canceled. Refresh errors are logged and do not stop the loop.
func (c *Coordinator) Run(ctx context.Context) {
	c.logger.Info("starting winter status refresh loop",
		"interval", c.opts.Interval,
		"latitude", c.opts.Latitude,
		"longitude", c.opts.Longitude,
		"zoom", c.opts.Zoom,
		"tile_radius", c.opts.TileRadius,
	)

	_ = c.Refresh(ctx)

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("winter status refresh loop stopped")
			return
		case <-ticker.C:
			_ = c.Refresh(ctx)
		}
	}
}

// Refresh performs one fetch-filter-summarize pass and updates the snapshot.
func (c *Coordinator) Refresh(ctx context.Context) error {
	started := time.Now()

	records, err := c.source.FetchWinterStatus(ctx)
	if err != nil {
		return c.fail(fmt.Errorf("fetch winter status: %w", err))
	}

	nearby, err := c.source.NearbyFeatureIDs(ctx, c.opts.Latitude, c.opts.Longitude, c.opts.Zoom, c.opts.TileRadius)
	if err != nil {
		return c.fail(fmt.Errorf("locate nearby roads: %w", err))
	}

	var segments []types.RoadSegment
	if len(nearby) == 0 {
		c.logger.Warn("no roads found around location",
			"latitude", c.opts.Latitude,
			"longitude", c.opts.Longitude,
		)
	} else {
		segments = buildSegments(records, nearby, started)
	}

	sum := types.Summarize(segments)
	sum.Latitude = c.opts.Latitude
	sum.Longitude = c.opts.Longitude
	sum.FetchedAt = started

	c.mu.Lock()
	c.snap = Snapshot{Summary: &sum, Roads: segments, UpdatedAt: started}
	c.mu.Unlock()

	c.logger.Info("winter status refreshed",
		"total_roads", sum.TotalRoads,
		"overall_status", sum.OverallStatus,
		"duration", time.Since(started),
	)

	if c.sink != nil {
		c.sink.RefreshSucceeded(sum, segments)
	}
	return nil
}

// Snapshot returns a copy of the current state. The Roads slice is shared
// and must not be mutated by callers.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

func (c *Coordinator) fail(err error) error {
	c.mu.Lock()
	c.snap.Err = err
	c.snap.UpdatedAt = time.Now()
	c.mu.Unlock()

	c.logger.Error("winter status refresh failed", "error", err)
	if c.sink != nil {
		c.sink.RefreshFailed(err)
	}
	return err
}

// buildSegments keeps the records that are both inside the tile neighborhood
// and carry a displayed road class, classified against the refresh time.
func buildSegments(records map[string]vejdirektoratet.RawRecord, nearby map[string]struct{}, now time.Time) []types.RoadSegment {
	segments := make([]types.RoadSegment, 0, len(nearby))
	for id, rec := range records {
		if _, ok := nearby[id]; !ok {
			continue
		}
		if !types.ValidRoadClass(rec.RoadClass) {
			continue
		}
		seg := types.RoadSegment{
			FeatureID:    id,
			RoadClass:    rec.RoadClass,
			SaltingNow:   rec.SaltingNow,
			Condition:    rec.Condition,
			ServiceLevel: rec.ServiceLevel,
			Status:       types.Classify(rec.SaltedEpoch, rec.SaltingNow, now),
		}
		if rec.SaltedEpoch > 0 {
			t := time.Unix(rec.SaltedEpoch, 0).UTC()
			seg.SaltedAt = &t
		}
		segments = append(segments, seg)
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].FeatureID < segments[j].FeatureID })
	return segments
}
