// Package vejdirektoratet is a client for the Danish Road Directorate's
// public winter-maintenance feeds: the country-wide salting status document
// and the winter-network vector tile pyramid that locates road segments.
package vejdirektoratet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"vintervej/internal/geo"
	"vintervej/internal/mvt"
)

const (
	DefaultFeedBaseURL = "https://storage.googleapis.com/trafikkort-data-tiles"
	DefaultTileBaseURL = "https://tiles.trafikinfo.net/winter-network"
)

const (
	requestTimeout    = 30 * time.Second
	maxTileConcurrent = 4
	errorBodyLimit    = 200
)

// RawRecord is one entry of the winter status feed. Upstream encodes it as a
// five element tuple: [roadClass, saltedEpoch, saltingNow, condition,
// serviceLevel]. SaltedEpoch <= 0 means the salting time is unknown.
type RawRecord struct {
	RoadClass    int
	SaltedEpoch  int64
	SaltingNow   bool
	Condition    int
	ServiceLevel int
}

type Client struct {
	httpClient  *http.Client
	feedBaseURL string
	tileBaseURL string
	logger      *slog.Logger

	mu          sync.Mutex
	tileVersion int
	hasVersion  bool
}

// NewClient returns a client for the given base URLs; empty strings select
// the production endpoints. If logger is nil, slog.Default() is used.
func NewClient(feedBaseURL, tileBaseURL string, logger *slog.Logger) *Client {
	if feedBaseURL == "" {
		feedBaseURL = DefaultFeedBaseURL
	}
	if tileBaseURL == "" {
		tileBaseURL = DefaultTileBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient:  &http.Client{Timeout: requestTimeout},
		feedBaseURL: feedBaseURL,
		tileBaseURL: tileBaseURL,
		logger:      logger,
	}
}

// FetchWinterStatus fetches and parses the country-wide salting status feed.
// Malformed tuples are skipped and counted, not fatal; the feed occasionally
// carries partial entries during upstream updates.
func (c *Client) FetchWinterStatus(ctx context.Context) (map[string]RawRecord, error) {
	var raw map[string][]any
	if err := c.getJSON(ctx, c.feedBaseURL+"/winter.json", &raw); err != nil {
		return nil, fmt.Errorf("winter status: %w", err)
	}

	records := make(map[string]RawRecord, len(raw))
	skipped := 0
	for id, tuple := range raw {
		rec, err := parseRecord(tuple)
		if err != nil {
			skipped++
			c.logger.Debug("skipping malformed winter status record", "feature_id", id, "error", err)
			continue
		}
		records[id] = rec
	}
	if skipped > 0 {
		c.logger.Warn("skipped malformed winter status records", "count", skipped, "total", len(raw))
	}
	return records, nil
}

// FetchTileVersion fetches the current version of the tile pyramid from the
// network metadata document.
func (c *Client) FetchTileVersion(ctx context.Context) (int, error) {
	var meta struct {
		Version *int `json:"version"`
	}
	if err := c.getJSON(ctx, c.feedBaseURL+"/winter-network-metadata.json", &meta); err != nil {
		return 0, fmt.Errorf("tile metadata: %w", err)
	}
	if meta.Version == nil {
		return 0, fmt.Errorf("tile metadata: missing version")
	}
	return *meta.Version, nil
}

// FetchTileFeatureIDs fetches one vector tile and returns the feature IDs it
// contains. The tile version is resolved lazily and cached; a fetch failure
// drops the cached version so a pyramid rollover is picked up on retry.
func (c *Client) FetchTileFeatureIDs(ctx context.Context, zoom, x, y int) ([]string, error) {
	version, err := c.cachedTileVersion(ctx)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v%d/%d/%d/%d.pbf", c.tileBaseURL, version, zoom, x, y)
	body, err := c.get(ctx, url)
	if err != nil {
		c.invalidateTileVersion()
		return nil, fmt.Errorf("tile %d/%d/%d: %w", zoom, x, y, err)
	}

	ids, err := mvt.ExtractFeatureIDs(body)
	if err != nil {
		return nil, fmt.Errorf("tile %d/%d/%d: %w", zoom, x, y, err)
	}
	return ids, nil
}

// NearbyFeatureIDs returns the union of feature IDs in the tile neighborhood
// around a location. Individual tile failures are logged and tolerated; the
// call fails only when the tile version cannot be resolved or every tile
// fails.
func (c *Client) NearbyFeatureIDs(ctx context.Context, lat, lon float64, zoom, radius int) (map[string]struct{}, error) {
	if _, err := c.cachedTileVersion(ctx); err != nil {
		return nil, fmt.Errorf("resolve tile version: %w", err)
	}

	tiles := geo.TileNeighborhood(lat, lon, zoom, radius)

	var (
		mu       sync.Mutex
		ids      = make(map[string]struct{})
		failures int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxTileConcurrent)
	for _, tile := range tiles {
		g.Go(func() error {
			tileIDs, err := c.FetchTileFeatureIDs(gctx, tile.Zoom, tile.X, tile.Y)
			if err != nil {
				c.logger.Warn("tile fetch failed",
					"zoom", tile.Zoom,
					"x", tile.X,
					"y", tile.Y,
					"error", err,
				)
				mu.Lock()
				failures++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			for _, id := range tileIDs {
				ids[id] = struct{}{}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failures == len(tiles) {
		return nil, fmt.Errorf("all %d tiles failed", len(tiles))
	}
	return ids, nil
}

func (c *Client) cachedTileVersion(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasVersion {
		return c.tileVersion, nil
	}
	version, err := c.FetchTileVersion(ctx)
	if err != nil {
		return 0, err
	}
	c.tileVersion = version
	c.hasVersion = true
	c.logger.Debug("resolved tile version", "version", version)
	return version, nil
}

func (c *Client) invalidateTileVersion() {
	c.mu.Lock()
	c.hasVersion = false
	c.mu.Unlock()
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	body, err := c.get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", url, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Error("close response body", "url", url, "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, truncate(body, errorBodyLimit))
	}
	return body, nil
}

func parseRecord(tuple []any) (RawRecord, error) {
	if len(tuple) < 5 {
		return RawRecord{}, fmt.Errorf("want 5 elements, got %d", len(tuple))
	}
	roadClass, err := asInt(tuple[0])
	if err != nil {
		return RawRecord{}, fmt.Errorf("road class: %w", err)
	}
	saltedEpoch, err := asInt64(tuple[1])
	if err != nil {
		return RawRecord{}, fmt.Errorf("salted epoch: %w", err)
	}
	saltingNow, err := asBool(tuple[2])
	if err != nil {
		return RawRecord{}, fmt.Errorf("salting now: %w", err)
	}
	condition, err := asInt(tuple[3])
	if err != nil {
		return RawRecord{}, fmt.Errorf("condition: %w", err)
	}
	serviceLevel, err := asInt(tuple[4])
	if err != nil {
		return RawRecord{}, fmt.Errorf("service level: %w", err)
	}
	return RawRecord{
		RoadClass:    roadClass,
		SaltedEpoch:  saltedEpoch,
		SaltingNow:   saltingNow,
		Condition:    condition,
		ServiceLevel: serviceLevel,
	}, nil
}

func asInt(v any) (int, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("not a number: %v (%T)", v, v)
	}
	return int(f), nil
}

func asInt64(v any) (int64, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("not a number: %v (%T)", v, v)
	}
	return int64(f), nil
}

// asBool accepts JSON booleans and numbers; the feed has served both over
// time.
func asBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case float64:
		return t != 0, nil
	default:
		return false, fmt.Errorf("not a bool or number: %v (%T)", v, v)
	}
}

func truncate(body []byte, limit int) string {
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
