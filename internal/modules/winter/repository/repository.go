package repository

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"vintervej/internal/modules/winter/types"
)

//go:embed sql/insert-summary.sql
var insertSummarySQL string

//go:embed sql/get-latest-summary.sql
var getLatestSummarySQL string

//go:embed sql/get-summaries.sql
var getSummariesSQL string

//go:embed sql/get-summaries-count.sql
var getSummariesCountSQL string

//go:embed sql/delete-road-states.sql
var deleteRoadStatesSQL string

//go:embed sql/insert-road-state.sql
var insertRoadStateSQL string

//go:embed sql/get-road-states.sql
var getRoadStatesSQL string

//go:embed sql/get-road-states-by-status.sql
var getRoadStatesByStatusSQL string

type WinterRepository interface {
	InsertSummary(sum types.Summary) error
	GetLatestSummary() (*types.Summary, error)
	GetSummaries(from time.Time, to time.Time, limit int, offset int) ([]types.Summary, error)
	GetSummariesCount(from time.Time, to time.Time) (int, error)
	ReplaceRoadStates(segments []types.RoadSegment, updatedAt time.Time) error
	GetRoadStates(limit int) ([]types.RoadSegment, error)
	GetRoadStatesByStatus(status types.SaltingStatus, limit int) ([]types.RoadSegment, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) WinterRepository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) InsertSummary(sum types.Summary) error {
	fetchedStr := sum.FetchedAt.UTC().Format(time.RFC3339Nano)
	_, err := r.db.Exec(insertSummarySQL,
		fetchedStr, string(sum.OverallStatus), sum.TotalRoads,
		sum.SaltingNow, sum.LessThan12h, sum.Between12h48h, sum.MoreThan48h, sum.Unknown,
		sum.Latitude, sum.Longitude,
	)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

// GetLatestSummary returns the newest stored summary, or nil when nothing
// has been stored yet.
func (r *repositoryImpl) GetLatestSummary() (*types.Summary, error) {
	rows, err := r.db.Query(getLatestSummarySQL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close latest summary rows", "error", err)
		}
	}()
	out, err := scanSummaries(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

func (r *repositoryImpl) GetSummaries(from time.Time, to time.Time, limit int, offset int) ([]types.Summary, error) {
	fromStr := from.UTC().Format(time.RFC3339Nano)
	toStr := to.UTC().Format(time.RFC3339Nano)
	rows, err := r.db.Query(getSummariesSQL, fromStr, toStr, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close summaries rows", "error", err)
		}
	}()
	return scanSummaries(rows)
}

func (r *repositoryImpl) GetSummariesCount(from time.Time, to time.Time) (int, error) {
	fromStr := from.UTC().Format(time.RFC3339Nano)
	toStr := to.UTC().Format(time.RFC3339Nano)
	var n int
	err := r.db.QueryRow(getSummariesCountSQL, fromStr, toStr).Scan(&n)
	return n, err
}

// ReplaceRoadStates swaps the road_states table for the given segments in a
// single transaction, so readers never observe a partially updated scan.
func (r *repositoryImpl) ReplaceRoadStates(segments []types.RoadSegment, updatedAt time.Time) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec(deleteRoadStatesSQL); err != nil {
		return fmt.Errorf("clear road states: %w", err)
	}

	stmt, err := tx.Prepare(insertRoadStateSQL)
	if err != nil {
		return fmt.Errorf("prepare road state insert: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			slog.Error("close road state stmt", "error", err)
		}
	}()

	updatedStr := updatedAt.UTC().Format(time.RFC3339Nano)
	for _, seg := range segments {
		var saltedAt interface{}
		if seg.SaltedAt != nil {
			saltedAt = seg.SaltedAt.UTC().Format(time.RFC3339Nano)
		}
		_, err := stmt.Exec(
			seg.FeatureID, seg.RoadClass, saltedAt, seg.SaltingNow,
			seg.Condition, seg.ServiceLevel, string(seg.Status), updatedStr,
		)
		if err != nil {
			return fmt.Errorf("insert road state %s: %w", seg.FeatureID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *repositoryImpl) GetRoadStates(limit int) ([]types.RoadSegment, error) {
	// LIMIT -1 in SQLite means no limit.
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(getRoadStatesSQL, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close road states rows", "error", err)
		}
	}()
	return scanRoadStates(rows)
}

func (r *repositoryImpl) GetRoadStatesByStatus(status types.SaltingStatus, limit int) ([]types.RoadSegment, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(getRoadStatesByStatusSQL, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close road states rows", "error", err)
		}
	}()
	return scanRoadStates(rows)
}

func scanSummaries(rows *sql.Rows) ([]types.Summary, error) {
	var out []types.Summary
	for rows.Next() {
		var sum types.Summary
		var fetched, overall string
		err := rows.Scan(
			&fetched, &overall, &sum.TotalRoads,
			&sum.SaltingNow, &sum.LessThan12h, &sum.Between12h48h, &sum.MoreThan48h, &sum.Unknown,
			&sum.Latitude, &sum.Longitude,
		)
		if err != nil {
			return nil, err
		}
		t, err := parseTimestamp(fetched)
		if err != nil {
			return nil, err
		}
		sum.FetchedAt = t
		sum.OverallStatus = types.SaltingStatus(overall)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func scanRoadStates(rows *sql.Rows) ([]types.RoadSegment, error) {
	var out []types.RoadSegment
	for rows.Next() {
		var seg types.RoadSegment
		var salted sql.NullString
		var status string
		err := rows.Scan(
			&seg.FeatureID, &seg.RoadClass, &salted, &seg.SaltingNow,
			&seg.Condition, &seg.ServiceLevel, &status,
		)
		if err != nil {
			return nil, err
		}
		if salted.Valid {
			t, err := parseTimestamp(salted.String)
			if err != nil {
				return nil, err
			}
			seg.SaltedAt = &t
		}
		seg.Status = types.SaltingStatus(status)
		out = append(out, seg)
	}
	return out, rows.Err()
}

func parseTimestamp(ts string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		var err2 error
		t, err2 = time.Parse(time.RFC3339, ts)
		if err2 != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: RFC3339Nano: %w; RFC3339: %w", ts, err, err2)
		}
	}
	return t, nil
}
