package controller

import (
	"net/http"
	"time"

	"vintervej/internal/modules/winter/types"
	"vintervej/internal/utils"
)

// summaryResponse wraps a summary with a staleness flag: stale is true when
// the data comes from a previous run or the last refresh failed.
type summaryResponse struct {
	types.Summary
	OverallLabel string    `json:"overallLabel"`
	Stale        bool      `json:"stale"`
	Error        string    `json:"error,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func newSummaryResponse(sum types.Summary, stale bool, refreshErr error, updatedAt time.Time) summaryResponse {
	resp := summaryResponse{
		Summary:      sum,
		OverallLabel: sum.OverallStatus.Label(),
		Stale:        stale,
		UpdatedAt:    updatedAt,
	}
	if refreshErr != nil {
		resp.Error = refreshErr.Error()
	}
	return resp
}

func (c *winterControllerImpl) handleSummary(w http.ResponseWriter, r *http.Request) {
	snap := c.snapshots.Snapshot()
	if snap.Summary != nil {
		utils.WriteJSON(w, http.StatusOK, newSummaryResponse(*snap.Summary, snap.Err != nil, snap.Err, snap.UpdatedAt))
		return
	}

	// Nothing in memory yet; fall back to the last persisted summary.
	latest, err := c.repository.GetLatestSummary()
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if latest == nil {
		utils.WriteError(w, http.StatusServiceUnavailable, "no winter status available yet")
		return
	}
	utils.WriteJSON(w, http.StatusOK, newSummaryResponse(*latest, true, nil, latest.FetchedAt))
}

func (c *winterControllerImpl) handleRoads(w http.ResponseWriter, r *http.Request) {
	status, hasStatus, limit, err := parseRoadsQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var segments []types.RoadSegment
	if hasStatus {
		segments, err = c.repository.GetRoadStatesByStatus(status, limit)
	} else {
		segments, err = c.repository.GetRoadStates(limit)
	}
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, segments)
}

func (c *winterControllerImpl) handleHistory(w http.ResponseWriter, r *http.Request) {
	from, to, limit, offset, err := parseHistoryQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	count, err := c.repository.GetSummariesCount(from, to)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	summaries, err := c.repository.GetSummaries(from, to, limit, offset)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"summaries": summaries,
		"total":     count,
		"limit":     limit,
		"offset":    offset,
	})
}
