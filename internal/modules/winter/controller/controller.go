package controller

import (
	"net/http"

	"vintervej/internal/coordinator"
	"vintervej/internal/modules/winter/repository"
)

// SnapshotProvider serves the in-memory state kept by the coordinator.
type SnapshotProvider interface {
	Snapshot() coordinator.Snapshot
}

type WinterController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type winterControllerImpl struct {
	repository repository.WinterRepository
	snapshots  SnapshotProvider
}

func NewWinterController(repository repository.WinterRepository, snapshots SnapshotProvider) WinterController {
	return &winterControllerImpl{repository: repository, snapshots: snapshots}
}

func (c *winterControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/winter/summary", c.handleSummary)
	mux.HandleFunc("GET /api/v1/winter/roads", c.handleRoads)
	mux.HandleFunc("GET /api/v1/winter/history", c.handleHistory)
}
