package winter

import (
	"database/sql"
	"net/http"

	"vintervej/internal/modules/winter/controller"
	"vintervej/internal/modules/winter/repository"
)

func RegisterFeature(mux *http.ServeMux, db *sql.DB, snapshots controller.SnapshotProvider) {
	winterRepository := repository.NewRepository(db)
	winterController := controller.NewWinterController(winterRepository, snapshots)
	winterController.RegisterRoutes(mux)
}
