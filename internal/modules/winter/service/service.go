// Package service persists refresh results and forwards them to MQTT. It is
// the sink between the coordinator and the repository/publisher pair.
package service

import (
	"log/slog"

	"vintervej/internal/modules/winter/repository"
	"vintervej/internal/modules/winter/types"
)

// Publisher is the MQTT surface the service needs. A nil publisher disables
// publishing.
type Publisher interface {
	PublishState(sum types.Summary) error
	PublishAvailability(online bool) error
	IsConnected() bool
}

type Service struct {
	repository repository.WinterRepository
	publisher  Publisher
	logger     *slog.Logger
}

func NewService(repository repository.WinterRepository, publisher Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repository: repository, publisher: publisher, logger: logger}
}

// RefreshSucceeded stores the summary and road states, then publishes the
// new state. Persistence errors are logged and do not block publishing.
func (s *Service) RefreshSucceeded(sum types.Summary, segments []types.RoadSegment) {
	if err := s.repository.InsertSummary(sum); err != nil {
		s.logger.Error("failed to store summary", "error", err)
	}
	if err := s.repository.ReplaceRoadStates(segments, sum.FetchedAt); err != nil {
		s.logger.Error("failed to store road states", "error", err)
	}

	if s.publisher == nil {
		return
	}
	if !s.publisher.IsConnected() {
		s.logger.Debug("mqtt not connected, skipping state publish")
		return
	}
	if err := s.publisher.PublishAvailability(true); err != nil {
		s.logger.Error("failed to publish availability", "error", err)
	}
	if err := s.publisher.PublishState(sum); err != nil {
		s.logger.Error("failed to publish state", "error", err)
	}
}

// RefreshFailed marks the device unavailable so Home Assistant shows the
// sensors as such instead of serving stale numbers.
func (s *Service) RefreshFailed(err error) {
	if s.publisher == nil || !s.publisher.IsConnected() {
		return
	}
	if pubErr := s.publisher.PublishAvailability(false); pubErr != nil {
		s.logger.Error("failed to publish availability", "refresh_error", err, "error", pubErr)
	}
}
