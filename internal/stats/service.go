package stats

import (
	"context"
	"fmt"

	"trustguard-client/internal/models"

	"github.com/sirupsen/logrus"
)

// Source is the slice of the backend the admin view reads from.
type Source interface {
	ListFeedback(ctx context.Context) ([]models.FeedbackEntry, error)
	GetUserAnalytics(ctx context.Context, userID string) (*models.UserAnalytics, error)
	ListBlockedAds(ctx context.Context) ([]string, error)
}

// Mirror receives the backend's block list on each load.
type Mirror interface {
	Seed(titles []string)
}

type Service struct {
	source Source
	mirror Mirror
	logger *logrus.Logger
}

func NewService(source Source, mirror Mirror, logger *logrus.Logger) *Service {
	return &Service{source: source, mirror: mirror, logger: logger}
}

// Dashboard pulls the full feedback history and per-user analytics, runs
// the aggregation, and refreshes the block-list mirror.
func (s *Service) Dashboard(ctx context.Context) (*Report, []string, error) {
	entries, err := s.source.ListFeedback(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load feedback history: %w", err)
	}

	// One analytics snapshot per user that appears in the history, in
	// first-seen order. A failed per-user fetch is logged and skipped so
	// one bad user cannot empty the whole view.
	seen := make(map[string]bool)
	var analytics []models.UserAnalytics
	for _, entry := range entries {
		if seen[entry.UserID] {
			continue
		}
		seen[entry.UserID] = true

		a, err := s.source.GetUserAnalytics(ctx, entry.UserID)
		if err != nil {
			s.logger.WithError(err).WithField("user_id", entry.UserID).Warn("Failed to fetch user analytics")
			continue
		}
		analytics = append(analytics, *a)
	}

	blocked, err := s.source.ListBlockedAds(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to fetch blocked ads")
		blocked = nil
	} else {
		s.mirror.Seed(blocked)
	}

	report := Aggregate(entries, analytics)

	s.logger.WithFields(logrus.Fields{
		"interactions": report.TotalInteractions,
		"users":        report.TotalUsers,
		"blocked_ads":  len(blocked),
	}).Info("Built admin dashboard report")

	return &report, blocked, nil
}
