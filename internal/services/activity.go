package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/librimongo/librimongo/pkg/models"
)

type activityStore interface {
	LogActivity(ctx context.Context, record models.ActivityRecord) error
}

type eventPublisher interface {
	PublishInteraction(ctx context.Context, record models.ActivityRecord) error
}

// ActivityService is the fire-and-forget interaction pipeline: events are
// appended to the activity log and published on the event bus. Neither
// failure propagates to the caller; Record only reports whether the event
// made it into the log.
type ActivityService struct {
	store     activityStore
	publisher eventPublisher
	logger    *logrus.Logger
}

func NewActivityService(store activityStore, publisher eventPublisher, logger *logrus.Logger) *ActivityService {
	return &ActivityService{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *ActivityService) Record(ctx context.Context, record models.ActivityRecord) bool {
	logged := true
	if err := s.store.LogActivity(ctx, record); err != nil {
		logged = false
		s.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": record.UserID,
			"book_id": record.BookID,
			"type":    record.Type,
		}).Warn("Failed to write activity log entry")
	}

	if s.publisher != nil {
		if err := s.publisher.PublishInteraction(ctx, record); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"user_id": record.UserID,
				"type":    record.Type,
			}).Warn("Failed to publish interaction event")
		}
	}

	return logged
}
