package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"inkwell/internal/apperr"
	"inkwell/internal/database"
	"inkwell/internal/logging"
	"inkwell/internal/models"
	"inkwell/internal/services"
)

// AnalyticsSnapshotJob archives a daily copy of every analytics record in
// MongoDB. Re-running on the same day overwrites that day's snapshot.
type AnalyticsSnapshotJob struct {
	mongoDB   *database.MongoDB
	analytics *services.AnalyticsService
	now       func() time.Time
	log       *logrus.Entry
}

// NewAnalyticsSnapshotJob creates a new snapshot job
func NewAnalyticsSnapshotJob(mongoDB *database.MongoDB, analytics *services.AnalyticsService) *AnalyticsSnapshotJob {
	return &AnalyticsSnapshotJob{
		mongoDB:   mongoDB,
		analytics: analytics,
		now:       time.Now,
		log:       logging.NewJobLogger("analytics_snapshot"),
	}
}

// Run snapshots posts and categories
func (j *AnalyticsSnapshotJob) Run(ctx context.Context) error {
	takenAt := j.now().UTC()
	collection := j.mongoDB.Collection(database.CollectionAnalyticsSnapshots)

	total := 0
	for _, kind := range []models.EntityKind{models.EntityPost, models.EntityCategory} {
		records, err := j.analytics.List(ctx, kind)
		if err != nil {
			return fmt.Errorf("failed to list %s analytics: %w", kind, err)
		}
		if len(records) == 0 {
			continue
		}

		writes := make([]mongo.WriteModel, 0, len(records))
		for _, r := range records {
			snapshot := models.NewAnalyticsSnapshot(r, takenAt)
			writes = append(writes, mongo.NewUpdateOneModel().
				SetFilter(bson.M{
					"entityKind": snapshot.EntityKind,
					"entityId":   snapshot.EntityID,
					"day":        snapshot.Day,
				}).
				SetUpdate(bson.M{"$set": snapshot}).
				SetUpsert(true))
		}

		if _, err := collection.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
			return fmt.Errorf("failed to write %s snapshots: %w", kind, err)
		}
		total += len(writes)
	}

	j.log.WithFields(logrus.Fields{
		"day":       takenAt.Format(time.DateOnly),
		"snapshots": total,
	}).Info("analytics snapshot written")
	return nil
}

// History returns the archived snapshots of ref, newest day first
func (j *AnalyticsSnapshotJob) History(ctx context.Context, ref models.EntityRef, limit int64) ([]models.AnalyticsSnapshot, error) {
	cursor, err := j.mongoDB.Collection(database.CollectionAnalyticsSnapshots).Find(ctx,
		bson.M{"entityKind": ref.Kind, "entityId": ref.ID},
		options.Find().SetSort(bson.D{{Key: "day", Value: -1}}).SetLimit(limit))
	if err != nil {
		return nil, apperr.Transient(err, "failed to query snapshots of %s", ref)
	}
	defer cursor.Close(ctx)

	var snapshots []models.AnalyticsSnapshot
	if err := cursor.All(ctx, &snapshots); err != nil {
		return nil, apperr.Transient(err, "failed to decode snapshots of %s", ref)
	}
	return snapshots, nil
}
