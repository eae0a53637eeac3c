package jobs

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"inkwell/internal/logging"
	"inkwell/internal/models"
	"inkwell/internal/services"
)

// ImpressionReconcileJob moves ephemeral impression counts into the durable
// analytics rows. Counts that cannot be applied go back to the ephemeral
// counter for the next run.
type ImpressionReconcileJob struct {
	impressions *services.ImpressionService
	analytics   *services.AnalyticsService
	metrics     *services.Metrics
	limiter     *rate.Limiter
	log         *logrus.Entry
}

// ReconcileResult summarizes one run
type ReconcileResult struct {
	Applied   int64
	Restored  int64
	Lost      int64
	Discarded int64 // counts of deleted posts and categories
}

// NewImpressionReconcileJob creates a reconcile job applying at most
// ratePerSec counter updates per second
func NewImpressionReconcileJob(impressions *services.ImpressionService, analytics *services.AnalyticsService, metrics *services.Metrics, ratePerSec int) *ImpressionReconcileJob {
	if ratePerSec <= 0 {
		ratePerSec = 200
	}
	return &ImpressionReconcileJob{
		impressions: impressions,
		analytics:   analytics,
		metrics:     metrics,
		limiter:     rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:         logging.NewJobLogger("impression_reconcile"),
	}
}

// Run reconciles posts and categories
func (j *ImpressionReconcileJob) Run(ctx context.Context) error {
	_, err := j.Reconcile(ctx)
	return err
}

// Reconcile drains and applies every entity kind, reporting what happened
func (j *ImpressionReconcileJob) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var (
		total   ReconcileResult
		lastErr error
	)
	for _, kind := range []models.EntityKind{models.EntityPost, models.EntityCategory} {
		// a partial drain is still applied
		pending, err := j.impressions.Drain(ctx, kind)
		if err != nil {
			j.log.WithError(err).WithField("entity_kind", kind).Warn("drain incomplete")
			lastErr = err
		}

		result := j.apply(ctx, kind, pending)
		total.Applied += result.Applied
		total.Restored += result.Restored
		total.Lost += result.Lost
		total.Discarded += result.Discarded
	}

	j.log.WithFields(logrus.Fields{
		"applied":   total.Applied,
		"restored":  total.Restored,
		"lost":      total.Lost,
		"discarded": total.Discarded,
	}).Info("impressions reconciled")

	if lastErr != nil {
		return total, fmt.Errorf("impression reconciliation incomplete: %w", lastErr)
	}
	return total, nil
}

func (j *ImpressionReconcileJob) apply(ctx context.Context, kind models.EntityKind, pending []services.PendingImpressions) ReconcileResult {
	var result ReconcileResult
	for i, p := range pending {
		if err := j.limiter.Wait(ctx); err != nil {
			// shutting down: hand everything left back
			for _, rest := range pending[i:] {
				j.restore(ctx, rest, &result)
			}
			return result
		}

		// a cached list can keep serving a deleted entity until it expires
		exists, err := j.analytics.EntityExists(ctx, p.Ref)
		if err != nil {
			j.log.WithError(err).WithField("entity", p.Ref.String()).Warn("failed to check entity")
			j.restore(ctx, p, &result)
			continue
		}
		if !exists {
			j.log.WithField("entity", p.Ref.String()).Debug("discarding impressions of deleted entity")
			result.Discarded += p.Count
			continue
		}

		if _, err := j.analytics.IncrementBy(ctx, p.Ref, models.MetricImpressions, p.Count); err != nil {
			j.log.WithError(err).WithField("entity", p.Ref.String()).Warn("failed to apply impressions")
			j.restore(ctx, p, &result)
			continue
		}
		result.Applied += p.Count
	}

	j.metrics.RecordReconciled(string(kind), result.Applied)
	return result
}

func (j *ImpressionReconcileJob) restore(ctx context.Context, p services.PendingImpressions, result *ReconcileResult) {
	if err := j.impressions.Restore(context.WithoutCancel(ctx), p); err != nil {
		j.log.WithError(err).WithFields(logrus.Fields{
			"entity": p.Ref.String(),
			"count":  p.Count,
		}).Error("impressions lost")
		result.Lost += p.Count
		return
	}
	result.Restored += p.Count
}
