package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"inkwell/internal/apperr"
	"inkwell/internal/database"
	"inkwell/internal/models"
)

// metricColumns dispatches each metric to its storage column
var metricColumns = map[models.Metric]string{
	models.MetricViews:       "views",
	models.MetricImpressions: "impressions",
	models.MetricClicks:      "clicks",
	models.MetricLikes:       "likes",
	models.MetricShares:      "shares",
	models.MetricComments:    "comments",
}

const analyticsColumns = `entity_kind, entity_id, views, impressions, clicks, likes, shares, comments,
	click_through_rate, avg_time_on_page, updated_at`

// AnalyticsService is the durable per-entity counter store
type AnalyticsService struct {
	db      *database.DB
	metrics *Metrics
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(db *database.DB, metrics *Metrics) *AnalyticsService {
	return &AnalyticsService{
		db:      db,
		metrics: metrics,
	}
}

func validateRef(ref models.EntityRef) error {
	if !ref.Kind.Valid() {
		return apperr.Validation("unknown entity kind %q", ref.Kind)
	}
	if ref.ID == "" {
		return apperr.Validation("entity id is required")
	}
	return nil
}

func columnFor(m models.Metric) (string, error) {
	col, ok := metricColumns[m]
	if !ok {
		return "", apperr.Validation("unknown metric %s", m)
	}
	return col, nil
}

// GetOrCreate returns the record for ref, creating a zeroed one on first use
func (s *AnalyticsService) GetOrCreate(ctx context.Context, ref models.EntityRef) (*models.AnalyticsRecord, error) {
	if err := validateRef(ref); err != nil {
		return nil, err
	}

	var record *models.AnalyticsRecord
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.ensureRowTx(ctx, tx, ref); err != nil {
			return err
		}
		var err error
		record, err = s.getTx(ctx, tx, ref)
		return err
	})
	if err != nil {
		return nil, s.storeError("get_or_create", ref, err)
	}
	return record, nil
}

// Increment atomically adds one to metric and returns the updated record
func (s *AnalyticsService) Increment(ctx context.Context, ref models.EntityRef, metric models.Metric) (*models.AnalyticsRecord, error) {
	return s.IncrementBy(ctx, ref, metric, 1)
}

// IncrementBy atomically adds n to metric and returns the updated record.
// Clicks and impressions recompute the click-through rate in the same transaction.
func (s *AnalyticsService) IncrementBy(ctx context.Context, ref models.EntityRef, metric models.Metric, n int64) (*models.AnalyticsRecord, error) {
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, apperr.Validation("increment must not be negative, got %d", n)
	}

	var record *models.AnalyticsRecord
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.IncrementTx(ctx, tx, ref, metric, n); err != nil {
			return err
		}
		var err error
		record, err = s.getTx(ctx, tx, ref)
		return err
	})
	if err != nil {
		return nil, s.storeError("increment", ref, err)
	}

	s.metrics.RecordIncrement(string(ref.Kind), metric.String(), n)
	return record, nil
}

// IncrementTx adds n to metric inside the caller's transaction
func (s *AnalyticsService) IncrementTx(ctx context.Context, tx *sql.Tx, ref models.EntityRef, metric models.Metric, n int64) error {
	col, err := columnFor(metric)
	if err != nil {
		return err
	}
	if err := s.ensureRowTx(ctx, tx, ref); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	// col = col + ? takes the row lock, so concurrent increments of the same metric serialize
	query := fmt.Sprintf(`UPDATE analytics SET %s = %s + ?, updated_at = ? WHERE entity_kind = ? AND entity_id = ?`, col, col)
	if _, err := tx.ExecContext(ctx, query, n, time.Now().UTC(), string(ref.Kind), ref.ID); err != nil {
		return fmt.Errorf("failed to increment %s: %w", col, err)
	}

	if metric.AffectsCTR() {
		return s.recomputeCTRTx(ctx, tx, ref)
	}
	return nil
}

// RecomputeCommentCount sets comments to an authoritative count
func (s *AnalyticsService) RecomputeCommentCount(ctx context.Context, postID string, count int64) (*models.AnalyticsRecord, error) {
	return s.SetCount(ctx, models.PostRef(postID), models.MetricComments, count)
}

// RecomputeLikeCount sets likes to an authoritative count
func (s *AnalyticsService) RecomputeLikeCount(ctx context.Context, postID string, count int64) (*models.AnalyticsRecord, error) {
	return s.SetCount(ctx, models.PostRef(postID), models.MetricLikes, count)
}

// SetCount overwrites a counter with an exact value
func (s *AnalyticsService) SetCount(ctx context.Context, ref models.EntityRef, metric models.Metric, count int64) (*models.AnalyticsRecord, error) {
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, apperr.Validation("count must not be negative, got %d", count)
	}

	var record *models.AnalyticsRecord
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.SetCountTx(ctx, tx, ref, metric, count); err != nil {
			return err
		}
		var err error
		record, err = s.getTx(ctx, tx, ref)
		return err
	})
	if err != nil {
		return nil, s.storeError("set_count", ref, err)
	}
	return record, nil
}

// SetCountTx overwrites a counter inside the caller's transaction
func (s *AnalyticsService) SetCountTx(ctx context.Context, tx *sql.Tx, ref models.EntityRef, metric models.Metric, count int64) error {
	col, err := columnFor(metric)
	if err != nil {
		return err
	}
	if err := s.ensureRowTx(ctx, tx, ref); err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE analytics SET %s = ?, updated_at = ? WHERE entity_kind = ? AND entity_id = ?`, col)
	if _, err := tx.ExecContext(ctx, query, count, time.Now().UTC(), string(ref.Kind), ref.ID); err != nil {
		return fmt.Errorf("failed to set %s: %w", col, err)
	}

	if metric.AffectsCTR() {
		return s.recomputeCTRTx(ctx, tx, ref)
	}
	return nil
}

// SetAvgTimeOnPage stores an externally measured average time on page in seconds
func (s *AnalyticsService) SetAvgTimeOnPage(ctx context.Context, ref models.EntityRef, seconds float64) (*models.AnalyticsRecord, error) {
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	if seconds < 0 {
		return nil, apperr.Validation("avg time on page must not be negative")
	}

	var record *models.AnalyticsRecord
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.ensureRowTx(ctx, tx, ref); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE analytics SET avg_time_on_page = ?, updated_at = ? WHERE entity_kind = ? AND entity_id = ?`,
			seconds, time.Now().UTC(), string(ref.Kind), ref.ID); err != nil {
			return fmt.Errorf("failed to set avg time on page: %w", err)
		}
		var err error
		record, err = s.getTx(ctx, tx, ref)
		return err
	})
	if err != nil {
		return nil, s.storeError("set_avg_time", ref, err)
	}
	return record, nil
}

// List returns every analytics record of a kind ordered by entity id
func (s *AnalyticsService) List(ctx context.Context, kind models.EntityKind) ([]models.AnalyticsRecord, error) {
	if !kind.Valid() {
		return nil, apperr.Validation("unknown entity kind %q", kind)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+analyticsColumns+` FROM analytics WHERE entity_kind = ? ORDER BY entity_id`, string(kind))
	if err != nil {
		return nil, apperr.Transient(err, "failed to list %s analytics", kind)
	}
	defer rows.Close()

	var records []models.AnalyticsRecord
	for rows.Next() {
		record, err := scanAnalytics(rows)
		if err != nil {
			return nil, apperr.Transient(err, "failed to scan %s analytics", kind)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Transient(err, "failed to list %s analytics", kind)
	}
	return records, nil
}

var entityTables = map[models.EntityKind]string{
	models.EntityPost:     "posts",
	models.EntityCategory: "categories",
}

// EntityExists reports whether the post or category behind ref is still stored
func (s *AnalyticsService) EntityExists(ctx context.Context, ref models.EntityRef) (bool, error) {
	if err := validateRef(ref); err != nil {
		return false, err
	}

	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM `+entityTables[ref.Kind]+` WHERE id = ?`, ref.ID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Transient(err, "failed to look up %s", ref)
	}
	return true, nil
}

// GetTx reads a record inside the caller's transaction
func (s *AnalyticsService) GetTx(ctx context.Context, tx *sql.Tx, ref models.EntityRef) (*models.AnalyticsRecord, error) {
	if err := s.ensureRowTx(ctx, tx, ref); err != nil {
		return nil, err
	}
	return s.getTx(ctx, tx, ref)
}

func (s *AnalyticsService) ensureRowTx(ctx context.Context, tx *sql.Tx, ref models.EntityRef) error {
	_, err := tx.ExecContext(ctx,
		s.db.InsertIgnore()+` analytics (entity_kind, entity_id, updated_at) VALUES (?, ?, ?)`,
		string(ref.Kind), ref.ID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to create analytics row: %w", err)
	}
	return nil
}

// recomputeCTRTx runs after the counter update, so it reads post-increment values
func (s *AnalyticsService) recomputeCTRTx(ctx context.Context, tx *sql.Tx, ref models.EntityRef) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE analytics
		SET click_through_rate = CASE WHEN impressions > 0 THEN clicks * 1.0 / impressions ELSE 0 END
		WHERE entity_kind = ? AND entity_id = ?`,
		string(ref.Kind), ref.ID)
	if err != nil {
		return fmt.Errorf("failed to recompute click-through rate: %w", err)
	}
	return nil
}

func (s *AnalyticsService) getTx(ctx context.Context, tx *sql.Tx, ref models.EntityRef) (*models.AnalyticsRecord, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+analyticsColumns+` FROM analytics WHERE entity_kind = ? AND entity_id = ?`,
		string(ref.Kind), ref.ID)
	record, err := scanAnalytics(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("analytics for %s not found", ref)
	}
	return record, err
}

func scanAnalytics(row rowScanner) (*models.AnalyticsRecord, error) {
	var record models.AnalyticsRecord
	var kind string
	err := row.Scan(
		&kind,
		&record.EntityID,
		&record.Views,
		&record.Impressions,
		&record.Clicks,
		&record.Likes,
		&record.Shares,
		&record.Comments,
		&record.ClickThroughRate,
		&record.AvgTimeOnPage,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.EntityKind = models.EntityKind(kind)
	return &record, nil
}

// storeError keeps classified errors and marks everything else retryable
func (s *AnalyticsService) storeError(op string, ref models.EntityRef, err error) error {
	if apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	s.metrics.RecordCounterError(op)
	log.Printf("❌ [ANALYTICS] %s failed for %s: %v", op, ref, err)
	return apperr.Transient(err, "failed to update analytics for %s", ref)
}
