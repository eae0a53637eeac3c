package models

import (
	"fmt"
	"time"
)

// EntityKind identifies which kind of entity an analytics record belongs to
type EntityKind string

const (
	EntityPost     EntityKind = "post"
	EntityCategory EntityKind = "category"
)

// Valid reports whether the kind is trackable
func (k EntityKind) Valid() bool {
	return k == EntityPost || k == EntityCategory
}

// EntityRef points at a trackable entity
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
}

// PostRef is shorthand for EntityRef{EntityPost, id}
func PostRef(id string) EntityRef {
	return EntityRef{Kind: EntityPost, ID: id}
}

// CategoryRef is shorthand for EntityRef{EntityCategory, id}
func CategoryRef(id string) EntityRef {
	return EntityRef{Kind: EntityCategory, ID: id}
}

func (r EntityRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// Metric is the closed set of engagement counters
type Metric int

const (
	MetricViews Metric = iota + 1
	MetricImpressions
	MetricClicks
	MetricLikes
	MetricShares
	MetricComments
)

var metricNames = map[Metric]string{
	MetricViews:       "views",
	MetricImpressions: "impressions",
	MetricClicks:      "clicks",
	MetricLikes:       "likes",
	MetricShares:      "shares",
	MetricComments:    "comments",
}

// String returns the metric name, which is also its storage column
func (m Metric) String() string {
	if name, ok := metricNames[m]; ok {
		return name
	}
	return fmt.Sprintf("metric(%d)", int(m))
}

// Valid reports whether m is one of the declared metrics
func (m Metric) Valid() bool {
	_, ok := metricNames[m]
	return ok
}

// AffectsCTR reports whether mutating m requires recomputing the click-through rate
func (m Metric) AffectsCTR() bool {
	return m == MetricClicks || m == MetricImpressions
}

// AnalyticsRecord holds the durable engagement counters of one entity
type AnalyticsRecord struct {
	EntityKind       EntityKind `json:"entity_kind"`
	EntityID         string     `json:"entity_id"`
	Views            int64      `json:"views"`
	Impressions      int64      `json:"impressions"`
	Clicks           int64      `json:"clicks"`
	Likes            int64      `json:"likes"`
	Shares           int64      `json:"shares"`
	Comments         int64      `json:"comments"`
	ClickThroughRate float64    `json:"click_through_rate"`
	AvgTimeOnPage    float64    `json:"avg_time_on_page"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Get returns the value of a counter
func (a *AnalyticsRecord) Get(m Metric) int64 {
	switch m {
	case MetricViews:
		return a.Views
	case MetricImpressions:
		return a.Impressions
	case MetricClicks:
		return a.Clicks
	case MetricLikes:
		return a.Likes
	case MetricShares:
		return a.Shares
	case MetricComments:
		return a.Comments
	}
	return 0
}

// ClickThroughRate computes clicks/impressions, 0 when there are no impressions
func ClickThroughRate(clicks, impressions int64) float64 {
	if impressions <= 0 {
		return 0
	}
	return float64(clicks) / float64(impressions)
}

// AnalyticsSnapshot is one day's copy of an analytics record in the archive
type AnalyticsSnapshot struct {
	EntityKind       EntityKind `bson:"entityKind" json:"entity_kind"`
	EntityID         string     `bson:"entityId" json:"entity_id"`
	Day              string     `bson:"day" json:"day"` // YYYY-MM-DD, UTC
	Views            int64      `bson:"views" json:"views"`
	Impressions      int64      `bson:"impressions" json:"impressions"`
	Clicks           int64      `bson:"clicks" json:"clicks"`
	Likes            int64      `bson:"likes" json:"likes"`
	Shares           int64      `bson:"shares" json:"shares"`
	Comments         int64      `bson:"comments" json:"comments"`
	ClickThroughRate float64    `bson:"clickThroughRate" json:"click_through_rate"`
	AvgTimeOnPage    float64    `bson:"avgTimeOnPage" json:"avg_time_on_page"`
	TakenAt          time.Time  `bson:"takenAt" json:"taken_at"`
}

// NewAnalyticsSnapshot copies r into a snapshot for the UTC day of at
func NewAnalyticsSnapshot(r AnalyticsRecord, at time.Time) AnalyticsSnapshot {
	at = at.UTC()
	return AnalyticsSnapshot{
		EntityKind:       r.EntityKind,
		EntityID:         r.EntityID,
		Day:              at.Format(time.DateOnly),
		Views:            r.Views,
		Impressions:      r.Impressions,
		Clicks:           r.Clicks,
		Likes:            r.Likes,
		Shares:           r.Shares,
		Comments:         r.Comments,
		ClickThroughRate: r.ClickThroughRate,
		AvgTimeOnPage:    r.AvgTimeOnPage,
		TakenAt:          at,
	}
}
