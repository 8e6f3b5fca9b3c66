// Package analytics computes the full tenant dashboard in a single
// database round trip. No ticket row is ever iterated in application code;
// every aggregate is computed by Postgres against the stats index.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ticketsync/backend/internal/telemetry"
)

// atRiskThreshold is the minimum count of high-urgency tickets in the
// window for a customer to be flagged at-risk.
const atRiskThreshold = 3

// topKeywordLimit bounds how many tokens are returned in top_keywords.
const topKeywordLimit = 10

var stopwords = []string{
	"the", "a", "an", "and", "or", "but", "is", "are", "was", "were", "to",
	"of", "in", "on", "for", "with", "this", "that", "it", "my", "i", "we",
	"you", "your", "me", "please", "have", "has", "be", "not", "can", "at",
}

// StatusCount is one entry of the by_status breakdown.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// HourBucket is one entry of the trailing-24h hourly trend.
type HourBucket struct {
	Hour  time.Time `json:"hour"`
	Count int64     `json:"count"`
}

// Keyword is one entry of top_keywords.
type Keyword struct {
	Token string `json:"token"`
	Count int64  `json:"count"`
}

// AtRiskCustomer is one customer with at least atRiskThreshold high-urgency
// tickets in the window.
type AtRiskCustomer struct {
	CustomerID      string `json:"customer_id"`
	HighUrgencyCount int64 `json:"high_urgency_count"`
}

// Dashboard is the full set of tenant analytics for one window.
type Dashboard struct {
	TotalTickets            int64
	ByStatus                []StatusCount
	UrgencyHighRatio        float64
	NegativeSentimentRatio  float64
	HourlyTrend             []HourBucket
	TopKeywords             []Keyword
	AtRiskCustomers         []AtRiskCustomer
}

// Engine runs the dashboard pipeline against the pool directly; it never
// needs transactional isolation since it only reads.
type Engine struct {
	pool *pgxpool.Pool
}

// New creates an analytics Engine.
func New(pool *pgxpool.Pool) *Engine {
	return &Engine{pool: pool}
}

// Window bounds the analytics query; a zero value on either end means
// "unbounded" on that side.
type Window struct {
	From time.Time
	To   time.Time
}

// Dashboard computes the full set of dashboard metrics for tenantID within
// window in one round trip. Empty result sets return zeros, not errors.
func (e *Engine) Dashboard(ctx context.Context, tenantID string, window Window) (Dashboard, error) {
	start := time.Now()
	defer func() {
		telemetry.AnalyticsQueryDuration.Observe(time.Since(start).Seconds())
	}()

	from := window.From
	if from.IsZero() {
		from = time.Unix(0, 0)
	}
	to := window.To
	if to.IsZero() {
		to = time.Now().Add(24 * time.Hour)
	}

	row := e.pool.QueryRow(ctx, dashboardQuery, tenantID, from, to, atRiskThreshold, topKeywordLimit, stopwords)

	var (
		total             int64
		byStatusRaw       []byte
		urgencyHighCount  int64
		negativeCount     int64
		hourlyRaw         []byte
		topKeywordsRaw    []byte
		atRiskRaw         []byte
	)

	if err := row.Scan(&total, &byStatusRaw, &urgencyHighCount, &negativeCount, &hourlyRaw, &topKeywordsRaw, &atRiskRaw); err != nil {
		return Dashboard{}, fmt.Errorf("running dashboard pipeline: %w", err)
	}

	d := Dashboard{TotalTickets: total}

	if err := json.Unmarshal(byStatusRaw, &d.ByStatus); err != nil {
		return Dashboard{}, fmt.Errorf("decoding by_status: %w", err)
	}
	if err := json.Unmarshal(hourlyRaw, &d.HourlyTrend); err != nil {
		return Dashboard{}, fmt.Errorf("decoding hourly_trend: %w", err)
	}
	if err := json.Unmarshal(topKeywordsRaw, &d.TopKeywords); err != nil {
		return Dashboard{}, fmt.Errorf("decoding top_keywords: %w", err)
	}
	if err := json.Unmarshal(atRiskRaw, &d.AtRiskCustomers); err != nil {
		return Dashboard{}, fmt.Errorf("decoding at_risk_customers: %w", err)
	}

	if total > 0 {
		d.UrgencyHighRatio = float64(urgencyHighCount) / float64(total)
		d.NegativeSentimentRatio = float64(negativeCount) / float64(total)
	}

	return d, nil
}

// dashboardQuery computes every facet in one pass over the matched rows.
// scoped is materialized once in a CTE; every facet reads from it instead
// of re-scanning tickets, keeping this a single round trip regardless of
// how many facets are requested.
const dashboardQuery = `
WITH scoped AS (
    SELECT *
    FROM tickets
    WHERE tenant_id = $1 AND deleted_at IS NULL AND created_at >= $2 AND created_at < $3
),
status_breakdown AS (
    SELECT coalesce(jsonb_agg(jsonb_build_object('status', status, 'count', cnt)), '[]'::jsonb) AS j
    FROM (SELECT status, count(*) AS cnt FROM scoped GROUP BY status) s
),
hourly AS (
    SELECT coalesce(jsonb_agg(jsonb_build_object('hour', hour, 'count', cnt) ORDER BY hour), '[]'::jsonb) AS j
    FROM (
        SELECT date_trunc('hour', created_at) AS hour, count(*) AS cnt
        FROM scoped
        WHERE created_at >= now() - interval '24 hours'
        GROUP BY 1
    ) h
),
tokens AS (
    SELECT lower(regexp_split_to_table(subject || ' ' || message, '\W+')) AS token
    FROM scoped
),
top_keywords AS (
    SELECT coalesce(jsonb_agg(jsonb_build_object('token', token, 'count', cnt)), '[]'::jsonb) AS j
    FROM (
        SELECT token, count(*) AS cnt
        FROM tokens
        WHERE length(token) > 2 AND token <> ALL($6::text[])
        GROUP BY token
        ORDER BY cnt DESC
        LIMIT $5
    ) k
),
at_risk AS (
    SELECT coalesce(jsonb_agg(jsonb_build_object('customer_id', customer_id, 'high_urgency_count', cnt)), '[]'::jsonb) AS j
    FROM (
        SELECT customer_id, count(*) FILTER (WHERE urgency = 'high') AS cnt
        FROM scoped
        GROUP BY customer_id
        HAVING count(*) FILTER (WHERE urgency = 'high') >= $4
    ) r
)
SELECT
    (SELECT count(*) FROM scoped) AS total,
    (SELECT j FROM status_breakdown),
    (SELECT count(*) FILTER (WHERE urgency = 'high') FROM scoped),
    (SELECT count(*) FILTER (WHERE sentiment = 'negative') FROM scoped),
    (SELECT j FROM hourly),
    (SELECT j FROM top_keywords),
    (SELECT j FROM at_risk)
`
