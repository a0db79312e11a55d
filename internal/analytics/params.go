// Package analytics computes dashboard rollups from the raw session and
// page view tables. Queries that legitimately match no data return zero or
// empty defaults; "no traffic yet" is an expected state, not an error.
package analytics

import (
	"gemnar/internal/timeframe"
)

// ProjectScopedQueryParams bundles the common inputs of every aggregation
// query.
type ProjectScopedQueryParams struct {
	ProjectID uint
	TimeFrame *timeframe.TimeFrame
	Limit     int
}

// MetricCountResult is a generic name/count pair used by breakdowns.
type MetricCountResult struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Dashboard breakdown caps
const (
	TopPagesLimit    = 10
	TopBrowsersLimit = 5
)

// Load times above this are treated as measurement noise by the primary
// load-time aggregate.
const SaneLoadTimeCeilingMs = 30000
