package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RegionStat is how many views revealed a region.
type RegionStat struct {
	Region string  `json:"region"`
	Views  int64   `json:"views"`
	Rate   float64 `json:"rate"`
}

// ActionStat counts one action/outcome pair.
type ActionStat struct {
	Action  string `json:"action"`
	Outcome string `json:"outcome"`
	Count   int64  `json:"count"`
}

// Stats is the admin dashboard summary.
type Stats struct {
	TotalViews     int64        `json:"total_views"`
	UniqueVisitors int64        `json:"unique_visitors"`
	ViewsToday     int64        `json:"views_today"`
	ViewsThisWeek  int64        `json:"views_this_week"`
	FailOpenViews  int64        `json:"fail_open_views"`
	Regions        []RegionStat `json:"regions"`
	Actions        []ActionStat `json:"actions"`
	RecentViews    []View       `json:"recent_views"`
}

// Stats computes the dashboard summary. Regions are reported in the order
// given; regions nobody revealed show zero.
func (s *Store) Stats(ctx context.Context, regions []string) (*Stats, error) {
	stats := &Stats{}
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	counts := []struct {
		dst   *int64
		query string
		args  []any
	}{
		{&stats.TotalViews, `SELECT COUNT(*) FROM page_views`, nil},
		{&stats.UniqueVisitors, `SELECT COUNT(DISTINCT hashed_ip) FROM page_views`, nil},
		{&stats.ViewsToday, `SELECT COUNT(*) FROM page_views WHERE opened_at >= ?`, []any{today}},
		{&stats.ViewsThisWeek, `SELECT COUNT(*) FROM page_views WHERE opened_at >= ?`, []any{now.Add(-7 * 24 * time.Hour)}},
		{&stats.FailOpenViews, `SELECT COUNT(*) FROM page_views WHERE fail_open = 1`, nil},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query, c.args...).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
	}

	revealed, err := s.revealCounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, region := range regions {
		rs := RegionStat{Region: region, Views: revealed[region]}
		if stats.TotalViews > 0 {
			rs.Rate = float64(rs.Views) / float64(stats.TotalViews)
		}
		stats.Regions = append(stats.Regions, rs)
	}

	if stats.Actions, err = s.actionCounts(ctx); err != nil {
		return nil, err
	}
	if stats.RecentViews, err = s.RecentViews(ctx, 50); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) revealCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT region, COUNT(*) FROM reveals GROUP BY region`)
	if err != nil {
		return nil, fmt.Errorf("reveal counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var region string
		var n int64
		if err := rows.Scan(&region, &n); err != nil {
			return nil, fmt.Errorf("scan reveal count: %w", err)
		}
		out[region] = n
	}
	return out, rows.Err()
}

func (s *Store) actionCounts(ctx context.Context) ([]ActionStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT action, outcome, COUNT(*) FROM actions
		GROUP BY action, outcome
		ORDER BY action, outcome
	`)
	if err != nil {
		return nil, fmt.Errorf("action counts: %w", err)
	}
	defer rows.Close()

	var out []ActionStat
	for rows.Next() {
		var a ActionStat
		if err := rows.Scan(&a.Action, &a.Outcome, &a.Count); err != nil {
			return nil, fmt.Errorf("scan action count: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecentViews returns the latest views, newest first.
func (s *Store) RecentViews(ctx context.Context, limit int) ([]View, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.hashed_ip, COALESCE(v.user_agent, ''), v.capability, v.fail_open,
		       v.opened_at, v.closed_at, v.close_reason,
		       (SELECT COUNT(*) FROM reveals r WHERE r.view_id = v.id)
		FROM page_views v
		ORDER BY v.opened_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent views: %w", err)
	}
	defer rows.Close()

	var views []View
	for rows.Next() {
		var (
			v      View
			closed sql.NullTime
		)
		if err := rows.Scan(&v.ID, &v.HashedIP, &v.UserAgent, &v.Capability, &v.FailOpen,
			&v.OpenedAt, &closed, &v.CloseReason, &v.Revealed); err != nil {
			return nil, fmt.Errorf("scan view: %w", err)
		}
		if closed.Valid {
			t := closed.Time
			v.ClosedAt = &t
		}
		views = append(views, v)
	}
	return views, rows.Err()
}
