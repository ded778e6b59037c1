package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// TimeFrame selects the reporting window and bucket size for the analytics
// report. Anything unrecognized falls back to TimeFrameMonth.
type TimeFrame string

const (
	TimeFrameDay   TimeFrame = "day"
	TimeFrameWeek  TimeFrame = "week"
	TimeFrameMonth TimeFrame = "month"
	TimeFrameYear  TimeFrame = "year"
)

func ParseTimeFrame(s string) TimeFrame {
	switch TimeFrame(s) {
	case TimeFrameDay, TimeFrameWeek, TimeFrameYear:
		return TimeFrame(s)
	default:
		return TimeFrameMonth
	}
}

// analyticsWindow is the per-timeframe policy: how far back the report
// reaches, the date_trunc unit, the generate_series step and the label
// format handed to to_char.
type analyticsWindow struct {
	Start  time.Time
	Bucket string
	Step   string
	Format string
}

func (tf TimeFrame) window(now time.Time) analyticsWindow {
	switch tf {
	case TimeFrameDay:
		return analyticsWindow{Start: now.AddDate(0, 0, -7), Bucket: "day", Step: "1 day", Format: "YYYY-MM-DD"}
	case TimeFrameWeek:
		return analyticsWindow{Start: now.AddDate(0, -3, 0), Bucket: "week", Step: "1 week", Format: "YYYY-MM-DD"}
	case TimeFrameYear:
		return analyticsWindow{Start: now.AddDate(-5, 0, 0), Bucket: "year", Step: "1 year", Format: "YYYY"}
	default:
		return analyticsWindow{Start: now.AddDate(-1, 0, 0), Bucket: "month", Step: "1 month", Format: "YYYY-MM"}
	}
}

type UniqueUserBucket struct {
	Period      string `json:"period"`
	UniqueUsers int    `json:"unique_users"`
}

type RoleMessageBucket struct {
	Period       string `json:"period"`
	UserRole     string `json:"user_role"`
	MessageCount int    `json:"message_count"`
}

// RoleFeedback carries either the numeric average or the literal string
// "no feedback yet" when a role has no ratings in the window.
type RoleFeedback struct {
	UserRole      string `json:"user_role"`
	AverageRating any    `json:"average_rating"`
}

type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type AnalyticsReport struct {
	UniqueUsersPerMonth     []UniqueUserBucket  `json:"unique_users_per_month"`
	MessagesPerRolePerMonth []RoleMessageBucket `json:"messages_per_role_per_month"`
	AvgFeedbackPerRole      []RoleFeedback      `json:"avg_feedback_per_role"`
	TimeFrame               string              `json:"time_frame"`
	DateRange               DateRange           `json:"date_range"`
}

const noFeedbackYet = "no feedback yet"

// Analytics builds the engagement report for the given timeframe. The three
// aggregates are independent, so they run concurrently on the pool.
func (s *PostgresStore) Analytics(ctx context.Context, timeFrame TimeFrame) (*AnalyticsReport, error) {
	now := time.Now()
	w := timeFrame.window(now)

	report := &AnalyticsReport{
		TimeFrame: string(timeFrame),
		DateRange: DateRange{
			Start: w.Start.Format("2006-01-02"),
			End:   now.Format("2006-01-02"),
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		buckets, err := s.uniqueUsersPerBucket(gctx, w)
		report.UniqueUsersPerMonth = buckets
		return err
	})
	g.Go(func() error {
		buckets, err := s.messagesPerRolePerBucket(gctx, w)
		report.MessagesPerRolePerMonth = buckets
		return err
	})
	g.Go(func() error {
		averages, err := s.avgFeedbackPerRole(gctx, w.Start)
		report.AvgFeedbackPerRole = averages
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *PostgresStore) uniqueUsersPerBucket(ctx context.Context, w analyticsWindow) ([]UniqueUserBucket, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT to_char(b.bucket, $2) AS period,
               COUNT(DISTINCT u.user_info) AS unique_users
        FROM generate_series(date_trunc($1, $3::timestamptz), date_trunc($1, now()), $4::interval) AS b(bucket)
        LEFT JOIN user_engagement_log u
          ON date_trunc($1, u."timestamp") = b.bucket
        GROUP BY b.bucket
        ORDER BY b.bucket`,
		w.Bucket, w.Format, w.Start, w.Step)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query unique users")
	}
	defer rows.Close()

	buckets := []UniqueUserBucket{}
	for rows.Next() {
		var b UniqueUserBucket
		if err := rows.Scan(&b.Period, &b.UniqueUsers); err != nil {
			return nil, errors.Wrap(err, "failed to scan unique users row")
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

func (s *PostgresStore) messagesPerRolePerBucket(ctx context.Context, w analyticsWindow) ([]RoleMessageBucket, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT to_char(b.bucket, $2) AS period,
               COALESCE(u.user_role, 'unknown') AS user_role,
               COUNT(u.log_id) AS message_count
        FROM generate_series(date_trunc($1, $3::timestamptz), date_trunc($1, now()), $4::interval) AS b(bucket)
        LEFT JOIN user_engagement_log u
          ON date_trunc($1, u."timestamp") = b.bucket AND u.engagement_type = $5
        GROUP BY b.bucket, COALESCE(u.user_role, 'unknown')
        ORDER BY b.bucket`,
		w.Bucket, w.Format, w.Start, w.Step, EngagementMessageCreation)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query messages per role")
	}
	defer rows.Close()

	buckets := []RoleMessageBucket{}
	for rows.Next() {
		var b RoleMessageBucket
		if err := rows.Scan(&b.Period, &b.UserRole, &b.MessageCount); err != nil {
			return nil, errors.Wrap(err, "failed to scan messages per role row")
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

func (s *PostgresStore) avgFeedbackPerRole(ctx context.Context, start time.Time) ([]RoleFeedback, error) {
	// A session joins to one role; DISTINCT guards against one row per
	// message multiplying the average.
	rows, err := s.db.QueryContext(ctx, `
        SELECT s.user_role, AVG(f.feedback_rating)::float8
        FROM feedback f
        JOIN (SELECT DISTINCT session_id, COALESCE(user_role, 'unknown') AS user_role
              FROM user_engagement_log
              WHERE engagement_type = $1 AND session_id IS NOT NULL) s
          ON s.session_id = f.session_id
        WHERE f."timestamp" >= $2
        GROUP BY s.user_role`,
		EngagementMessageCreation, start)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query feedback averages")
	}
	defer rows.Close()

	byRole := make(map[string]float64)
	for rows.Next() {
		var role string
		var avg float64
		if err := rows.Scan(&role, &avg); err != nil {
			return nil, errors.Wrap(err, "failed to scan feedback average row")
		}
		byRole[role] = avg
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	averages := make([]RoleFeedback, 0, len(EngagementRoles))
	for _, role := range EngagementRoles {
		entry := RoleFeedback{UserRole: role, AverageRating: noFeedbackYet}
		if avg, ok := byRole[role]; ok {
			entry.AverageRating = avg
		}
		averages = append(averages, entry)
	}
	return averages, nil
}
