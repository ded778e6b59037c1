package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const previewMessagesPerRole = 10

// ConversationPreview returns the most recent chat messages for every role,
// keyed by role. Roles with no traffic map to empty slices.
func (s *PostgresStore) ConversationPreview(ctx context.Context) (map[string][]EngagementLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT log_id, session_id, "timestamp", user_info, user_role, engagement_details
        FROM (SELECT *,
                     RANK() OVER (PARTITION BY COALESCE(user_role, 'unknown') ORDER BY "timestamp" DESC) AS rk
              FROM user_engagement_log
              WHERE engagement_type = $1) ranked
        WHERE rk <= $2
        ORDER BY "timestamp" DESC`,
		EngagementMessageCreation, previewMessagesPerRole)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query conversation preview")
	}
	defer rows.Close()

	preview := make(map[string][]EngagementLogEntry, len(EngagementRoles))
	for _, role := range EngagementRoles {
		preview[role] = []EngagementLogEntry{}
	}
	for rows.Next() {
		var e EngagementLogEntry
		var sessionID, userInfo, userRole sql.NullString
		if err := rows.Scan(&e.LogID, &sessionID, &e.Timestamp, &userInfo, &userRole, &e.EngagementDetails); err != nil {
			return nil, errors.Wrap(err, "failed to scan preview row")
		}
		e.EngagementType = EngagementMessageCreation
		if sessionID.Valid {
			e.SessionID = &sessionID.String
		}
		if userInfo.Valid {
			e.UserInfo = &userInfo.String
		}
		e.UserRole = RoleUnknown
		if userRole.Valid && userRole.String != "" {
			e.UserRole = userRole.String
		}
		preview[e.UserRole] = append(preview[e.UserRole], e)
	}
	return preview, rows.Err()
}

// SessionSummary previews one chat session: when it was last active and its
// second message. Single-message sessions have a nil preview.
type SessionSummary struct {
	SessionID      string    `json:"session_id"`
	LastMessageAt  time.Time `json:"last_message_at"`
	MessagePreview *string   `json:"message_preview"`
}

type SessionPage struct {
	Sessions   []SessionSummary `json:"sessions"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalCount int              `json:"total_count"`
	TotalPages int              `json:"total_pages"`
}

// ConversationSessions pages through the distinct chat sessions of one
// role, most recently active first, optionally bounded by a date range.
func (s *PostgresStore) ConversationSessions(ctx context.Context, role string, startDate, endDate *time.Time, page, limit int) (*SessionPage, error) {
	where := `engagement_type = $1 AND COALESCE(user_role, 'unknown') = $2 AND session_id IS NOT NULL`
	args := []any{EngagementMessageCreation, role}
	if startDate != nil {
		args = append(args, *startDate)
		where += fmt.Sprintf(` AND "timestamp" >= $%d`, len(args))
	}
	if endDate != nil {
		args = append(args, *endDate)
		where += fmt.Sprintf(` AND "timestamp" <= $%d`, len(args))
	}

	countQuery := `SELECT COUNT(DISTINCT session_id) FROM user_engagement_log WHERE ` + where

	pageArgs := append(append([]any{}, args...), limit, (page-1)*limit)
	pageQuery := fmt.Sprintf(`
        WITH sessions AS (
            SELECT session_id, MAX("timestamp") AS last_message_at
            FROM user_engagement_log
            WHERE %s
            GROUP BY session_id
        )
        SELECT sess.session_id, sess.last_message_at, preview.engagement_details
        FROM sessions sess
        LEFT JOIN LATERAL (
            SELECT engagement_details
            FROM user_engagement_log
            WHERE session_id = sess.session_id AND engagement_type = $1
            ORDER BY "timestamp" ASC
            OFFSET 1 LIMIT 1
        ) preview ON true
        ORDER BY sess.last_message_at DESC
        LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)

	result := &SessionPage{Page: page, Limit: limit, Sessions: []SessionSummary{}}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.db.QueryRowContext(gctx, countQuery, args...).Scan(&result.TotalCount)
		return errors.Wrap(err, "failed to count sessions")
	})
	g.Go(func() error {
		rows, err := s.db.QueryContext(gctx, pageQuery, pageArgs...)
		if err != nil {
			return errors.Wrap(err, "failed to query sessions")
		}
		defer rows.Close()

		for rows.Next() {
			var sum SessionSummary
			var preview sql.NullString
			if err := rows.Scan(&sum.SessionID, &sum.LastMessageAt, &preview); err != nil {
				return errors.Wrap(err, "failed to scan session row")
			}
			if preview.Valid {
				sum.MessagePreview = &preview.String
			}
			result.Sessions = append(result.Sessions, sum)
		}
		return rows.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.TotalPages = pageCount(result.TotalCount, limit)
	return result, nil
}

type FeedbackPage struct {
	Feedback      []Feedback `json:"feedback"`
	Page          int        `json:"page"`
	Limit         int        `json:"limit"`
	TotalCount    int        `json:"total_count"`
	TotalPages    int        `json:"total_pages"`
	AverageRating any        `json:"average_rating"`
}

// FeedbackByRole pages through feedback attributed to a role via the
// engagement log session join. The page, the total count and the average
// rating are independent queries and run concurrently.
func (s *PostgresStore) FeedbackByRole(ctx context.Context, role string, page, limit int) (*FeedbackPage, error) {
	const sessionJoin = `
        JOIN (SELECT DISTINCT session_id, COALESCE(user_role, 'unknown') AS user_role
              FROM user_engagement_log
              WHERE engagement_type = $1 AND session_id IS NOT NULL) sess
          ON sess.session_id = f.session_id
        WHERE sess.user_role = $2`

	result := &FeedbackPage{Page: page, Limit: limit, Feedback: []Feedback{}, AverageRating: noFeedbackYet}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.db.QueryContext(gctx, `
            SELECT f.feedback_id, f.session_id, f.feedback_rating, f.feedback_description, f."timestamp"
            FROM feedback f`+sessionJoin+`
            ORDER BY f."timestamp" DESC
            LIMIT $3 OFFSET $4`,
			EngagementMessageCreation, role, limit, (page-1)*limit)
		if err != nil {
			return errors.Wrap(err, "failed to query feedback by role")
		}
		defer rows.Close()

		for rows.Next() {
			var fb Feedback
			if err := rows.Scan(&fb.FeedbackID, &fb.SessionID, &fb.Rating, &fb.Description, &fb.Timestamp); err != nil {
				return errors.Wrap(err, "failed to scan feedback row")
			}
			result.Feedback = append(result.Feedback, fb)
		}
		return rows.Err()
	})
	g.Go(func() error {
		err := s.db.QueryRowContext(gctx,
			`SELECT COUNT(*) FROM feedback f`+sessionJoin,
			EngagementMessageCreation, role).Scan(&result.TotalCount)
		return errors.Wrap(err, "failed to count feedback")
	})
	g.Go(func() error {
		var avg sql.NullFloat64
		err := s.db.QueryRowContext(gctx,
			`SELECT AVG(f.feedback_rating)::float8 FROM feedback f`+sessionJoin,
			EngagementMessageCreation, role).Scan(&avg)
		if err != nil {
			return errors.Wrap(err, "failed to average feedback")
		}
		if avg.Valid {
			result.AverageRating = avg.Float64
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.TotalPages = pageCount(result.TotalCount, limit)
	return result, nil
}

func pageCount(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
