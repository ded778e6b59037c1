package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

func (s *PostgresStore) InsertPrompt(ctx context.Context, role, text string) (*Prompt, error) {
	p := &Prompt{
		PromptID:    uuid.NewString(),
		Role:        role,
		Prompt:      text,
		TimeCreated: time.Now(),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO prompts (prompt_id, role, prompt, time_created) VALUES ($1, $2, $3, $4)",
		p.PromptID, p.Role, p.Prompt, p.TimeCreated)
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert prompt")
	}
	return p, nil
}

// CurrentPrompt returns the most recent prompt stored for a role.
func (s *PostgresStore) CurrentPrompt(ctx context.Context, role string) (*Prompt, error) {
	var p Prompt
	err := s.db.QueryRowContext(ctx,
		`SELECT prompt_id, role, prompt, time_created FROM prompts
         WHERE role = $1 ORDER BY time_created DESC LIMIT 1`, role).
		Scan(&p.PromptID, &p.Role, &p.Prompt, &p.TimeCreated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query current prompt")
	}
	return &p, nil
}

// PreviousPrompts returns, per role, every prompt strictly older than that
// role's current one, newest first. Every prompt role is present as a key.
func (s *PostgresStore) PreviousPrompts(ctx context.Context) (map[string][]PromptVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT role, prompt, time_created
        FROM (SELECT role, prompt, time_created,
                     RANK() OVER (PARTITION BY role ORDER BY time_created DESC) AS rk
              FROM prompts) ranked
        WHERE rk > 1
        ORDER BY time_created DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query previous prompts")
	}
	defer rows.Close()

	history := make(map[string][]PromptVersion, len(PromptRoles))
	for _, role := range PromptRoles {
		history[role] = []PromptVersion{}
	}
	for rows.Next() {
		var role string
		var v PromptVersion
		if err := rows.Scan(&role, &v.Prompt, &v.TimeCreated); err != nil {
			return nil, errors.Wrap(err, "failed to scan prompt row")
		}
		history[role] = append(history[role], v)
	}
	return history, rows.Err()
}
