package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver
	"github.com/pkg/errors"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	store := &PostgresStore{db: db}
	if err = store.initSchema(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS categories (
        category_id UUID PRIMARY KEY,
        category_name TEXT NOT NULL,
        category_number INTEGER NOT NULL
    );

    CREATE TABLE IF NOT EXISTS documents (
        document_id UUID PRIMARY KEY,
        category_id UUID NOT NULL REFERENCES categories (category_id),
        document_s3_file_path TEXT,
        document_name TEXT NOT NULL,
        document_type TEXT NOT NULL,
        metadata JSONB NOT NULL DEFAULT '{}',
        time_created TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE UNIQUE INDEX IF NOT EXISTS documents_category_name_type_idx
        ON documents (category_id, document_name, document_type);

    CREATE TABLE IF NOT EXISTS user_engagement_log (
        log_id UUID PRIMARY KEY,
        session_id UUID,
        "timestamp" TIMESTAMPTZ NOT NULL DEFAULT now(),
        engagement_type TEXT NOT NULL,
        user_info TEXT,
        user_role TEXT,
        engagement_details TEXT NOT NULL DEFAULT ''
    );
    CREATE INDEX IF NOT EXISTS user_engagement_log_session_idx
        ON user_engagement_log (session_id);
    CREATE INDEX IF NOT EXISTS user_engagement_log_timestamp_idx
        ON user_engagement_log ("timestamp");

    CREATE TABLE IF NOT EXISTS feedback (
        feedback_id UUID PRIMARY KEY,
        session_id UUID NOT NULL,
        feedback_rating NUMERIC NOT NULL,
        feedback_description TEXT NOT NULL DEFAULT '',
        "timestamp" TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE INDEX IF NOT EXISTS feedback_session_idx ON feedback (session_id);

    CREATE TABLE IF NOT EXISTS prompts (
        prompt_id UUID PRIMARY KEY,
        role TEXT NOT NULL,
        prompt TEXT NOT NULL,
        time_created TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE INDEX IF NOT EXISTS prompts_role_time_idx ON prompts (role, time_created DESC);
    `
	_, err := s.db.Exec(schema)
	return err
}

// Category methods

func (s *PostgresStore) CreateCategory(ctx context.Context, name string, number int) (*Category, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	category := &Category{
		CategoryID:     uuid.NewString(),
		CategoryName:   name,
		CategoryNumber: number,
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO categories (category_id, category_name, category_number) VALUES ($1, $2, $3)",
		category.CategoryID, category.CategoryName, category.CategoryNumber)
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert category")
	}

	details := fmt.Sprintf("Created category %q with number %d", name, number)
	if err = appendAuditEntry(ctx, tx, EngagementCategoryCreated, details); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit category insert")
	}
	return category, nil
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT category_id, category_name, category_number FROM categories ORDER BY category_number ASC")
	if err != nil {
		return nil, errors.Wrap(err, "failed to query categories")
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.CategoryID, &c.CategoryName, &c.CategoryNumber); err != nil {
			return nil, errors.Wrap(err, "failed to scan category row")
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *PostgresStore) UpdateCategory(ctx context.Context, id, name string, number int) (*Category, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE categories SET category_name = $1, category_number = $2 WHERE category_id = $3",
		name, number, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update category")
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return nil, ErrNotFound
	}

	details := fmt.Sprintf("Edited category %s: name %q, number %d", id, name, number)
	if err = appendAuditEntry(ctx, tx, EngagementCategoryEdited, details); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit category update")
	}
	return &Category{CategoryID: id, CategoryName: name, CategoryNumber: number}, nil
}

func (s *PostgresStore) DeleteCategory(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM categories WHERE category_id = $1", id)
	if err != nil {
		return errors.Wrap(err, "failed to delete category")
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}

	details := fmt.Sprintf("Deleted category %s", id)
	if err = appendAuditEntry(ctx, tx, EngagementCategoryDeleted, details); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit category delete")
}

// appendAuditEntry writes an administrative audit row. Audit rows never
// carry a session_id; only chat messages do.
func appendAuditEntry(ctx context.Context, tx *sql.Tx, engagementType, details string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO user_engagement_log (log_id, session_id, engagement_type, user_info, user_role, engagement_details)
         VALUES ($1, NULL, $2, NULL, 'admin', $3)`,
		uuid.NewString(), engagementType, details)
	return errors.Wrap(err, "failed to insert engagement log entry")
}

// Document methods

// UpsertDocumentMetadata looks a document up by its (category, name, type)
// composite key. When absent it inserts a fresh row with no stored file;
// when present it replaces only the metadata. Returns created=true on
// insert.
func (s *PostgresStore) UpsertDocumentMetadata(ctx context.Context, categoryID, name, docType string, metadata json.RawMessage) (*Document, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	doc, err := scanDocument(tx.QueryRowContext(ctx,
		`SELECT document_id, category_id, document_s3_file_path, document_name, document_type, metadata, time_created
         FROM documents WHERE category_id = $1 AND document_name = $2 AND document_type = $3`,
		categoryID, name, docType))
	if err != nil && err != sql.ErrNoRows {
		return nil, false, errors.Wrap(err, "failed to look up document")
	}

	if err == sql.ErrNoRows {
		doc = &Document{
			DocumentID:   uuid.NewString(),
			CategoryID:   categoryID,
			DocumentName: name,
			DocumentType: docType,
			Metadata:     metadata,
			TimeCreated:  time.Now(),
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO documents (document_id, category_id, document_s3_file_path, document_name, document_type, metadata, time_created)
             VALUES ($1, $2, NULL, $3, $4, $5, $6)`,
			doc.DocumentID, doc.CategoryID, doc.DocumentName, doc.DocumentType, []byte(doc.Metadata), doc.TimeCreated)
		if err != nil {
			return nil, false, errors.Wrap(err, "failed to insert document")
		}
		return doc, true, errors.Wrap(tx.Commit(), "failed to commit document insert")
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE documents SET metadata = $1 WHERE document_id = $2", []byte(metadata), doc.DocumentID)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to update document metadata")
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return nil, false, errors.Errorf("document %s vanished during metadata update", doc.DocumentID)
	}
	doc.Metadata = metadata
	return doc, false, errors.Wrap(tx.Commit(), "failed to commit metadata update")
}

func (s *PostgresStore) ListDocumentsByCategory(ctx context.Context, categoryID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, category_id, document_s3_file_path, document_name, document_type, metadata, time_created
         FROM documents WHERE category_id = $1 ORDER BY time_created DESC`, categoryID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query documents")
	}
	defer rows.Close()

	var documents []Document
	for rows.Next() {
		var d Document
		var filePath sql.NullString
		var metadata []byte
		if err := rows.Scan(&d.DocumentID, &d.CategoryID, &filePath, &d.DocumentName, &d.DocumentType, &metadata, &d.TimeCreated); err != nil {
			return nil, errors.Wrap(err, "failed to scan document row")
		}
		if filePath.Valid {
			d.S3FilePath = &filePath.String
		}
		d.Metadata = json.RawMessage(metadata)
		documents = append(documents, d)
	}
	return documents, rows.Err()
}

func (s *PostgresStore) GetDocumentByID(ctx context.Context, documentID string) (*Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT document_id, category_id, document_s3_file_path, document_name, document_type, metadata, time_created
         FROM documents WHERE document_id = $1`, documentID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get document")
	}
	return doc, nil
}

// SetDocumentFilePath records the object storage path for a document,
// creating the document row when the composite key is new.
func (s *PostgresStore) SetDocumentFilePath(ctx context.Context, categoryID, name, docType, filePath string) (*Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`INSERT INTO documents (document_id, category_id, document_s3_file_path, document_name, document_type, metadata, time_created)
         VALUES ($1, $2, $3, $4, $5, '{}', now())
         ON CONFLICT (category_id, document_name, document_type)
         DO UPDATE SET document_s3_file_path = EXCLUDED.document_s3_file_path
         RETURNING document_id, category_id, document_s3_file_path, document_name, document_type, metadata, time_created`,
		uuid.NewString(), categoryID, filePath, name, docType))
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert document file path")
	}
	return doc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var d Document
	var filePath sql.NullString
	var metadata []byte
	err := row.Scan(&d.DocumentID, &d.CategoryID, &filePath, &d.DocumentName, &d.DocumentType, &metadata, &d.TimeCreated)
	if err != nil {
		return nil, err
	}
	if filePath.Valid {
		d.S3FilePath = &filePath.String
	}
	d.Metadata = json.RawMessage(metadata)
	return &d, nil
}

// Engagement and feedback methods

// AppendEngagement records a chat message event. Unlike audit rows these
// always carry a session id.
func (s *PostgresStore) AppendEngagement(ctx context.Context, entry *EngagementLogEntry) error {
	entry.LogID = uuid.NewString()
	entry.Timestamp = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_engagement_log (log_id, session_id, "timestamp", engagement_type, user_info, user_role, engagement_details)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.LogID, entry.SessionID, entry.Timestamp, entry.EngagementType, entry.UserInfo, entry.UserRole, entry.EngagementDetails)
	return errors.Wrap(err, "failed to insert engagement log entry")
}

func (s *PostgresStore) InsertFeedback(ctx context.Context, sessionID string, rating float64, description string) (*Feedback, error) {
	fb := &Feedback{
		FeedbackID:  uuid.NewString(),
		SessionID:   sessionID,
		Rating:      rating,
		Description: description,
		Timestamp:   time.Now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (feedback_id, session_id, feedback_rating, feedback_description, "timestamp")
         VALUES ($1, $2, $3, $4, $5)`,
		fb.FeedbackID, fb.SessionID, fb.Rating, fb.Description, fb.Timestamp)
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert feedback")
	}
	return fb, nil
}

func (s *PostgresStore) FeedbackBySession(ctx context.Context, sessionID string) ([]Feedback, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT feedback_id, session_id, feedback_rating, feedback_description, "timestamp"
         FROM feedback WHERE session_id = $1 ORDER BY "timestamp" DESC`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query feedback")
	}
	defer rows.Close()

	var entries []Feedback
	for rows.Next() {
		var fb Feedback
		if err := rows.Scan(&fb.FeedbackID, &fb.SessionID, &fb.Rating, &fb.Description, &fb.Timestamp); err != nil {
			return nil, errors.Wrap(err, "failed to scan feedback row")
		}
		entries = append(entries, fb)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return entries, nil
}
