package core

import (
	"context"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"fisheries.gov/smartsearch/internal/store"
)

// AdminStore is the persistence surface the admin dashboard needs. The
// Postgres store implements it; tests substitute fakes.
type AdminStore interface {
	CreateCategory(ctx context.Context, name string, number int) (*store.Category, error)
	ListCategories(ctx context.Context) ([]store.Category, error)
	UpdateCategory(ctx context.Context, id, name string, number int) (*store.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	UpsertDocumentMetadata(ctx context.Context, categoryID, name, docType string, metadata json.RawMessage) (*store.Document, bool, error)
	ListDocumentsByCategory(ctx context.Context, categoryID string) ([]store.Document, error)
	GetDocumentByID(ctx context.Context, documentID string) (*store.Document, error)
	SetDocumentFilePath(ctx context.Context, categoryID, name, docType, filePath string) (*store.Document, error)

	Analytics(ctx context.Context, timeFrame store.TimeFrame) (*store.AnalyticsReport, error)
	ConversationPreview(ctx context.Context) (map[string][]store.EngagementLogEntry, error)
	ConversationSessions(ctx context.Context, role string, startDate, endDate *time.Time, page, limit int) (*store.SessionPage, error)
	FeedbackByRole(ctx context.Context, role string, page, limit int) (*store.FeedbackPage, error)
	FeedbackBySession(ctx context.Context, sessionID string) ([]store.Feedback, error)

	InsertPrompt(ctx context.Context, role, text string) (*store.Prompt, error)
	CurrentPrompt(ctx context.Context, role string) (*store.Prompt, error)
	PreviousPrompts(ctx context.Context) (map[string][]store.PromptVersion, error)
}

type AdminService struct {
	store AdminStore

	// Current prompt per role. Hit on every chat turn, invalidated on
	// insert.
	promptCache *lru.Cache[string, *store.Prompt]
}

func NewAdminService(s AdminStore) *AdminService {
	cache, _ := lru.New[string, *store.Prompt](len(store.PromptRoles))
	return &AdminService{store: s, promptCache: cache}
}

func (s *AdminService) Analytics(ctx context.Context, timeFrame string) (*store.AnalyticsReport, error) {
	return s.store.Analytics(ctx, store.ParseTimeFrame(timeFrame))
}

func (s *AdminService) CreateCategory(ctx context.Context, name string, number int) (*store.Category, error) {
	return s.store.CreateCategory(ctx, name, number)
}

func (s *AdminService) ListCategories(ctx context.Context) ([]store.Category, error) {
	return s.store.ListCategories(ctx)
}

func (s *AdminService) UpdateCategory(ctx context.Context, id, name string, number int) (*store.Category, error) {
	return s.store.UpdateCategory(ctx, id, name, number)
}

func (s *AdminService) DeleteCategory(ctx context.Context, id string) error {
	return s.store.DeleteCategory(ctx, id)
}

func (s *AdminService) UpsertDocumentMetadata(ctx context.Context, categoryID, name, docType string, metadata json.RawMessage) (*store.Document, bool, error) {
	return s.store.UpsertDocumentMetadata(ctx, categoryID, name, docType, metadata)
}

func (s *AdminService) ListDocuments(ctx context.Context, categoryID string) ([]store.Document, error) {
	return s.store.ListDocumentsByCategory(ctx, categoryID)
}

func (s *AdminService) GetDocument(ctx context.Context, documentID string) (*store.Document, error) {
	return s.store.GetDocumentByID(ctx, documentID)
}

func (s *AdminService) AttachDocumentFile(ctx context.Context, categoryID, name, docType, filePath string) (*store.Document, error) {
	return s.store.SetDocumentFilePath(ctx, categoryID, name, docType, filePath)
}

func (s *AdminService) ConversationPreview(ctx context.Context) (map[string][]store.EngagementLogEntry, error) {
	return s.store.ConversationPreview(ctx)
}

func (s *AdminService) ConversationSessions(ctx context.Context, role string, startDate, endDate *time.Time, page, limit int) (*store.SessionPage, error) {
	return s.store.ConversationSessions(ctx, role, startDate, endDate, page, limit)
}

func (s *AdminService) FeedbackByRole(ctx context.Context, role string, page, limit int) (*store.FeedbackPage, error) {
	return s.store.FeedbackByRole(ctx, role, page, limit)
}

func (s *AdminService) FeedbackBySession(ctx context.Context, sessionID string) ([]store.Feedback, error) {
	return s.store.FeedbackBySession(ctx, sessionID)
}

func (s *AdminService) InsertPrompt(ctx context.Context, role, text string) (*store.Prompt, error) {
	if !store.IsPromptRole(role) {
		return nil, ErrInvalidRole
	}
	prompt, err := s.store.InsertPrompt(ctx, role, text)
	if err != nil {
		return nil, err
	}
	s.promptCache.Add(role, prompt)
	log.Info().Str("role", role).Str("prompt_id", prompt.PromptID).Msg("Inserted new prompt version")
	return prompt, nil
}

func (s *AdminService) CurrentPrompt(ctx context.Context, role string) (*store.Prompt, error) {
	if !store.IsPromptRole(role) {
		return nil, ErrInvalidRole
	}
	if prompt, ok := s.promptCache.Get(role); ok {
		return prompt, nil
	}
	prompt, err := s.store.CurrentPrompt(ctx, role)
	if err != nil {
		return nil, err
	}
	s.promptCache.Add(role, prompt)
	return prompt, nil
}

func (s *AdminService) PreviousPrompts(ctx context.Context) (map[string][]store.PromptVersion, error) {
	return s.store.PreviousPrompts(ctx)
}
