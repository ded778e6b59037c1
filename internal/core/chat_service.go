package core

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"fisheries.gov/smartsearch/internal/store"
)

const defaultSystemInstruction = "You are SmartSearch, the assistant of a government fisheries agency. " +
	"Answer questions about fisheries regulations, stock assessments and published agency documents. " +
	"If you are not sure of an answer, say so instead of guessing."

// LLMClient abstracts the model call so chat can be tested without the
// Gemini API.
type LLMClient interface {
	GenerateAnswer(ctx context.Context, systemInstruction, userMessage string) (string, error)
}

// EngagementStore is the slice of persistence the public chat surface
// touches: the append-only engagement log and feedback intake.
type EngagementStore interface {
	AppendEngagement(ctx context.Context, entry *store.EngagementLogEntry) error
	InsertFeedback(ctx context.Context, sessionID string, rating float64, description string) (*store.Feedback, error)
}

type ChatService struct {
	engagements EngagementStore
	admin       *AdminService // current prompt lookup
	llm         LLMClient
}

func NewChatService(engagements EngagementStore, admin *AdminService, llm LLMClient) *ChatService {
	return &ChatService{
		engagements: engagements,
		admin:       admin,
		llm:         llm,
	}
}

// HandleMessage runs one chat turn: record the message in the engagement
// log, then answer it with the role's current system prompt. The engagement
// row is written before the model call so analytics see the message even
// when the model fails.
func (s *ChatService) HandleMessage(ctx context.Context, sessionID, role, userInfo, message string) (string, string, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	} else if _, err := uuid.Parse(sessionID); err != nil {
		return "", "", ErrInvalidSession
	}
	if role == "" {
		role = store.RolePublic
	}

	entry := &store.EngagementLogEntry{
		SessionID:         &sessionID,
		EngagementType:    store.EngagementMessageCreation,
		UserRole:          role,
		EngagementDetails: message,
	}
	if userInfo != "" {
		entry.UserInfo = &userInfo
	}
	if err := s.engagements.AppendEngagement(ctx, entry); err != nil {
		return "", "", err
	}

	instruction := defaultSystemInstruction
	if store.IsPromptRole(role) {
		if prompt, err := s.admin.CurrentPrompt(ctx, role); err == nil {
			instruction = prompt.Prompt
		} else if !errors.Is(err, store.ErrNotFound) {
			log.Error().Err(err).Str("role", role).Msg("Failed to load current prompt, using default")
		}
	}

	answer, err := s.llm.GenerateAnswer(ctx, instruction, message)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("Model call failed")
		return sessionID, "", errors.Wrap(ErrLLMUnavailable, err.Error())
	}
	return sessionID, answer, nil
}

// RecordFeedback stores a rating submitted from the chat UI.
func (s *ChatService) RecordFeedback(ctx context.Context, sessionID string, rating float64, description string) (*store.Feedback, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, ErrInvalidSession
	}
	return s.engagements.InsertFeedback(ctx, sessionID, rating, description)
}
