package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fisheries.gov/smartsearch/internal/core"
	"fisheries.gov/smartsearch/internal/store"
)

type fakeEngagements struct {
	entries  []store.EngagementLogEntry
	feedback []store.Feedback
}

func (f *fakeEngagements) AppendEngagement(_ context.Context, entry *store.EngagementLogEntry) error {
	entry.LogID = uuid.NewString()
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeEngagements) InsertFeedback(_ context.Context, sessionID string, rating float64, description string) (*store.Feedback, error) {
	fb := store.Feedback{FeedbackID: uuid.NewString(), SessionID: sessionID, Rating: rating, Description: description}
	f.feedback = append(f.feedback, fb)
	return &fb, nil
}

type fakeLLM struct {
	answer string
	err    error
}

func (f *fakeLLM) GenerateAnswer(_ context.Context, _, _ string) (string, error) {
	return f.answer, f.err
}

func newChatTestServer(t *testing.T, llm core.LLMClient) (*fakeEngagements, http.Handler) {
	t.Helper()
	engagements := &fakeEngagements{}
	admin := core.NewAdminService(newFakeAdminStore())
	chat := core.NewChatService(engagements, admin, llm)
	handler := NewHandler(admin, chat, nil)
	return engagements, NewRouter(handler, "*")
}

func TestChatGeneratesSessionAndAnswer(t *testing.T) {
	engagements, router := newChatTestServer(t, &fakeLLM{answer: "Cod quotas are set annually."})

	rec := doRequest(t, router, http.MethodPost, "/chat", `{"message":"How are cod quotas set?","user_role":"public"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Cod quotas are set annually.", resp.Answer)
	_, err := uuid.Parse(resp.SessionID)
	assert.NoError(t, err, "a fresh session id must be a UUID")

	require.Len(t, engagements.entries, 1)
	entry := engagements.entries[0]
	assert.Equal(t, store.EngagementMessageCreation, entry.EngagementType)
	assert.Equal(t, store.RolePublic, entry.UserRole)
	require.NotNil(t, entry.SessionID)
	assert.Equal(t, resp.SessionID, *entry.SessionID)
	assert.Equal(t, "How are cod quotas set?", entry.EngagementDetails)
}

func TestChatReusesSession(t *testing.T) {
	_, router := newChatTestServer(t, &fakeLLM{answer: "ok"})
	sessionID := uuid.NewString()

	rec := doRequest(t, router, http.MethodPost, "/chat", `{"message":"hi","session_id":"`+sessionID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, sessionID, resp.SessionID)
}

func TestChatRejectsMalformedSession(t *testing.T) {
	engagements, router := newChatTestServer(t, &fakeLLM{answer: "ok"})

	rec := doRequest(t, router, http.MethodPost, "/chat", `{"message":"hi","session_id":"not-a-uuid"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, engagements.entries)
}

func TestChatRequiresMessage(t *testing.T) {
	_, router := newChatTestServer(t, &fakeLLM{answer: "ok"})

	rec := doRequest(t, router, http.MethodPost, "/chat", `{"user_role":"public"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatModelFailureStillLogsEngagement(t *testing.T) {
	engagements, router := newChatTestServer(t, &fakeLLM{err: errors.New("quota exceeded")})

	rec := doRequest(t, router, http.MethodPost, "/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Len(t, engagements.entries, 1, "the message must be logged even when the model fails")
}

func TestFeedbackIntake(t *testing.T) {
	engagements, router := newChatTestServer(t, &fakeLLM{answer: "ok"})
	sessionID := uuid.NewString()

	rec := doRequest(t, router, http.MethodPost, "/feedback",
		`{"session_id":"`+sessionID+`","feedback_rating":4.5,"feedback_description":"clear answer"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Len(t, engagements.feedback, 1)
	assert.Equal(t, 4.5, engagements.feedback[0].Rating)
	assert.Equal(t, sessionID, engagements.feedback[0].SessionID)
}

func TestFeedbackIntakeRequiresRating(t *testing.T) {
	engagements, router := newChatTestServer(t, &fakeLLM{answer: "ok"})

	rec := doRequest(t, router, http.MethodPost, "/feedback", `{"session_id":"`+uuid.NewString()+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, engagements.feedback)
}
