package api

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"fisheries.gov/smartsearch/internal/core"
)

type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
	UserRole  string `json:"user_role,omitempty"`
	UserInfo  string `json:"user_info,omitempty"`
}

type ChatResponse struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}

func (h *Handler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Message == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	sessionID, answer, err := h.chat.HandleMessage(r.Context(), req.SessionID, req.UserRole, req.UserInfo, req.Message)
	if errors.Is(err, core.ErrInvalidSession) {
		respondError(w, http.StatusBadRequest, "session_id must be a valid UUID")
		return
	}
	if errors.Is(err, core.ErrLLMUnavailable) {
		respondError(w, http.StatusBadGateway, "Failed to generate a response, please try again")
		return
	}
	if err != nil {
		internalError(w, err, "Failed to handle chat message")
		return
	}
	respondJSON(w, http.StatusOK, ChatResponse{SessionID: sessionID, Answer: answer})
}

type FeedbackRequest struct {
	SessionID   string   `json:"session_id"`
	Rating      *float64 `json:"feedback_rating"`
	Description string   `json:"feedback_description"`
}

func (h *Handler) FeedbackIntakeHandler(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.SessionID == "" || req.Rating == nil {
		respondError(w, http.StatusBadRequest, "session_id and feedback_rating are required")
		return
	}

	feedback, err := h.chat.RecordFeedback(r.Context(), req.SessionID, *req.Rating, req.Description)
	if errors.Is(err, core.ErrInvalidSession) {
		respondError(w, http.StatusBadRequest, "session_id must be a valid UUID")
		return
	}
	if err != nil {
		internalError(w, err, "Failed to record feedback")
		return
	}
	respondJSON(w, http.StatusCreated, feedback)
}
