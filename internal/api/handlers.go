package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"fisheries.gov/smartsearch/internal/core"
	"fisheries.gov/smartsearch/internal/storage"
	"fisheries.gov/smartsearch/internal/store"
)

// ObjectPresigner hands out presigned URLs for document files. Nil when
// object storage is not configured.
type ObjectPresigner interface {
	PresignedDownloadURL(ctx context.Context, objectPath string) (string, error)
	PresignedUploadURL(ctx context.Context, objectPath string) (string, error)
}

type Handler struct {
	admin   *core.AdminService
	chat    *core.ChatService
	objects ObjectPresigner
}

func NewHandler(admin *core.AdminService, chat *core.ChatService, objects ObjectPresigner) *Handler {
	return &Handler{admin: admin, chat: chat, objects: objects}
}

func (h *Handler) AnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.admin.Analytics(r.Context(), queryParam(r, "timeFrame"))
	if err != nil {
		internalError(w, err, "Failed to build analytics report")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *Handler) CreateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	name := queryParam(r, "category_name")
	numberStr := queryParam(r, "category_number")
	if name == "" || numberStr == "" {
		respondError(w, http.StatusBadRequest, "category_name and category_number are required")
		return
	}
	number, err := strconv.Atoi(numberStr)
	if err != nil {
		respondError(w, http.StatusBadRequest, "category_number must be an integer")
		return
	}

	category, err := h.admin.CreateCategory(r.Context(), name, number)
	if err != nil {
		internalError(w, err, "Failed to create category")
		return
	}
	respondJSON(w, http.StatusCreated, category)
}

func (h *Handler) ListCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	categories, err := h.admin.ListCategories(r.Context())
	if err != nil {
		internalError(w, err, "Failed to list categories")
		return
	}
	if categories == nil {
		categories = []store.Category{}
	}
	respondJSON(w, http.StatusOK, categories)
}

func (h *Handler) EditCategoryHandler(w http.ResponseWriter, r *http.Request) {
	id := queryParam(r, "category_id")
	name := queryParam(r, "category_name")
	numberStr := queryParam(r, "category_number")
	if id == "" || name == "" || numberStr == "" {
		respondError(w, http.StatusBadRequest, "category_id, category_name and category_number are required")
		return
	}
	number, err := strconv.Atoi(numberStr)
	if err != nil {
		respondError(w, http.StatusBadRequest, "category_number must be an integer")
		return
	}

	category, err := h.admin.UpdateCategory(r.Context(), id, name, number)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Category not found")
		return
	}
	if err != nil {
		internalError(w, err, "Failed to update category")
		return
	}
	respondJSON(w, http.StatusOK, category)
}

func (h *Handler) DeleteCategoryHandler(w http.ResponseWriter, r *http.Request) {
	id := queryParam(r, "category_id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "category_id is required")
		return
	}

	err := h.admin.DeleteCategory(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Category not found")
		return
	}
	if err != nil {
		internalError(w, err, "Failed to delete category")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Category deleted successfully"})
}

func (h *Handler) UpdateMetadataHandler(w http.ResponseWriter, r *http.Request) {
	categoryID := queryParam(r, "category_id")
	name := queryParam(r, "document_name")
	docType := queryParam(r, "document_type")
	if categoryID == "" || name == "" || docType == "" {
		respondError(w, http.StatusBadRequest, "category_id, document_name and document_type are required")
		return
	}

	var body struct {
		Metadata json.RawMessage `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Metadata) == 0 {
		respondError(w, http.StatusBadRequest, "metadata body field is required")
		return
	}

	doc, created, err := h.admin.UpsertDocumentMetadata(r.Context(), categoryID, name, docType, body.Metadata)
	if err != nil {
		internalError(w, err, "Failed to upsert document metadata")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, doc)
}

func (h *Handler) ConversationHistoryPreviewHandler(w http.ResponseWriter, r *http.Request) {
	preview, err := h.admin.ConversationPreview(r.Context())
	if err != nil {
		internalError(w, err, "Failed to build conversation preview")
		return
	}
	respondJSON(w, http.StatusOK, preview)
}

func (h *Handler) ConversationSessionsHandler(w http.ResponseWriter, r *http.Request) {
	role := queryParam(r, "user_role")
	if role == "" {
		respondError(w, http.StatusBadRequest, "user_role is required")
		return
	}
	page, limit := pagination(r)

	var startDate, endDate *time.Time
	if v := queryParam(r, "start_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "start_date must be formatted as YYYY-MM-DD")
			return
		}
		startDate = &t
	}
	if v := queryParam(r, "end_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "end_date must be formatted as YYYY-MM-DD")
			return
		}
		// Inclusive upper bound: the whole end day counts.
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		endDate = &t
	}

	sessions, err := h.admin.ConversationSessions(r.Context(), role, startDate, endDate, page, limit)
	if err != nil {
		internalError(w, err, "Failed to list conversation sessions")
		return
	}
	respondJSON(w, http.StatusOK, sessions)
}

func (h *Handler) FeedbackByRoleHandler(w http.ResponseWriter, r *http.Request) {
	role := queryParam(r, "user_role")
	if role == "" {
		respondError(w, http.StatusBadRequest, "user_role is required")
		return
	}
	page, limit := pagination(r)

	feedback, err := h.admin.FeedbackByRole(r.Context(), role, page, limit)
	if err != nil {
		internalError(w, err, "Failed to list feedback by role")
		return
	}
	respondJSON(w, http.StatusOK, feedback)
}

func (h *Handler) GetFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := queryParam(r, "session_id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	feedback, err := h.admin.FeedbackBySession(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "No feedback found for the given session_id")
		return
	}
	if err != nil {
		internalError(w, err, "Failed to get feedback")
		return
	}
	respondJSON(w, http.StatusOK, feedback)
}

func (h *Handler) PreviousPromptsHandler(w http.ResponseWriter, r *http.Request) {
	history, err := h.admin.PreviousPrompts(r.Context())
	if err != nil {
		internalError(w, err, "Failed to list previous prompts")
		return
	}
	respondJSON(w, http.StatusOK, history)
}

func (h *Handler) InsertPromptHandler(w http.ResponseWriter, r *http.Request) {
	role := queryParam(r, "role")
	if role == "" {
		respondError(w, http.StatusBadRequest, "role is required")
		return
	}

	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Prompt == "" {
		respondError(w, http.StatusBadRequest, "prompt body field is required")
		return
	}

	prompt, err := h.admin.InsertPrompt(r.Context(), role, body.Prompt)
	if errors.Is(err, core.ErrInvalidRole) {
		respondError(w, http.StatusBadRequest, "role must be one of public, internal_researcher, policy_maker, external_researcher")
		return
	}
	if err != nil {
		internalError(w, err, "Failed to insert prompt")
		return
	}
	respondJSON(w, http.StatusCreated, prompt)
}

func (h *Handler) CurrentPromptHandler(w http.ResponseWriter, r *http.Request) {
	role := queryParam(r, "role")
	if role == "" {
		respondError(w, http.StatusBadRequest, "role is required")
		return
	}

	prompt, err := h.admin.CurrentPrompt(r.Context(), role)
	if errors.Is(err, core.ErrInvalidRole) {
		respondError(w, http.StatusBadRequest, "role must be one of public, internal_researcher, policy_maker, external_researcher")
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "No prompt found for the given role")
		return
	}
	if err != nil {
		internalError(w, err, "Failed to get current prompt")
		return
	}
	respondJSON(w, http.StatusOK, prompt)
}

func (h *Handler) ListDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	categoryID := queryParam(r, "category_id")
	if categoryID == "" {
		respondError(w, http.StatusBadRequest, "category_id is required")
		return
	}

	documents, err := h.admin.ListDocuments(r.Context(), categoryID)
	if err != nil {
		internalError(w, err, "Failed to list documents")
		return
	}
	if documents == nil {
		documents = []store.Document{}
	}
	respondJSON(w, http.StatusOK, documents)
}

func (h *Handler) DocumentURLHandler(w http.ResponseWriter, r *http.Request) {
	documentID := queryParam(r, "document_id")
	if documentID == "" {
		respondError(w, http.StatusBadRequest, "document_id is required")
		return
	}
	if h.objects == nil {
		respondError(w, http.StatusServiceUnavailable, "Object storage is not configured")
		return
	}

	doc, err := h.admin.GetDocument(r.Context(), documentID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Document not found")
		return
	}
	if err != nil {
		internalError(w, err, "Failed to get document")
		return
	}
	if doc.S3FilePath == nil {
		respondError(w, http.StatusNotFound, "Document has no stored file")
		return
	}

	url, err := h.objects.PresignedDownloadURL(r.Context(), *doc.S3FilePath)
	if err != nil {
		internalError(w, err, "Failed to presign download URL")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"download_url": url})
}

func (h *Handler) UploadURLHandler(w http.ResponseWriter, r *http.Request) {
	categoryID := queryParam(r, "category_id")
	name := queryParam(r, "document_name")
	docType := queryParam(r, "document_type")
	if categoryID == "" || name == "" || docType == "" {
		respondError(w, http.StatusBadRequest, "category_id, document_name and document_type are required")
		return
	}
	if h.objects == nil {
		respondError(w, http.StatusServiceUnavailable, "Object storage is not configured")
		return
	}

	objectPath := storage.ObjectPath(categoryID, name, docType)
	url, err := h.objects.PresignedUploadURL(r.Context(), objectPath)
	if err != nil {
		internalError(w, err, "Failed to presign upload URL")
		return
	}

	doc, err := h.admin.AttachDocumentFile(r.Context(), categoryID, name, docType, objectPath)
	if err != nil {
		internalError(w, err, "Failed to record document file path")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"upload_url": url,
		"document":   doc,
	})
}
