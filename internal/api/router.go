package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler, corsAllowOrigin string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling
	r.Use(requestLogger)
	r.Use(corsMiddleware(corsAllowOrigin))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("Unsupported route: %s %s", r.Method, r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path))
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Admin dashboard routes
	r.Route("/admin", func(r chi.Router) {
		r.Get("/analytics", h.AnalyticsHandler)

		r.Post("/create_category", h.CreateCategoryHandler)
		r.Get("/categories", h.ListCategoriesHandler)
		r.Put("/edit_category", h.EditCategoryHandler)
		r.Delete("/delete_category", h.DeleteCategoryHandler)

		r.Put("/update_metadata", h.UpdateMetadataHandler)
		r.Get("/documents", h.ListDocumentsHandler)
		r.Get("/document_url", h.DocumentURLHandler)
		r.Post("/upload_url", h.UploadURLHandler)

		r.Get("/conversation_history_preview", h.ConversationHistoryPreviewHandler)
		r.Get("/conversation_sessions", h.ConversationSessionsHandler)

		r.Get("/previous_prompts", h.PreviousPromptsHandler)
		r.Post("/insert_prompt", h.InsertPromptHandler)
		r.Get("/current_prompt", h.CurrentPromptHandler)

		r.Get("/get_feedback", h.GetFeedbackHandler)
		r.Get("/feedback_by_role", h.FeedbackByRoleHandler)
	})

	// Public chat routes
	r.Post("/chat", h.ChatHandler)
	r.Post("/feedback", h.FeedbackIntakeHandler)

	return r
}
