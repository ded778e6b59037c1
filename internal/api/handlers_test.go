package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fisheries.gov/smartsearch/internal/core"
	"fisheries.gov/smartsearch/internal/store"
)

// fakeAdminStore is an in-memory AdminStore for handler tests.
type fakeAdminStore struct {
	mu sync.Mutex

	categories      []store.Category
	documents       []store.Document
	sessionFeedback map[string][]store.Feedback
	prompts         []store.Prompt
	auditTypes      []string

	currentPromptCalls int
	seq                int
}

func newFakeAdminStore() *fakeAdminStore {
	return &fakeAdminStore{sessionFeedback: map[string][]store.Feedback{}}
}

func (f *fakeAdminStore) nextTime() time.Time {
	f.seq++
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(f.seq) * time.Minute)
}

func (f *fakeAdminStore) CreateCategory(_ context.Context, name string, number int) (*store.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := store.Category{CategoryID: uuid.NewString(), CategoryName: name, CategoryNumber: number}
	f.categories = append(f.categories, c)
	f.auditTypes = append(f.auditTypes, store.EngagementCategoryCreated)
	return &c, nil
}

func (f *fakeAdminStore) ListCategories(_ context.Context) ([]store.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]store.Category{}, f.categories...)
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryNumber < out[j].CategoryNumber })
	return out, nil
}

func (f *fakeAdminStore) UpdateCategory(_ context.Context, id, name string, number int) (*store.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.categories {
		if f.categories[i].CategoryID == id {
			f.categories[i].CategoryName = name
			f.categories[i].CategoryNumber = number
			f.auditTypes = append(f.auditTypes, store.EngagementCategoryEdited)
			c := f.categories[i]
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeAdminStore) DeleteCategory(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.categories {
		if f.categories[i].CategoryID == id {
			f.categories = append(f.categories[:i], f.categories[i+1:]...)
			f.auditTypes = append(f.auditTypes, store.EngagementCategoryDeleted)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeAdminStore) UpsertDocumentMetadata(_ context.Context, categoryID, name, docType string, metadata json.RawMessage) (*store.Document, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.documents {
		d := &f.documents[i]
		if d.CategoryID == categoryID && d.DocumentName == name && d.DocumentType == docType {
			d.Metadata = metadata
			out := *d
			return &out, false, nil
		}
	}
	d := store.Document{
		DocumentID:   uuid.NewString(),
		CategoryID:   categoryID,
		DocumentName: name,
		DocumentType: docType,
		Metadata:     metadata,
		TimeCreated:  f.nextTime(),
	}
	f.documents = append(f.documents, d)
	return &d, true, nil
}

func (f *fakeAdminStore) ListDocumentsByCategory(_ context.Context, categoryID string) ([]store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Document
	for _, d := range f.documents {
		if d.CategoryID == categoryID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeAdminStore) GetDocumentByID(_ context.Context, documentID string) (*store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.documents {
		if d.DocumentID == documentID {
			out := d
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeAdminStore) SetDocumentFilePath(_ context.Context, categoryID, name, docType, filePath string) (*store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.documents {
		d := &f.documents[i]
		if d.CategoryID == categoryID && d.DocumentName == name && d.DocumentType == docType {
			d.S3FilePath = &filePath
			out := *d
			return &out, nil
		}
	}
	d := store.Document{
		DocumentID:   uuid.NewString(),
		CategoryID:   categoryID,
		S3FilePath:   &filePath,
		DocumentName: name,
		DocumentType: docType,
		Metadata:     json.RawMessage(`{}`),
		TimeCreated:  f.nextTime(),
	}
	f.documents = append(f.documents, d)
	out := d
	return &out, nil
}

func (f *fakeAdminStore) Analytics(_ context.Context, timeFrame store.TimeFrame) (*store.AnalyticsReport, error) {
	now := time.Now()
	return &store.AnalyticsReport{
		UniqueUsersPerMonth:     []store.UniqueUserBucket{},
		MessagesPerRolePerMonth: []store.RoleMessageBucket{},
		AvgFeedbackPerRole:      []store.RoleFeedback{},
		TimeFrame:               string(timeFrame),
		DateRange:               store.DateRange{Start: now.Format("2006-01-02"), End: now.Format("2006-01-02")},
	}, nil
}

func (f *fakeAdminStore) ConversationPreview(_ context.Context) (map[string][]store.EngagementLogEntry, error) {
	preview := map[string][]store.EngagementLogEntry{}
	for _, role := range store.EngagementRoles {
		preview[role] = []store.EngagementLogEntry{}
	}
	return preview, nil
}

func (f *fakeAdminStore) ConversationSessions(_ context.Context, role string, _, _ *time.Time, page, limit int) (*store.SessionPage, error) {
	return &store.SessionPage{Sessions: []store.SessionSummary{}, Page: page, Limit: limit}, nil
}

func (f *fakeAdminStore) FeedbackByRole(_ context.Context, role string, page, limit int) (*store.FeedbackPage, error) {
	return &store.FeedbackPage{Feedback: []store.Feedback{}, Page: page, Limit: limit, AverageRating: "no feedback yet"}, nil
}

func (f *fakeAdminStore) FeedbackBySession(_ context.Context, sessionID string) ([]store.Feedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := f.sessionFeedback[sessionID]
	if len(entries) == 0 {
		return nil, store.ErrNotFound
	}
	return entries, nil
}

func (f *fakeAdminStore) InsertPrompt(_ context.Context, role, text string) (*store.Prompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := store.Prompt{PromptID: uuid.NewString(), Role: role, Prompt: text, TimeCreated: f.nextTime()}
	f.prompts = append(f.prompts, p)
	return &p, nil
}

func (f *fakeAdminStore) CurrentPrompt(_ context.Context, role string) (*store.Prompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentPromptCalls++
	for i := len(f.prompts) - 1; i >= 0; i-- {
		if f.prompts[i].Role == role {
			p := f.prompts[i]
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeAdminStore) PreviousPrompts(_ context.Context) (map[string][]store.PromptVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	history := map[string][]store.PromptVersion{}
	for _, role := range store.PromptRoles {
		history[role] = []store.PromptVersion{}
	}
	latest := map[string]time.Time{}
	for _, p := range f.prompts {
		if p.TimeCreated.After(latest[p.Role]) {
			latest[p.Role] = p.TimeCreated
		}
	}
	for _, p := range f.prompts {
		if p.TimeCreated.Before(latest[p.Role]) {
			history[p.Role] = append(history[p.Role], store.PromptVersion{Prompt: p.Prompt, TimeCreated: p.TimeCreated})
		}
	}
	return history, nil
}

type fakePresigner struct{}

func (fakePresigner) PresignedDownloadURL(_ context.Context, objectPath string) (string, error) {
	return "https://files.example/download/" + objectPath, nil
}

func (fakePresigner) PresignedUploadURL(_ context.Context, objectPath string) (string, error) {
	return "https://files.example/upload/" + objectPath, nil
}

func newTestServer(t *testing.T) (*fakeAdminStore, http.Handler) {
	t.Helper()
	fake := newFakeAdminStore()
	admin := core.NewAdminService(fake)
	handler := NewHandler(admin, nil, fakePresigner{})
	return fake, NewRouter(handler, "*")
}

func doRequest(t *testing.T, router http.Handler, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateCategory(t *testing.T) {
	fake, router := newTestServer(t)

	rec := doRequest(t, router, http.MethodPost, "/admin/create_category?category_name=Fisheries&category_number=3", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var category store.Category
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &category))
	assert.NotEmpty(t, category.CategoryID)
	assert.Equal(t, "Fisheries", category.CategoryName)
	assert.Equal(t, 3, category.CategoryNumber)
	assert.Equal(t, []string{store.EngagementCategoryCreated}, fake.auditTypes)
}

func TestCreateCategoryMissingParams(t *testing.T) {
	fake, router := newTestServer(t)

	rec := doRequest(t, router, http.MethodPost, "/admin/create_category?category_name=Fisheries", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, fake.categories)
	assert.Empty(t, fake.auditTypes)
}

func TestListCategoriesOrderedByNumber(t *testing.T) {
	_, router := newTestServer(t)

	for _, q := range []string{
		"category_name=Aquaculture&category_number=5",
		"category_name=Fisheries&category_number=1",
		"category_name=Habitat&category_number=3",
	} {
		rec := doRequest(t, router, http.MethodPost, "/admin/create_category?"+q, "")
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doRequest(t, router, http.MethodGet, "/admin/categories", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var categories []store.Category
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &categories))
	require.Len(t, categories, 3)
	assert.Equal(t, []int{1, 3, 5}, []int{categories[0].CategoryNumber, categories[1].CategoryNumber, categories[2].CategoryNumber})
}

func TestEditCategoryNotFound(t *testing.T) {
	fake, router := newTestServer(t)

	rec := doRequest(t, router, http.MethodPut,
		"/admin/edit_category?category_id="+uuid.NewString()+"&category_name=Renamed&category_number=7", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, fake.auditTypes, "a failed edit must not write an audit entry")
}

func TestDeleteCategoryLifecycle(t *testing.T) {
	_, router := newTestServer(t)

	rec := doRequest(t, router, http.MethodPost, "/admin/create_category?category_name=Fisheries&category_number=1", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var category store.Category
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &category))

	rec = doRequest(t, router, http.MethodDelete, "/admin/delete_category?category_id="+category.CategoryID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "deleted")

	rec = doRequest(t, router, http.MethodGet, "/admin/categories", "")
	var categories []store.Category
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &categories))
	assert.Empty(t, categories)

	rec = doRequest(t, router, http.MethodDelete, "/admin/delete_category?category_id="+category.CategoryID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateMetadataUpsert(t *testing.T) {
	fake, router := newTestServer(t)
	categoryID := uuid.NewString()
	target := "/admin/update_metadata?category_id=" + categoryID + "&document_name=quota-report&document_type=pdf"

	rec := doRequest(t, router, http.MethodPut, target, `{"metadata":{"pages":10}}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, router, http.MethodPut, target, `{"metadata":{"pages":12}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, fake.documents, 1, "upsert must not duplicate the document row")
	assert.JSONEq(t, `{"pages":12}`, string(fake.documents[0].Metadata))
	assert.Nil(t, fake.documents[0].S3FilePath)
}

func TestUpdateMetadataRequiresBody(t *testing.T) {
	_, router := newTestServer(t)

	rec := doRequest(t, router, http.MethodPut,
		"/admin/update_metadata?category_id="+uuid.NewString()+"&document_name=x&document_type=pdf", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInsertPromptInvalidRole(t *testing.T) {
	fake, router := newTestServer(t)

	rec := doRequest(t, router, http.MethodPost, "/admin/insert_prompt?role=fishmonger", `{"prompt":"hello"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, fake.prompts, "an invalid role must not insert a prompt")
}

func TestPreviousPromptsPartitionedByRole(t *testing.T) {
	_, router := newTestServer(t)

	rec := doRequest(t, router, http.MethodPost, "/admin/insert_prompt?role=public", `{"prompt":"first public"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doRequest(t, router, http.MethodPost, "/admin/insert_prompt?role=public", `{"prompt":"second public"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doRequest(t, router, http.MethodPost, "/admin/insert_prompt?role=policy_maker", `{"prompt":"policy"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/admin/previous_prompts", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var history map[string][]store.PromptVersion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))

	require.Len(t, history[store.RolePublic], 1)
	assert.Equal(t, "first public", history[store.RolePublic][0].Prompt)
	assert.Empty(t, history[store.RolePolicyMaker], "a role's only prompt is current, not previous")
	assert.Empty(t, history[store.RoleInternalResearcher])
	assert.Empty(t, history[store.RoleExternalResearcher])
}

func TestCurrentPromptNotFound(t *testing.T) {
	_, router := newTestServer(t)

	rec := doRequest(t, router, http.MethodGet, "/admin/current_prompt?role=public", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetFeedbackNotFound(t *testing.T) {
	_, router := newTestServer(t)

	rec := doRequest(t, router, http.MethodGet, "/admin/get_feedback?session_id="+uuid.NewString(), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"No feedback found for the given session_id"}`, rec.Body.String())
}

func TestGetFeedbackReturnsEntries(t *testing.T) {
	fake, router := newTestServer(t)
	sessionID := uuid.NewString()
	fake.sessionFeedback[sessionID] = []store.Feedback{
		{FeedbackID: uuid.NewString(), SessionID: sessionID, Rating: 4, Description: "helpful"},
	}

	rec := doRequest(t, router, http.MethodGet, "/admin/get_feedback?session_id="+sessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []store.Feedback
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "helpful", entries[0].Description)
}

func TestAnalyticsDefaultTimeFrame(t *testing.T) {
	_, router := newTestServer(t)

	rec := doRequest(t, router, http.MethodGet, "/admin/analytics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var report store.AnalyticsReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "month", report.TimeFrame)
}

func TestConversationSessionsRequiresRole(t *testing.T) {
	_, router := newTestServer(t)

	rec := doRequest(t, router, http.MethodGet, "/admin/conversation_sessions", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversationSessionsRejectsBadDates(t *testing.T) {
	_, router := newTestServer(t)

	rec := doRequest(t, router, http.MethodGet, "/admin/conversation_sessions?user_role=public&start_date=last-tuesday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeedbackByRoleRequiresRole(t *testing.T) {
	_, router := newTestServer(t)

	rec := doRequest(t, router, http.MethodGet, "/admin/feedback_by_role", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRouteReturns404(t *testing.T) {
	_, router := newTestServer(t)

	rec := doRequest(t, router, http.MethodGet, "/admin/does_not_exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWrongMethodReturns405(t *testing.T) {
	_, router := newTestServer(t)

	rec := doRequest(t, router, http.MethodPatch, "/admin/categories", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSHeaders(t *testing.T) {
	_, router := newTestServer(t)

	rec := doRequest(t, router, http.MethodGet, "/admin/categories", "")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = doRequest(t, router, http.MethodOptions, "/admin/categories", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestDocumentURL(t *testing.T) {
	fake, router := newTestServer(t)
	path := "cat/quota-report.pdf"
	doc, err := fake.SetDocumentFilePath(context.Background(), uuid.NewString(), "quota-report", "pdf", path)
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodGet, "/admin/document_url?document_id="+doc.DocumentID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://files.example/download/"+path)
}

func TestDocumentURLWithoutStoredFile(t *testing.T) {
	fake, router := newTestServer(t)
	doc, _, err := fake.UpsertDocumentMetadata(context.Background(), uuid.NewString(), "quota-report", "pdf", json.RawMessage(`{}`))
	require.NoError(t, err)

	rec := doRequest(t, router, http.MethodGet, "/admin/document_url?document_id="+doc.DocumentID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocumentURLWithoutObjectStorage(t *testing.T) {
	fake := newFakeAdminStore()
	handler := NewHandler(core.NewAdminService(fake), nil, nil)
	router := NewRouter(handler, "*")

	rec := doRequest(t, router, http.MethodGet, "/admin/document_url?document_id="+uuid.NewString(), "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUploadURLRecordsFilePath(t *testing.T) {
	fake, router := newTestServer(t)
	categoryID := uuid.NewString()

	rec := doRequest(t, router, http.MethodPost,
		"/admin/upload_url?category_id="+categoryID+"&document_name=survey&document_type=csv", "")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, fake.documents, 1)
	require.NotNil(t, fake.documents[0].S3FilePath)
	assert.Equal(t, categoryID+"/survey.csv", *fake.documents[0].S3FilePath)
	assert.Contains(t, rec.Body.String(), "https://files.example/upload/")
}
