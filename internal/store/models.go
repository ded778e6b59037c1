package store

import (
	"encoding/json"
	"time"
)

// User roles recognized by the chat frontend. The four prompt roles each
// have their own system prompt; engagement rows with no recorded role are
// reported under "unknown".
const (
	RolePublic             = "public"
	RoleInternalResearcher = "internal_researcher"
	RolePolicyMaker        = "policy_maker"
	RoleExternalResearcher = "external_researcher"
	RoleUnknown            = "unknown"
)

var PromptRoles = []string{
	RolePublic,
	RoleInternalResearcher,
	RolePolicyMaker,
	RoleExternalResearcher,
}

var EngagementRoles = []string{
	RolePublic,
	RoleInternalResearcher,
	RolePolicyMaker,
	RoleExternalResearcher,
	RoleUnknown,
}

func IsPromptRole(role string) bool {
	for _, r := range PromptRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Engagement event types written to user_engagement_log.
const (
	EngagementMessageCreation = "message creation"
	EngagementCategoryCreated = "category creation"
	EngagementCategoryEdited  = "category edited"
	EngagementCategoryDeleted = "category deleted"
)

type Category struct {
	CategoryID     string `json:"category_id"`
	CategoryName   string `json:"category_name"`
	CategoryNumber int    `json:"category_number"`
}

type Document struct {
	DocumentID   string          `json:"document_id"`
	CategoryID   string          `json:"category_id"`
	S3FilePath   *string         `json:"document_s3_file_path"` // Nullable, set once a file is uploaded
	DocumentName string          `json:"document_name"`
	DocumentType string          `json:"document_type"`
	Metadata     json.RawMessage `json:"metadata"`
	TimeCreated  time.Time       `json:"time_created"`
}

type EngagementLogEntry struct {
	LogID             string    `json:"log_id"`
	SessionID         *string   `json:"session_id"` // NULL for administrative audit events
	Timestamp         time.Time `json:"timestamp"`
	EngagementType    string    `json:"engagement_type"`
	UserInfo          *string   `json:"user_info"`
	UserRole          string    `json:"user_role"`
	EngagementDetails string    `json:"engagement_details"`
}

type Feedback struct {
	FeedbackID  string    `json:"feedback_id"`
	SessionID   string    `json:"session_id"`
	Rating      float64   `json:"feedback_rating"`
	Description string    `json:"feedback_description"`
	Timestamp   time.Time `json:"timestamp"`
}

type Prompt struct {
	PromptID    string    `json:"prompt_id"`
	Role        string    `json:"role"`
	Prompt      string    `json:"prompt"`
	TimeCreated time.Time `json:"time_created"`
}

// PromptVersion is the lightweight shape returned for prompt history.
type PromptVersion struct {
	Prompt      string    `json:"prompt"`
	TimeCreated time.Time `json:"time_created"`
}
