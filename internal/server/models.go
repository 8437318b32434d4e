package server

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/mohammad-safakhou/lumina/internal/store"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// MessageResponse carries a human readable confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by signup and login.
type AuthResponse struct {
	User  store.User `json:"user"`
	Token string     `json:"token"`
}

// MeResponse wraps the current user.
type MeResponse struct {
	User store.User `json:"user"`
}

// PostRequest is the create and update payload. Pointer fields distinguish
// "absent" from "empty" on update.
type PostRequest struct {
	Title       *string      `json:"title"`
	Content     *string      `json:"content"`
	Summary     *string      `json:"summary"`
	Tags        *[]string    `json:"tags"`
	CoverImage  *string      `json:"coverImage"`
	Status      *string      `json:"status"`
	ScheduledAt NullableTime `json:"scheduledAt"`
}

// NullableTime records whether a JSON field was present, and whether it was null.
type NullableTime struct {
	Set   bool
	Value *time.Time
}

func (n *NullableTime) UnmarshalJSON(b []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		n.Value = nil
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == "" {
		n.Value = nil
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return err
	}
	n.Value = &t
	return nil
}

// CommentRequest is the create-comment payload.
type CommentRequest struct {
	Content string `json:"content"`
}

// SearchResponse lists posts matching a full-text query, best first.
type SearchResponse struct {
	Query string       `json:"query"`
	Posts []store.Post `json:"posts"`
}

// DraftRequest asks the pipeline for a draft.
type DraftRequest struct {
	Title        string `json:"title"`
	Instructions string `json:"instructions"`
}

// Topic joins title and instructions the way the pipeline expects.
func (r DraftRequest) Topic() string {
	if r.Instructions == "" {
		return r.Title
	}
	return r.Title + ". " + r.Instructions
}

// DraftResponse carries generated HTML.
type DraftResponse struct {
	Content string `json:"content"`
}

// DraftFailure is the body of a failed blocking draft.
type DraftFailure struct {
	Error    string `json:"error"`
	Details  string `json:"details"`
	Fallback string `json:"fallback"`
}

// ImproveRequest asks for an edited version of content.
type ImproveRequest struct {
	Content     string `json:"content"`
	Instruction string `json:"instruction"`
}

// ContentRequest carries post content for title or metadata generation.
type ContentRequest struct {
	Content string `json:"content"`
}

// TitleResponse carries a generated title.
type TitleResponse struct {
	Title string `json:"title"`
}

// Metadata is the structured summary and tags produced for a post.
type Metadata struct {
	Summary string   `json:"summary" jsonschema:"description=Two sentence summary"`
	Tags    []string `json:"tags" jsonschema:"description=Five keywords"`
}

// ChatTurn is one history entry. Both {role,text} and {role,parts:[{text}]}
// shapes are accepted.
type ChatTurn struct {
	Role  string `json:"role"`
	Text  string `json:"text"`
	Parts []struct {
		Text string `json:"text"`
	} `json:"parts"`
}

// ChatRequest continues a conversation.
type ChatRequest struct {
	History []ChatTurn `json:"history"`
	Message string     `json:"message"`
}

// ChatResponse carries the model reply.
type ChatResponse struct {
	Response string `json:"response"`
}

// AnalyzeImageRequest carries a base64 image, optionally as a data URL.
type AnalyzeImageRequest struct {
	Image  string `json:"image"`
	Prompt string `json:"prompt"`
}

// GenerateImageRequest asks for an image.
type GenerateImageRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio"`
}

// TranscribeRequest carries base64 audio.
type TranscribeRequest struct {
	Audio    string `json:"audio"`
	MimeType string `json:"mimeType"`
}

// SpeechRequest asks for spoken audio.
type SpeechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// UploadResponse carries the public URL of an uploaded image.
type UploadResponse struct {
	URL string `json:"url"`
}

// FixSummariesResponse reports the posts whose summaries were regenerated.
type FixSummariesResponse struct {
	Message string             `json:"message"`
	Updates []store.SummaryFix `json:"updates"`
}
