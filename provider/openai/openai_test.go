package openai_provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mohammad-safakhou/lumina/config"
	"github.com/mohammad-safakhou/lumina/provider/models"
)

func TestGenerateWithSchema(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"tags\":[]}"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(config.LLMProvider{APIKey: "k", BaseURL: srv.URL})
	schema, err := models.SchemaFor("metadata", &tagsOutput{})
	if err != nil {
		t.Fatalf("SchemaFor: %v", err)
	}
	out, err := c.Generate(context.Background(), "analyze", schema)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != `{"tags":[]}` {
		t.Fatalf("unexpected output %q", out)
	}
	if got.Model != defaultModel {
		t.Fatalf("expected default model, got %q", got.Model)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_schema" || got.ResponseFormat.JSONSchema.Name != "metadata" {
		t.Fatalf("unexpected response format %+v", got.ResponseFormat)
	}
	if len(got.Messages) != 2 || got.Messages[1].Content != "analyze" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
}

type tagsOutput struct {
	Tags []string `json:"tags"`
}

func TestChatMapsModelRole(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(config.LLMProvider{APIKey: "k", BaseURL: srv.URL})
	if _, err := c.Chat(context.Background(), []models.Message{{Role: "model", Text: "prev"}}, "next"); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(got.Messages) != 3 || got.Messages[1].Role != "assistant" || got.Messages[2].Content != "next" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
}

func TestGenerateNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(config.LLMProvider{APIKey: "k", BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), "x", nil)
	var perr *models.Error
	if !errors.As(err, &perr) || perr.Kind != models.KindPayload {
		t.Fatalf("expected payload error, got %v", err)
	}
}

func TestGenerateMissingKey(t *testing.T) {
	c := NewOpenAIClient(config.LLMProvider{})
	if _, err := c.Generate(context.Background(), "x", nil); !errors.Is(err, models.ErrMissingCredentials) {
		t.Fatalf("expected missing credentials, got %v", err)
	}
}
