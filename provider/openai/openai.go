package openai_provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/lumina/config"
	"github.com/mohammad-safakhou/lumina/provider/models"
	"github.com/mohammad-safakhou/lumina/utils"
)

const (
	name          = "openai"
	openaiAPIURL  = "https://api.openai.com/v1"
	defaultModel  = "gpt-4o-mini"
	editorSystem  = "You are a helpful writing assistant for a blog platform."
	jsonReminder  = "Respond only with JSON that matches the requested schema."
	assistantRole = "assistant"
)

// client implements the provider interface using OpenAI's chat completions API
type client struct {
	apiKey          string
	baseURL         string
	completionModel string
	temperature     float64
	maxTokens       int
	http            *utils.HTTPClient
}

// Message represents a message in a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

// request represents a request to the OpenAI API
type request struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// response represents a response from the OpenAI API
type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(cfg config.LLMProvider) *client {
	c := &client{
		apiKey:          cfg.APIKey,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		completionModel: cfg.Model,
		temperature:     cfg.Temperature,
		maxTokens:       cfg.MaxTokens,
		http:            utils.NewHTTPClient(cfg.Timeout),
	}
	if c.baseURL == "" {
		c.baseURL = openaiAPIURL
	}
	if c.completionModel == "" {
		c.completionModel = defaultModel
	}
	return c
}

// WithHTTPClient replaces the transport, mostly for tests.
func (c *client) WithHTTPClient(hc *http.Client) *client {
	c.http.WithClient(hc)
	return c
}

// Generate implements the provider interface
func (c *client) Generate(ctx context.Context, prompt string, schema *models.Schema) (string, error) {
	messages := []Message{{Role: "user", Content: prompt}}
	var format *responseFormat
	if schema != nil {
		messages = append([]Message{{Role: "system", Content: jsonReminder}}, messages...)
		format = &responseFormat{
			Type:       "json_schema",
			JSONSchema: &jsonSchemaFormat{Name: schema.Name, Schema: schema.Map()},
		}
	}
	return c.sendRequest(ctx, messages, format)
}

// Chat implements the provider interface
func (c *client) Chat(ctx context.Context, history []models.Message, message string) (string, error) {
	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: "system", Content: editorSystem})
	for _, m := range history {
		role := "user"
		if m.Role == models.RoleModel || m.Role == assistantRole {
			role = assistantRole
		}
		messages = append(messages, Message{Role: role, Content: m.Text})
	}
	messages = append(messages, Message{Role: "user", Content: message})
	return c.sendRequest(ctx, messages, nil)
}

// sendRequest sends a request to the OpenAI API
func (c *client) sendRequest(ctx context.Context, messages []Message, format *responseFormat) (string, error) {
	if c.apiKey == "" {
		return "", models.MissingCredentials(name)
	}
	requestBody := request{
		Model:          c.completionModel,
		Messages:       messages,
		Temperature:    c.temperature,
		MaxTokens:      c.maxTokens,
		ResponseFormat: format,
	}

	var openaiResp response
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/chat/completions", headers, requestBody, &openaiResp); err != nil {
		return "", models.Classify(name, err)
	}

	if len(openaiResp.Choices) == 0 {
		return "", models.NewError(name, models.KindPayload, fmt.Errorf("%w: no choices in response", models.ErrEmptyResponse))
	}

	return openaiResp.Choices[0].Message.Content, nil
}
