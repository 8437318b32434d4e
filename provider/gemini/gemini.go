package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/mohammad-safakhou/lumina/config"
	"github.com/mohammad-safakhou/lumina/provider/models"
)

const (
	name               = "gemini"
	apiVersion         = "v1beta"
	defaultModel       = "gemini-2.5-flash"
	defaultImageModel  = "gemini-2.5-flash-image"
	defaultSpeechModel = "gemini-2.5-flash-preview-tts"
)

// Client implements the provider interfaces on the Gemini API through the
// genai SDK.
type Client struct {
	client      *genai.Client
	initErr     error
	hasKey      bool
	model       string
	imageModel  string
	speechModel string
	temperature float64
	maxTokens   int
}

// New builds a client from provider configuration. A missing API key is
// reported on each call rather than here. cfg.BaseURL is the API root
// without the version segment.
func New(cfg config.LLMProvider) *Client {
	c := &Client{
		hasKey:      cfg.APIKey != "",
		model:       cfg.Model,
		imageModel:  cfg.ImageModel,
		speechModel: cfg.SpeechModel,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.imageModel == "" {
		c.imageModel = defaultImageModel
	}
	if c.speechModel == "" {
		c.speechModel = defaultSpeechModel
	}
	if !c.hasKey {
		return c
	}
	c.client, c.initErr = genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
			APIVersion: apiVersion,
		},
	})
	return c
}

func (c *Client) baseConfig() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{MaxOutputTokens: int32(c.maxTokens)}
	if c.temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(c.temperature))
	}
	return cfg
}

// Generate returns the text of the first candidate. With a schema the model is
// asked for JSON matching it.
func (c *Client) Generate(ctx context.Context, prompt string, schema *models.Schema) (string, error) {
	cfg := c.baseConfig()
	if schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseJsonSchema = schema.Map()
	}
	resp, err := c.generate(ctx, c.model, []*genai.Content{userText(prompt)}, cfg)
	if err != nil {
		return "", err
	}
	return text(resp), nil
}

// Chat continues a conversation; history roles are "user" and "model".
func (c *Client) Chat(ctx context.Context, history []models.Message, message string) (string, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		role := models.RoleUser
		if m.Role == models.RoleModel || m.Role == "assistant" {
			role = models.RoleModel
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: m.Text}}})
	}
	contents = append(contents, userText(message))
	resp, err := c.generate(ctx, c.model, contents, c.baseConfig())
	if err != nil {
		return "", err
	}
	return text(resp), nil
}

// AnalyzeImage describes an inline image.
func (c *Client) AnalyzeImage(ctx context.Context, image models.Media, prompt string) (string, error) {
	if prompt == "" {
		prompt = "Describe this image in detail."
	}
	resp, err := c.generate(ctx, c.model, []*genai.Content{{
		Role:  models.RoleUser,
		Parts: []*genai.Part{inline(image), {Text: prompt}},
	}}, nil)
	if err != nil {
		return "", err
	}
	return text(resp), nil
}

// GenerateImage returns the first inline image the model produces.
func (c *Client) GenerateImage(ctx context.Context, prompt, aspectRatio string) (models.Media, error) {
	if aspectRatio == "" {
		aspectRatio = "1:1"
	}
	resp, err := c.generate(ctx, c.imageModel, []*genai.Content{userText(prompt)}, &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
		ImageConfig:        &genai.ImageConfig{AspectRatio: aspectRatio},
	})
	if err != nil {
		return models.Media{}, err
	}
	return media(resp)
}

// Transcribe turns inline audio into text.
func (c *Client) Transcribe(ctx context.Context, audio models.Media) (string, error) {
	if audio.MimeType == "" {
		audio.MimeType = "audio/wav"
	}
	resp, err := c.generate(ctx, c.model, []*genai.Content{{
		Role:  models.RoleUser,
		Parts: []*genai.Part{inline(audio), {Text: "Transcribe this audio exactly as spoken."}},
	}}, nil)
	if err != nil {
		return "", err
	}
	return text(resp), nil
}

// Speak synthesises text with a prebuilt voice.
func (c *Client) Speak(ctx context.Context, input, voice string) (models.Media, error) {
	if voice == "" {
		voice = "Kore"
	}
	resp, err := c.generate(ctx, c.speechModel, []*genai.Content{userText(input)}, &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	})
	if err != nil {
		return models.Media{}, err
	}
	return media(resp)
}

func (c *Client) generate(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if !c.hasKey {
		return nil, models.MissingCredentials(name)
	}
	if c.initErr != nil {
		return nil, models.NewError(name, models.KindTransport, c.initErr)
	}
	resp, err := c.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		reason := "no candidates"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "blocked: " + string(resp.PromptFeedback.BlockReason)
		}
		return nil, models.NewError(name, models.KindPayload, fmt.Errorf("%w: %s", models.ErrEmptyResponse, reason))
	}
	return resp, nil
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return statusError(apiErr.Code, err)
	}
	var apiPtr *genai.APIError
	if errors.As(err, &apiPtr) {
		return statusError(apiPtr.Code, err)
	}
	return models.NewError(name, models.KindTransport, err)
}

func statusError(code int, err error) error {
	kind := models.KindStatus
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		kind = models.KindCredentials
	}
	return &models.Error{Provider: name, Kind: kind, StatusCode: code, Err: err}
}

func userText(s string) *genai.Content {
	return &genai.Content{Role: models.RoleUser, Parts: []*genai.Part{{Text: s}}}
}

func text(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func media(resp *genai.GenerateContentResponse) (models.Media, error) {
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
			continue
		}
		return models.Media{MimeType: p.InlineData.MIMEType, Data: p.InlineData.Data}, nil
	}
	return models.Media{}, models.NewError(name, models.KindPayload, fmt.Errorf("%w: no inline data", models.ErrEmptyResponse))
}

func inline(m models.Media) *genai.Part {
	return &genai.Part{InlineData: &genai.Blob{MIMEType: m.MimeType, Data: m.Data}}
}
