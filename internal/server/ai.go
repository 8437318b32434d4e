package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/lumina/provider"
	"github.com/mohammad-safakhou/lumina/provider/models"
)

const (
	defaultEditInstruction = "Improve grammar, clarity, and flow."
	titleSnippetLimit      = 2000
	metadataSnippetLimit   = 3000
)

var (
	imageDataPrefix = regexp.MustCompile(`^data:image/\w+;base64,`)
	audioDataPrefix = regexp.MustCompile(`^data:audio/\w+;base64,`)

	metadataSchema = models.MustSchemaFor("post_metadata", Metadata{})
	metadataFailed = Metadata{Summary: "Analysis failed", Tags: []string{"General"}}
)

// AIHandler proxies the editing assistant and the multimodal endpoints.
// Media routes answer 501 when no multimodal provider is configured.
type AIHandler struct {
	Editing provider.Provider
	Media   provider.MediaProvider
	Logger  *log.Logger
}

func (h *AIHandler) Register(g *echo.Group) {
	g.POST("/improve-content", h.improve)
	g.POST("/generate-title", h.title)
	g.POST("/generate-metadata", h.metadata)
	g.POST("/chat", h.chat)
	g.POST("/analyze-image", h.analyzeImage)
	g.POST("/generate-image", h.generateImage)
	g.POST("/transcribe-audio", h.transcribe)
	g.POST("/generate-speech", h.speech)
}

func (h *AIHandler) fail(op string, err error) error {
	if h.Logger != nil {
		h.Logger.Printf("%s: %v", op, err)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "Failed to "+op)
}

func (h *AIHandler) editing() (provider.Provider, error) {
	if h.Editing == nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "editing provider not configured")
	}
	return h.Editing, nil
}

func (h *AIHandler) media() (provider.MediaProvider, error) {
	if h.Media == nil {
		return nil, echo.NewHTTPError(http.StatusNotImplemented, "media provider not configured")
	}
	return h.Media, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Improve content
//
//	@Summary	Edit HTML content following an instruction
//	@Tags		ai
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		ImproveRequest	true	"Content and instruction"
//	@Success	200		{object}	DraftResponse
//	@Failure	400		{object}	HTTPError
//	@Router		/api/ai/improve-content [post]
func (h *AIHandler) improve(c echo.Context) error {
	var req ImproveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Content is required")
	}
	llm, err := h.editing()
	if err != nil {
		return err
	}
	instruction := strings.TrimSpace(req.Instruction)
	if instruction == "" {
		instruction = defaultEditInstruction
	}
	prompt := fmt.Sprintf("Act as a professional editor.\nTask: %s\nContent: %s\nOutput: Return ONLY the updated HTML content.", instruction, req.Content)
	out, err := llm.Generate(c.Request().Context(), prompt, nil)
	if err != nil {
		return h.fail("improve content", err)
	}
	if strings.TrimSpace(out) == "" {
		out = req.Content
	}
	return c.JSON(http.StatusOK, DraftResponse{Content: out})
}

// Generate title
//
//	@Summary	Suggest a title for post content
//	@Tags		ai
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		ContentRequest	true	"Post content"
//	@Success	200		{object}	TitleResponse
//	@Failure	400		{object}	HTTPError
//	@Router		/api/ai/generate-title [post]
func (h *AIHandler) title(c echo.Context) error {
	var req ContentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Content is required")
	}
	llm, err := h.editing()
	if err != nil {
		return err
	}
	prompt := "Read the following blog post content and generate a single, catchy, SEO-optimized title for it. Return ONLY the title text, no quotes.\n\nContent Snippet:\n" +
		truncateRunes(req.Content, titleSnippetLimit)
	out, err := llm.Generate(c.Request().Context(), prompt, nil)
	if err != nil {
		return h.fail("generate title", err)
	}
	return c.JSON(http.StatusOK, TitleResponse{Title: strings.TrimSpace(out)})
}

// Generate metadata
//
//	@Summary		Summarise content and suggest tags
//	@Description	Always answers 200; failures produce a placeholder summary
//	@Tags			ai
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		ContentRequest	true	"Post content"
//	@Success		200		{object}	Metadata
//	@Router			/api/ai/generate-metadata [post]
func (h *AIHandler) metadata(c echo.Context) error {
	var req ContentRequest
	if err := c.Bind(&req); err != nil || h.Editing == nil {
		return c.JSON(http.StatusOK, metadataFailed)
	}
	prompt := "Analyze this content and return JSON with a 'summary' (2 sentences) and 'tags' (5 keywords).\n\n" +
		truncateRunes(req.Content, metadataSnippetLimit)
	out, err := h.Editing.Generate(c.Request().Context(), prompt, metadataSchema)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Printf("generate metadata: %v", err)
		}
		return c.JSON(http.StatusOK, metadataFailed)
	}
	var md Metadata
	if err := json.Unmarshal([]byte(models.ExtractJSON(out)), &md); err != nil {
		if h.Logger != nil {
			h.Logger.Printf("generate metadata: decode: %v", err)
		}
		return c.JSON(http.StatusOK, metadataFailed)
	}
	if md.Tags == nil {
		md.Tags = []string{}
	}
	return c.JSON(http.StatusOK, md)
}

func (t ChatTurn) message() models.Message {
	text := t.Text
	if text == "" {
		parts := make([]string, 0, len(t.Parts))
		for _, p := range t.Parts {
			parts = append(parts, p.Text)
		}
		text = strings.Join(parts, "")
	}
	role := models.RoleUser
	if t.Role == models.RoleModel || t.Role == "assistant" {
		role = models.RoleModel
	}
	return models.Message{Role: role, Text: text}
}

// Chat
//
//	@Summary	Continue a writing-assistant conversation
//	@Tags		ai
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		ChatRequest	true	"History and new message"
//	@Success	200		{object}	ChatResponse
//	@Failure	400		{object}	HTTPError
//	@Router		/api/ai/chat [post]
func (h *AIHandler) chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Message is required")
	}
	llm, err := h.editing()
	if err != nil {
		return err
	}
	history := make([]models.Message, 0, len(req.History))
	for _, t := range req.History {
		history = append(history, t.message())
	}
	out, err := llm.Chat(c.Request().Context(), history, req.Message)
	if err != nil {
		return h.fail("process chat", err)
	}
	return c.JSON(http.StatusOK, ChatResponse{Response: out})
}

func decodeInline(raw string, prefix *regexp.Regexp) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(prefix.ReplaceAllString(strings.TrimSpace(raw), ""))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid base64 payload")
	}
	return data, nil
}

// Analyze image
//
//	@Summary	Describe an image
//	@Tags		ai
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		AnalyzeImageRequest	true	"Base64 image and prompt"
//	@Success	200		{object}	map[string]string
//	@Failure	400		{object}	HTTPError
//	@Failure	501		{object}	HTTPError
//	@Router		/api/ai/analyze-image [post]
func (h *AIHandler) analyzeImage(c echo.Context) error {
	var req AnalyzeImageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Image) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Image data is required")
	}
	mp, err := h.media()
	if err != nil {
		return err
	}
	data, err := decodeInline(req.Image, imageDataPrefix)
	if err != nil {
		return err
	}
	out, err := mp.AnalyzeImage(c.Request().Context(), models.Media{MimeType: "image/jpeg", Data: data}, req.Prompt)
	if err != nil {
		return h.fail("analyze image", err)
	}
	if strings.TrimSpace(out) == "" {
		out = "No analysis available."
	}
	return c.JSON(http.StatusOK, map[string]string{"analysis": out})
}

// Generate image
//
//	@Summary	Generate an image from a prompt
//	@Tags		ai
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		GenerateImageRequest	true	"Prompt and aspect ratio"
//	@Success	200		{object}	map[string]string
//	@Failure	400		{object}	HTTPError
//	@Failure	501		{object}	HTTPError
//	@Router		/api/ai/generate-image [post]
func (h *AIHandler) generateImage(c echo.Context) error {
	var req GenerateImageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Prompt is required")
	}
	mp, err := h.media()
	if err != nil {
		return err
	}
	if req.AspectRatio == "" {
		req.AspectRatio = "1:1"
	}
	img, err := mp.GenerateImage(c.Request().Context(), req.Prompt, req.AspectRatio)
	if errors.Is(err, models.ErrEmptyResponse) || (err == nil && len(img.Data) == 0) {
		return echo.NewHTTPError(http.StatusInternalServerError, "No image generated")
	}
	if err != nil {
		return h.fail("generate image", err)
	}
	mime := img.MimeType
	if mime == "" {
		mime = "image/png"
	}
	return c.JSON(http.StatusOK, map[string]string{
		"image": "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
	})
}

// Transcribe audio
//
//	@Summary	Transcribe base64 audio
//	@Tags		ai
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		TranscribeRequest	true	"Base64 audio"
//	@Success	200		{object}	map[string]string
//	@Failure	400		{object}	HTTPError
//	@Failure	501		{object}	HTTPError
//	@Router		/api/ai/transcribe-audio [post]
func (h *AIHandler) transcribe(c echo.Context) error {
	var req TranscribeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Audio) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Audio data is required")
	}
	mp, err := h.media()
	if err != nil {
		return err
	}
	data, err := decodeInline(req.Audio, audioDataPrefix)
	if err != nil {
		return err
	}
	out, err := mp.Transcribe(c.Request().Context(), models.Media{MimeType: req.MimeType, Data: data})
	if err != nil {
		return h.fail("transcribe audio", err)
	}
	return c.JSON(http.StatusOK, map[string]string{"transcription": out})
}

// Generate speech
//
//	@Summary	Synthesise speech
//	@Tags		ai
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		SpeechRequest	true	"Text and optional voice"
//	@Success	200		{object}	map[string]string
//	@Failure	400		{object}	HTTPError
//	@Failure	501		{object}	HTTPError
//	@Router		/api/ai/generate-speech [post]
func (h *AIHandler) speech(c echo.Context) error {
	var req SpeechRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Text is required")
	}
	mp, err := h.media()
	if err != nil {
		return err
	}
	if req.Voice == "" {
		req.Voice = "Kore"
	}
	audio, err := mp.Speak(c.Request().Context(), req.Text, req.Voice)
	if errors.Is(err, models.ErrEmptyResponse) || (err == nil && len(audio.Data) == 0) {
		return echo.NewHTTPError(http.StatusInternalServerError, "No audio generated")
	}
	if err != nil {
		return h.fail("generate speech", err)
	}
	return c.JSON(http.StatusOK, map[string]string{"audio": base64.StdEncoding.EncodeToString(audio.Data)})
}
