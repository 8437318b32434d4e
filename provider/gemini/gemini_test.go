package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/lumina/config"
	"github.com/mohammad-safakhou/lumina/provider/models"
)

// request mirrors the parts of the generateContent body the tests inspect.
type request struct {
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
	GenerationConfig *struct {
		ResponseMimeType   string         `json:"responseMimeType"`
		ResponseJSONSchema map[string]any `json:"responseJsonSchema"`
		ResponseModalities []string       `json:"responseModalities"`
		ImageConfig        *struct {
			AspectRatio string `json:"aspectRatio"`
		} `json:"imageConfig"`
		SpeechConfig *struct {
			VoiceConfig struct {
				PrebuiltVoiceConfig struct {
					VoiceName string `json:"voiceName"`
				} `json:"prebuiltVoiceConfig"`
			} `json:"voiceConfig"`
		} `json:"speechConfig"`
	} `json:"generationConfig"`
}

type okOutput struct {
	OK bool `json:"ok"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(config.LLMProvider{APIKey: "test-key", BaseURL: srv.URL, Model: "m"})
	if c.initErr != nil {
		t.Fatalf("genai client: %v", c.initErr)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestGenerateSendsSchema(t *testing.T) {
	var got request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/m:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"ok\":"},{"text":"true}"}]}}]}`)
	})

	schema, err := models.SchemaFor("ok", &okOutput{})
	if err != nil {
		t.Fatalf("SchemaFor: %v", err)
	}
	out, err := c.Generate(context.Background(), "hello", schema)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != `{"ok":true}` {
		t.Fatalf("unexpected output %q", out)
	}
	if got.GenerationConfig == nil || got.GenerationConfig.ResponseMimeType != "application/json" {
		t.Fatalf("expected json response mime type, got %+v", got.GenerationConfig)
	}
	if got.GenerationConfig.ResponseJSONSchema["type"] != "object" {
		t.Fatalf("expected schema in request, got %+v", got.GenerationConfig.ResponseJSONSchema)
	}
	if len(got.Contents) != 1 || got.Contents[0].Parts[0].Text != "hello" {
		t.Fatalf("unexpected contents %+v", got.Contents)
	}
}

func TestGenerateMissingKey(t *testing.T) {
	c := New(config.LLMProvider{})
	_, err := c.Generate(context.Background(), "x", nil)
	var perr *models.Error
	if !errors.As(err, &perr) || perr.Kind != models.KindCredentials {
		t.Fatalf("expected credentials error, got %v", err)
	}
}

func TestGenerateStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"error":{"code":400,"message":"bad prompt","status":"INVALID_ARGUMENT"}}`)
	})
	_, err := c.Generate(context.Background(), "x", nil)
	var perr *models.Error
	if !errors.As(err, &perr) || perr.Kind != models.KindStatus || perr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status error, got %v", err)
	}

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, `{"error":{"code":403,"message":"bad key","status":"PERMISSION_DENIED"}}`)
	})
	_, err = c.Generate(context.Background(), "x", nil)
	if !errors.As(err, &perr) || perr.Kind != models.KindCredentials {
		t.Fatalf("expected credentials error, got %v", err)
	}
}

func TestGenerateBlockedPrompt(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`)
	})
	_, err := c.Generate(context.Background(), "x", nil)
	if !errors.Is(err, models.ErrEmptyResponse) || !strings.Contains(err.Error(), "SAFETY") {
		t.Fatalf("expected blocked error, got %v", err)
	}
}

func TestChatMapsRoles(t *testing.T) {
	var got request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[{"text":"sure"}]}}]}`)
	})
	history := []models.Message{{Role: "user", Text: "hi"}, {Role: "assistant", Text: "hello"}}
	out, err := c.Chat(context.Background(), history, "write")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != "sure" {
		t.Fatalf("unexpected reply %q", out)
	}
	if len(got.Contents) != 3 || got.Contents[1].Role != "model" || got.Contents[2].Parts[0].Text != "write" {
		t.Fatalf("unexpected contents %+v", got.Contents)
	}
}

func TestGenerateImageDecodesInlineData(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	var got request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[{"text":"here"},{"inlineData":{"mimeType":"image/png","data":"`+
			base64.StdEncoding.EncodeToString(png)+`"}}]}}]}`)
	})
	img, err := c.GenerateImage(context.Background(), "a cat", "")
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if img.MimeType != "image/png" || string(img.Data) != string(png) {
		t.Fatalf("unexpected media %+v", img)
	}
	if got.GenerationConfig == nil || got.GenerationConfig.ImageConfig == nil || got.GenerationConfig.ImageConfig.AspectRatio != "1:1" {
		t.Fatalf("expected default aspect ratio, got %+v", got.GenerationConfig)
	}
}

func TestSpeakUsesVoice(t *testing.T) {
	var got request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, `{"candidates":[{"content":{"role":"model","parts":[{"inlineData":{"mimeType":"audio/L16","data":"AAAA"}}]}}]}`)
	})
	audio, err := c.Speak(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if len(audio.Data) != 3 {
		t.Fatalf("unexpected audio %+v", audio)
	}
	if got.GenerationConfig == nil || got.GenerationConfig.SpeechConfig == nil ||
		got.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Kore" {
		t.Fatalf("expected default voice, got %+v", got.GenerationConfig)
	}
}
