package serper

import (
	"context"
	"net/http"
	"time"

	"github.com/mohammad-safakhou/lumina/tools/web_search/models"
	"github.com/mohammad-safakhou/lumina/utils"
)

const DefaultBaseURL = "https://google.serper.dev"

type Search struct {
	ApiKey  string
	BaseURL string
	http    *utils.HTTPClient
}

func New(apiKey string, timeout time.Duration) *Search {
	return &Search{ApiKey: apiKey, BaseURL: DefaultBaseURL, http: utils.NewHTTPClient(timeout)}
}

func (s *Search) Search(ctx context.Context, q string, k int) (models.Response, error) {
	// https://serper.dev/ docs
	payload := map[string]any{"q": q, "num": k}
	headers := map[string]string{"X-API-KEY": s.ApiKey}
	var raw map[string]any
	if err := s.http.DoJSON(ctx, http.MethodPost, s.BaseURL+"/search", headers, payload, &raw); err != nil {
		return models.Response{}, err
	}

	var out models.Response
	if box, ok := raw["answerBox"].(map[string]any); ok {
		out.Answer = utils.Str(box["answer"])
		if out.Answer == "" {
			out.Answer = utils.Str(box["snippet"])
		}
	}
	if items, ok := raw["organic"].([]any); ok {
		for i, it := range items {
			if i >= k {
				break
			}
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			out.Results = append(out.Results, models.Result{
				Title: utils.Str(m["title"]), URL: utils.Str(m["link"]), Content: utils.Str(m["snippet"]),
			})
		}
	}
	return out, nil
}
