package tavily

import (
	"context"
	"net/http"
	"time"

	"github.com/mohammad-safakhou/lumina/tools/web_search/models"
	"github.com/mohammad-safakhou/lumina/utils"
)

const DefaultBaseURL = "https://api.tavily.com"

type Search struct {
	ApiKey  string
	BaseURL string
	http    *utils.HTTPClient
}

func New(apiKey string, timeout time.Duration) *Search {
	return &Search{ApiKey: apiKey, BaseURL: DefaultBaseURL, http: utils.NewHTTPClient(timeout)}
}

type request struct {
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

type response struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (s *Search) Search(ctx context.Context, q string, k int) (models.Response, error) {
	// https://docs.tavily.com/documentation/api-reference/endpoint/search
	headers := map[string]string{"Authorization": "Bearer " + s.ApiKey}
	var raw response
	if err := s.http.DoJSON(ctx, http.MethodPost, s.BaseURL+"/search", headers, request{Query: q, MaxResults: k, IncludeAnswer: true}, &raw); err != nil {
		return models.Response{}, err
	}
	out := models.Response{Answer: raw.Answer}
	for i, r := range raw.Results {
		if i >= k {
			break
		}
		out.Results = append(out.Results, models.Result{Title: r.Title, URL: r.URL, Content: r.Content})
	}
	return out, nil
}
