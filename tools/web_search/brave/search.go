package brave

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mohammad-safakhou/lumina/tools/web_search/models"
	"github.com/mohammad-safakhou/lumina/utils"
)

const DefaultBaseURL = "https://api.search.brave.com"

type Search struct {
	ApiKey  string
	BaseURL string
	http    *utils.HTTPClient
}

func New(apiKey string, timeout time.Duration) *Search {
	return &Search{ApiKey: apiKey, BaseURL: DefaultBaseURL, http: utils.NewHTTPClient(timeout)}
}

func (s *Search) Search(ctx context.Context, q string, k int) (models.Response, error) {
	// https://api.search.brave.com/app/documentation/web-search
	url := fmt.Sprintf("%s/res/v1/web/search?q=%s&count=%d", s.BaseURL, utils.UrlQuery(q), k)
	headers := map[string]string{
		"Accept":               "application/json",
		"X-Subscription-Token": s.ApiKey,
	}
	var raw struct {
		Web struct {
			Results []struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Snippet string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := s.http.DoJSON(ctx, http.MethodGet, url, headers, nil, &raw); err != nil {
		return models.Response{}, err
	}
	var out models.Response
	for i, r := range raw.Web.Results {
		if i >= k {
			break
		}
		out.Results = append(out.Results, models.Result{Title: r.Title, URL: r.URL, Content: r.Snippet})
	}
	return out, nil
}
