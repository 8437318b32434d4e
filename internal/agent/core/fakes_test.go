package core

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/lumina/provider/models"
	searchmodels "github.com/mohammad-safakhou/lumina/tools/web_search/models"
)

var errProvider = errors.New("provider unavailable")

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

// fakeLLM answers by stage, recognised from the prompt preamble.
type fakeLLM struct {
	mu      sync.Mutex
	router  func() (string, error)
	planner func() (string, error)
	writer  func(section string) (string, error)

	routerCalls  int
	plannerCalls int
	writerCalls  []string
	prompts      []string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, schema *models.Schema) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	switch {
	case strings.HasPrefix(prompt, "You are a blog strategy expert"):
		f.routerCalls++
		if f.router == nil {
			return `{"needsResearch":false,"searchQueries":[]}`, nil
		}
		return f.router()
	case strings.HasPrefix(prompt, "You are an expert blog editor"):
		f.plannerCalls++
		if f.planner == nil {
			return `{"sections":[{"title":"One","instructions":"first"},{"title":"Two","instructions":"second"}]}`, nil
		}
		return f.planner()
	case strings.HasPrefix(prompt, "You are a professional blog writer"):
		section := sectionOf(prompt)
		f.writerCalls = append(f.writerCalls, section)
		if f.writer == nil {
			return "<h2>" + section + "</h2><p>body</p>", nil
		}
		return f.writer(section)
	}
	return "", errors.New("unexpected prompt")
}

func sectionOf(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(line, "Section: ") {
			return strings.TrimPrefix(line, "Section: ")
		}
	}
	return ""
}

type fakeSearch struct {
	mu      sync.Mutex
	queries []string
	failOn  int // 1-based call number that fails, 0 never
	respond func(q string) searchmodels.Response
}

func (f *fakeSearch) Search(ctx context.Context, q string, k int) (searchmodels.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.failOn == len(f.queries) {
		return searchmodels.Response{}, errProvider
	}
	if f.respond != nil {
		return f.respond(q), nil
	}
	return searchmodels.Response{
		Answer: "answer for " + q,
		Results: []searchmodels.Result{
			{Title: q + " #1", Content: "c1"},
			{Title: q + " #2", Content: "c2"},
			{Title: q + " #3", Content: "c3"},
		},
	}, nil
}

func failing() (string, error) { return "", errProvider }
