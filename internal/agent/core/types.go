package core

import (
	"context"

	"github.com/mohammad-safakhou/lumina/provider/models"
	searchmodels "github.com/mohammad-safakhou/lumina/tools/web_search/models"
)

// LLMProvider is the generation capability the stages depend on. A non-nil
// schema asks for JSON text matching it.
type LLMProvider interface {
	Generate(ctx context.Context, prompt string, schema *models.Schema) (string, error)
}

// Searcher is the web search capability used by the researcher.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) (searchmodels.Response, error)
}

// Section is one entry of the blog outline.
type Section struct {
	Title        string `json:"title" jsonschema:"description=Section heading"`
	Instructions string `json:"instructions" jsonschema:"description=What to write in this section"`
}

// Stage names a step of the draft pipeline.
type Stage string

const (
	StageRouter     Stage = "router"
	StageResearcher Stage = "researcher"
	StagePlanner    Stage = "planner"
	StageWriter     Stage = "writer"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)
