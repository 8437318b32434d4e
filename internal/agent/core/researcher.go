package core

import (
	"context"
	"log"
	"strings"

	"github.com/mohammad-safakhou/lumina/internal/agent/telemetry"
)

const (
	// ResearchUnavailable replaces the research context when a search fails.
	ResearchUnavailable = "Research unavailable - proceeding with general knowledge."

	researchSeparator     = "\n\n---\n"
	researchMaxResults    = 3
	researchSourcesPerHit = 2
)

// Researcher turns search queries into a research context.
type Researcher struct {
	search     Searcher
	maxResults int
	telemetry  *telemetry.Telemetry
	logger     *log.Logger
}

// NewResearcher accepts a nil searcher, in which case research is always empty.
func NewResearcher(search Searcher, tel *telemetry.Telemetry, logger *log.Logger) *Researcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[RESEARCHER] ", log.LstdFlags)
	}
	return &Researcher{search: search, maxResults: researchMaxResults, telemetry: tel, logger: logger}
}

// Research runs the queries in order. The first failure discards everything
// gathered so far and returns ResearchUnavailable.
func (r *Researcher) Research(ctx context.Context, s State) ResearchUpdate {
	if !s.NeedsResearch || len(s.SearchQueries) == 0 {
		r.logger.Printf("research not needed")
		return ResearchUpdate{}
	}
	if r.search == nil {
		r.logger.Printf("search provider not configured, continuing without research")
		return ResearchUpdate{}
	}

	var blocks []string
	for _, q := range s.SearchQueries {
		r.logger.Printf("searching: %q", q)
		resp, err := r.search.Search(ctx, q, r.maxResults)
		r.telemetry.RecordProviderCall("search", err)
		if err != nil {
			r.logger.Printf("search %q failed: %v", q, err)
			r.telemetry.RecordFallback(string(StageResearcher))
			return ResearchUpdate{ResearchContext: ResearchUnavailable}
		}
		if resp.Answer != "" {
			blocks = append(blocks, "\n### Research: "+q+"\n"+resp.Answer)
		}
		for i, hit := range resp.Results {
			if i >= researchSourcesPerHit {
				break
			}
			blocks = append(blocks, "\n**Source:** "+hit.Title+"\n"+hit.Content)
		}
	}

	r.logger.Printf("gathered %d research snippets", len(blocks))
	return ResearchUpdate{ResearchContext: strings.Join(blocks, researchSeparator)}
}
