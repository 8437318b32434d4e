// Package search keeps a full-text index of posts.
package search

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"

	"github.com/mohammad-safakhou/lumina/internal/helpers"
	"github.com/mohammad-safakhou/lumina/internal/store"
)

// DefaultLimit caps the number of hits returned when the caller passes k <= 0.
const DefaultLimit = 20

type document struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// Hit is a matched post id and its relevance score.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type Index struct {
	mu    sync.RWMutex
	bleve bleve.Index
}

// NewIndex opens the index at path, creating it when missing. An empty path
// keeps the index in memory.
func NewIndex(path string) (*Index, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create post index: %w", err)
		}
		return &Index{bleve: idx}, nil
	}
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, bleve.NewIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("open post index %s: %w", path, err)
	}
	return &Index{bleve: idx}, nil
}

// Put indexes or re-indexes a post. Markup is stripped before indexing.
func (i *Index) Put(p store.Post) error {
	if i == nil {
		return nil
	}
	doc := document{
		Title:   p.Title,
		Summary: p.Summary,
		Content: helpers.PlainText(p.Content),
		Tags:    p.Tags,
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.bleve.Index(p.ID, doc)
}

func (i *Index) Delete(id string) error {
	if i == nil {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.bleve.Delete(id)
}

// Rebuild indexes every post in posts, returning the first failure.
func (i *Index) Rebuild(posts []store.Post) error {
	if i == nil {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	batch := i.bleve.NewBatch()
	for _, p := range posts {
		doc := document{Title: p.Title, Summary: p.Summary, Content: helpers.PlainText(p.Content), Tags: p.Tags}
		if err := batch.Index(p.ID, doc); err != nil {
			return err
		}
	}
	return i.bleve.Batch(batch)
}

// Search runs a query-string query and returns hits by descending score.
func (i *Index) Search(q string, k int) ([]Hit, error) {
	q = strings.TrimSpace(q)
	if i == nil || q == "" {
		return []Hit{}, nil
	}
	if k <= 0 {
		k = DefaultLimit
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(q), k, 0, false)
	i.mu.RLock()
	res, err := i.bleve.Search(req)
	i.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("search posts: %w", err)
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

func (i *Index) Count() uint64 {
	if i == nil {
		return 0
	}
	n, _ := i.bleve.DocCount()
	return n
}

func (i *Index) Close() error {
	if i == nil {
		return nil
	}
	return i.bleve.Close()
}
