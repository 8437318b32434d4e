package search

import (
	"path/filepath"
	"testing"

	"github.com/mohammad-safakhou/lumina/internal/store"
)

func TestIndexSearch(t *testing.T) {
	idx, err := NewIndex("")
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	defer idx.Close()

	posts := []store.Post{
		{ID: "p1", Title: "Concurrency in Go", Content: "<p>goroutines and channels</p>", Tags: []string{"go"}},
		{ID: "p2", Title: "Baking bread", Content: "<p>flour and water</p>", Tags: []string{"food"}},
	}
	if err := idx.Rebuild(posts); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if idx.Count() != 2 {
		t.Fatalf("expected 2 docs, got %d", idx.Count())
	}

	hits, err := idx.Search("channels", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "p1" {
		t.Fatalf("unexpected hits %+v", hits)
	}

	if err := idx.Delete("p1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	hits, _ = idx.Search("channels", 5)
	if len(hits) != 0 {
		t.Fatalf("deleted post still matched: %+v", hits)
	}

	if err := idx.Put(store.Post{ID: "p3", Title: "Sourdough", Summary: "bread again"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	hits, _ = idx.Search("bread", 5)
	if len(hits) != 2 {
		t.Fatalf("expected two bread posts, got %+v", hits)
	}
}

func TestSearchBlankQuery(t *testing.T) {
	var idx *Index
	hits, err := idx.Search("  ", 5)
	if err != nil || len(hits) != 0 {
		t.Fatalf("expected no hits, got %v %v", hits, err)
	}
}

func TestIndexPersistsOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.bleve")
	idx, err := NewIndex(path)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	if err := idx.Put(store.Post{ID: "p1", Title: "Persistent"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewIndex(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.Count() != 1 {
		t.Fatalf("expected persisted doc, got %d", reopened.Count())
	}
}
