package models

// Result is a single hit returned by a web search provider.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Response is the answer to one query. Answer is empty for providers that
// only return ranked links.
type Response struct {
	Answer  string   `json:"answer,omitempty"`
	Results []Result `json:"results"`
}
