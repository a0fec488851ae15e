package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Snippet   string `json:"snippet"`
	Type      string `json:"type"`
	ProjectID string `json:"projectId"`
}

// Query describes a resource search request.
type Query struct {
	Text            string
	FilterProjectID string
	FilterType      string // empty = all resource types
	Limit           int
	Offset          int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over resources.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push resources into a search index.
type Indexer interface {
	IndexResource(r ResourceRecord) error
	DeleteResource(id string) error
}

// ResourceRecord is the data we index for a resource.
type ResourceRecord struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	ProjectID   string   `json:"projectId"`
	Visibility  string   `json:"visibility"`
	Tags        []string `json:"tags"`
}
