package search

import "github.com/pders01/photorama/internal/storage"

// Searcher defines the search API used by the CLI.
type Searcher interface {
	Search(query string, limit int) ([]*Result, error)
	Close() error
}

// PhotoSource is the read side of the metadata store the engines need.
type PhotoSource interface {
	FetchAll() ([]*storage.Photo, error)
	GetPhoto(id string) (*storage.Photo, error)
}

// DebugStatser provides lightweight stats for visibility/debugging.
// Implemented by engines that can report index doc counts, etc.
type DebugStatser interface {
	DocCount() (int, error)
}

// Result is one photo matching a query.
type Result struct {
	Photo   *storage.Photo
	Score   float64
	Matches []Match
}

// Match represents where text was found
type Match struct {
	Field  string // "title" or "tags"
	Text   string
	Weight float64
}
