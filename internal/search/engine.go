package search

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/pders01/photorama/internal/config"
	"github.com/pders01/photorama/internal/debuglog"
)

const defaultLimit = 20

// New returns the bleve engine when search.enabled is set and the
// in-memory scorer otherwise.
func New(cfg *config.Config, photos PhotoSource) (Searcher, error) {
	if cfg != nil && cfg.Search.Enabled && cfg.Search.Index != "" {
		engine, err := NewBleveEngine(photos, cfg.Search.Index)
		if err != nil {
			return nil, err
		}
		return engine, nil
	}
	debuglog.Debugf("search index disabled, scanning the store")
	return NewEngine(photos), nil
}

// Engine scores photos straight from the store without an index.
type Engine struct {
	photos PhotoSource
}

func NewEngine(photos PhotoSource) *Engine {
	return &Engine{photos: photos}
}

// Search matches query terms against photo titles and tag names.
func (e *Engine) Search(query string, limit int) ([]*Result, error) {
	if len(strings.TrimSpace(query)) < 2 {
		return []*Result{}, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	terms := tokenize(query)
	if len(terms) == 0 {
		return []*Result{}, nil
	}

	photos, err := e.photos.FetchAll()
	if err != nil {
		return nil, err
	}

	var results []*Result
	for _, photo := range photos {
		var matches []Match
		var total float64

		if score := scoreField(photo.Title, terms, 4.0); score > 0 {
			matches = append(matches, Match{Field: "title", Text: truncate(photo.Title, 100), Weight: score})
			total += score
		}

		tags := strings.Join(photo.Tags, " ")
		if score := scoreField(tags, terms, 2.0); score > 0 {
			matches = append(matches, Match{Field: "tags", Text: truncate(tags, 100), Weight: score})
			total += score
		}

		if total > 0 {
			results = append(results, &Result{Photo: photo, Score: total, Matches: matches})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Photo.ID < results[j].Photo.ID
	})

	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

func (e *Engine) Close() error {
	return nil
}

// scoreField calculates relevance score for a field
func scoreField(text string, terms []string, weight float64) float64 {
	if text == "" {
		return 0
	}

	lower := strings.ToLower(text)
	words := tokenize(text)
	if len(words) == 0 {
		return 0
	}

	var score float64
	matchedTerms := 0

	for _, term := range terms {
		if strings.Contains(lower, term) {
			score += 2.0
			matchedTerms++
		}

		for _, word := range words {
			switch {
			case word == term:
				score += 1.5
				matchedTerms++
			case strings.HasPrefix(word, term) || strings.HasSuffix(word, term):
				score += 1.0
				matchedTerms++
			case strings.Contains(word, term):
				score += 0.5
				matchedTerms++
			}
		}
	}

	if len(terms) > 1 && matchedTerms > 1 {
		score *= 1.0 + float64(matchedTerms)/float64(len(terms))
	}

	tf := float64(matchedTerms) / float64(len(words))
	score *= 1.0 + math.Log(1.0+tf)

	return score * weight
}

// tokenize breaks text into lower-cased terms, dropping single characters.
func tokenize(text string) []string {
	var terms []string
	current := strings.Builder{}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			current.WriteRune(unicode.ToLower(r))
		} else if current.Len() > 0 {
			if term := current.String(); len(term) > 1 {
				terms = append(terms, term)
			}
			current.Reset()
		}
	}

	if current.Len() > 1 {
		terms = append(terms, current.String())
	}

	return terms
}

// truncate limits text length with ellipsis
func truncate(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen-1]) + "…"
}
