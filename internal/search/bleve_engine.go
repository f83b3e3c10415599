package search

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/pders01/photorama/internal/debuglog"
	"github.com/pders01/photorama/internal/storage"
)

// BleveEngine keeps a persistent full-text index of photo titles and tags.
type BleveEngine struct {
	photos PhotoSource
	idx    bleve.Index
}

// NewBleveEngine creates or opens a Bleve index at indexPath and indexes current data.
func NewBleveEngine(photos PhotoSource, indexPath string) (*BleveEngine, error) {
	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	idx, err := bleve.Open(indexPath)
	if err != nil {
		idx, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("creating index: %w", err)
		}
	}

	be := &BleveEngine{photos: photos, idx: idx}
	if err := be.reindexAll(); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return be, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	title := bleve.NewTextFieldMapping()
	title.Analyzer = standard.Name
	title.Store = true
	title.IncludeTermVectors = true

	tags := bleve.NewTextFieldMapping()
	tags.Analyzer = standard.Name
	tags.Store = true

	photoID := bleve.NewKeywordFieldMapping()
	photoID.Store = true

	dm.AddFieldMappingsAt("title", title)
	dm.AddFieldMappingsAt("tags", tags)
	dm.AddFieldMappingsAt("photo_id", photoID)

	im.DefaultMapping = dm
	return im
}

func (b *BleveEngine) reindexAll() error {
	photos, err := b.photos.FetchAll()
	if err != nil {
		return fmt.Errorf("loading photos: %w", err)
	}
	return b.index(photos)
}

func (b *BleveEngine) index(photos []*storage.Photo) error {
	batch := b.idx.NewBatch()
	for _, p := range photos {
		if err := batch.Index(docIDForPhoto(p.ID), photoDoc(p)); err != nil {
			return err
		}
	}
	return b.idx.Batch(batch)
}

func photoDoc(p *storage.Photo) map[string]any {
	return map[string]any{
		"photo_id": p.ID,
		"title":    p.Title,
		"tags":     strings.Join(p.Tags, " "),
	}
}

func (b *BleveEngine) Search(query string, limit int) ([]*Result, error) {
	if len(strings.TrimSpace(query)) < 2 {
		return []*Result{}, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	// OR of per-term matches across title and tags, title boosted
	var qs []bleveQuery.Query
	for _, tok := range tokenize(query) {
		qt := bleve.NewMatchQuery(tok)
		qt.SetField("title")
		qt.SetBoost(4.0)
		qs = append(qs, qt)
		qtp := bleve.NewPrefixQuery(tok)
		qtp.SetField("title")
		qtp.SetBoost(3.5)
		qs = append(qs, qtp)

		qg := bleve.NewMatchQuery(tok)
		qg.SetField("tags")
		qg.SetBoost(2.0)
		qs = append(qs, qg)
		qgp := bleve.NewPrefixQuery(tok)
		qgp.SetField("tags")
		qgp.SetBoost(1.8)
		qs = append(qs, qgp)
	}
	if len(qs) == 0 {
		return []*Result{}, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(qs...), limit, 0, false)
	req.Fields = []string{"title", "tags"}
	res, err := b.idx.Search(req)
	if err != nil {
		return nil, err
	}

	out := make([]*Result, 0, len(res.Hits))
	for _, h := range res.Hits {
		id := strings.TrimPrefix(h.ID, "photo:")
		photo, err := b.photos.GetPhoto(id)
		if errors.Is(err, storage.ErrPhotoNotFound) {
			debuglog.Warnf("search index references unknown photo %s", id)
			continue
		}
		if err != nil {
			return nil, err
		}

		r := &Result{Photo: photo, Score: h.Score}
		if t, ok := h.Fields["title"].(string); ok && t != "" {
			r.Matches = append(r.Matches, Match{Field: "title", Text: truncate(t, 100)})
		}
		if t, ok := h.Fields["tags"].(string); ok && t != "" {
			r.Matches = append(r.Matches, Match{Field: "tags", Text: truncate(t, 100)})
		}
		out = append(out, r)
	}
	return out, nil
}

// PhotosUpdated indexes photos delivered by a listing fetch.
func (b *BleveEngine) PhotosUpdated(photos []*storage.Photo) {
	if err := b.index(photos); err != nil {
		debuglog.Errorf("indexing %d photos: %v", len(photos), err)
	}
}

// DocCount reports total documents in the index.
func (b *BleveEngine) DocCount() (int, error) {
	n, err := b.idx.DocCount()
	return int(n), err
}

func (b *BleveEngine) Close() error {
	return b.idx.Close()
}

func docIDForPhoto(photoID string) string { return "photo:" + photoID }
