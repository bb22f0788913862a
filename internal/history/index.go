package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"
)

const defaultBatchSize = 64

// Hit is one search result.
type Hit struct {
	Record
	Score float64
}

// Index is a bleve full-text index over display records. Records are
// batched and written when the batch fills, on Flush, before a search and
// on Close.
type Index struct {
	path      string
	batchSize int

	mu      sync.Mutex
	idx     bleve.Index
	batch   *bleve.Batch
	pending int
}

// OpenIndex opens the index at path, creating it when missing. An empty
// path keeps the index in memory.
func OpenIndex(path string, batchSize int) (*Index, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	i := &Index{path: path, batchSize: batchSize}
	idx, err := i.openBleve()
	if err != nil {
		return nil, err
	}
	i.idx = idx
	i.batch = idx.NewBatch()
	return i, nil
}

func (i *Index) openBleve() (bleve.Index, error) {
	if i.path == "" {
		return bleve.NewMemOnly(buildIndexMapping())
	}
	if err := os.MkdirAll(filepath.Dir(i.path), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	idx, err := bleve.Open(i.path)
	if err == nil {
		return idx, nil
	}
	if !errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	idx, err = bleve.New(i.path, buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating index: %w", err)
	}
	return idx, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	line := bleve.NewTextFieldMapping()
	line.Analyzer = standard.Name
	line.Store = true
	line.IncludeTermVectors = true

	at := bleve.NewTextFieldMapping()
	at.Index = false
	at.Store = true

	dm.AddFieldMappingsAt("line1", line)
	dm.AddFieldMappingsAt("line2", line)
	dm.AddFieldMappingsAt("at", at)

	im.DefaultMapping = dm
	return im
}

// Add queues rec for indexing.
func (i *Index) Add(rec Record) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	err := i.batch.Index(rec.ID, map[string]any{
		"line1": rec.Line1,
		"line2": rec.Line2,
		"at":    rec.At.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("indexing record: %w", err)
	}
	i.pending++
	if i.pending >= i.batchSize {
		return i.flushLocked()
	}
	return nil
}

func (i *Index) Flush() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.flushLocked()
}

func (i *Index) flushLocked() error {
	if i.pending == 0 {
		return nil
	}
	if err := i.idx.Batch(i.batch); err != nil {
		return fmt.Errorf("writing index batch: %w", err)
	}
	i.batch.Reset()
	i.pending = 0
	return nil
}

// Count reports the number of indexed records, pending ones included.
func (i *Index) Count() (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.flushLocked(); err != nil {
		return 0, err
	}
	n, err := i.idx.DocCount()
	return int(n), err
}

// Search returns up to limit records matching query on either line,
// best match first, ties broken by time.
func (i *Index) Search(query string, limit int) ([]Hit, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return []Hit{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	var qs []bleveQuery.Query
	for _, term := range terms {
		for _, field := range []string{"line1", "line2"} {
			mq := bleve.NewMatchQuery(term)
			mq.SetField(field)
			mq.SetBoost(2.0)
			qs = append(qs, mq)

			pq := bleve.NewPrefixQuery(term)
			pq.SetField(field)
			pq.SetBoost(1.0)
			qs = append(qs, pq)
		}
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(qs...), limit, 0, false)
	req.Fields = []string{"line1", "line2", "at"}

	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.flushLocked(); err != nil {
		return nil, err
	}
	res, err := i.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching history: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{Record: Record{ID: h.ID}, Score: h.Score}
		if v, ok := h.Fields["line1"].(string); ok {
			hit.Line1 = v
		}
		if v, ok := h.Fields["line2"].(string); ok {
			hit.Line2 = v
		}
		if v, ok := h.Fields["at"].(string); ok {
			hit.At, _ = time.Parse(time.RFC3339Nano, v)
		}
		hits = append(hits, hit)
	}
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].At.After(hits[b].At)
	})
	return hits, nil
}

// Reset drops every indexed record.
func (i *Index) Reset() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.idx.Close(); err != nil {
		return fmt.Errorf("closing index: %w", err)
	}
	if i.path != "" {
		if err := os.RemoveAll(i.path); err != nil {
			return fmt.Errorf("removing index: %w", err)
		}
	}
	idx, err := i.openBleve()
	if err != nil {
		return err
	}
	i.idx = idx
	i.batch = idx.NewBatch()
	i.pending = 0
	return nil
}

// Close writes pending records and closes the index.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	flushErr := i.flushLocked()
	if err := i.idx.Close(); err != nil {
		return err
	}
	return flushErr
}

// tokenize lowercases text and splits it on anything that is not a letter
// or digit, dropping single characters.
func tokenize(text string) []string {
	var terms []string
	var current strings.Builder

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			current.WriteRune(unicode.ToLower(r))
			continue
		}
		if current.Len() > 1 {
			terms = append(terms, current.String())
		}
		current.Reset()
	}
	if current.Len() > 1 {
		terms = append(terms, current.String())
	}
	return terms
}
