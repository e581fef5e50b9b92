package knowledge

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemConfig holds configuration for the embedded vector store.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty keeps the
	// index in memory only.
	Path string

	// Collection is the collection name.
	Collection string

	// MaxResults caps how many snippets a search returns.
	MaxResults int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = "sapiens_knowledge"
	}
	if c.MaxResults == 0 {
		c.MaxResults = 5
	}
}

// ChromemRetriever implements Retriever on chromem-go, an embeddable pure-Go
// vector database with gob-file persistence. No external database service is
// needed.
type ChromemRetriever struct {
	collection *chromem.Collection
	config     ChromemConfig
}

// NewChromemRetriever opens (or creates) the persistent index and its
// collection. embed computes embeddings for both documents and queries;
// chromem.NewEmbeddingFuncDefault() is a reasonable choice when an OpenAI
// key is available.
func NewChromemRetriever(config ChromemConfig, embed chromem.EmbeddingFunc) (*ChromemRetriever, error) {
	config.ApplyDefaults()

	var db *chromem.DB
	var err error
	if config.Path != "" {
		db, err = chromem.NewPersistentDB(config.Path, false)
		if err != nil {
			return nil, fmt.Errorf("open knowledge index at %s: %w", config.Path, err)
		}
	} else {
		db = chromem.NewDB()
	}

	collection, err := db.GetOrCreateCollection(config.Collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", config.Collection, err)
	}
	return &ChromemRetriever{collection: collection, config: config}, nil
}

// Index adds documents to the knowledge base. Existing IDs are overwritten.
func (r *ChromemRetriever) Index(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	rows := make([]chromem.Document, len(docs))
	for i, d := range docs {
		rows[i] = chromem.Document{
			ID:      d.ID,
			Content: d.Content,
			Metadata: map[string]string{
				"source": d.Source,
				"domain": d.Domain,
			},
		}
	}
	if err := r.collection.AddDocuments(ctx, rows, 1); err != nil {
		return fmt.Errorf("index documents: %w", err)
	}
	return nil
}

// Search implements Retriever.
func (r *ChromemRetriever) Search(ctx context.Context, query, domainFilter string) ([]Snippet, error) {
	count := r.collection.Count()
	if count == 0 {
		return nil, nil
	}
	n := r.config.MaxResults
	if n > count {
		n = count
	}

	var where map[string]string
	if domainFilter != "" {
		where = map[string]string{"domain": domainFilter}
	}

	results, err := r.collection.Query(ctx, query, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query knowledge index: %w", err)
	}

	snippets := make([]Snippet, 0, len(results))
	for _, res := range results {
		snippets = append(snippets, Snippet{
			Content: res.Content,
			Source:  res.Metadata["source"],
			Score:   float64(res.Similarity),
		})
	}
	return snippets, nil
}
