// Package knowledge is the retrieval collaborator: it supplies ranked,
// source-attributed text snippets to agents on request. The core consumes
// this interface but does not own the indexing pipeline.
package knowledge

import (
	"context"
	"sort"
	"strings"
)

// Snippet is one retrieved piece of domain knowledge. Source is always
// populated so agents can cite it.
type Snippet struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
}

// Retriever answers domain-knowledge queries. domainFilter narrows results
// to one knowledge domain; empty means all domains.
type Retriever interface {
	Search(ctx context.Context, query, domainFilter string) ([]Snippet, error)
}

// Document is a unit of indexable knowledge.
type Document struct {
	ID      string
	Content string
	Source  string
	Domain  string
}

// Static is a Retriever over a fixed in-memory corpus, ranked by naive term
// overlap. It backs tests and deployments without an embedding backend.
type Static struct {
	docs []Document
}

// NewStatic builds a Static retriever over the given corpus.
func NewStatic(docs []Document) *Static {
	return &Static{docs: docs}
}

// Search implements Retriever.
func (s *Static) Search(ctx context.Context, query, domainFilter string) ([]Snippet, error) {
	terms := strings.Fields(strings.ToLower(query))
	var out []Snippet
	for _, d := range s.docs {
		if domainFilter != "" && !strings.EqualFold(d.Domain, domainFilter) {
			continue
		}
		content := strings.ToLower(d.Content)
		var hits int
		for _, t := range terms {
			if strings.Contains(content, t) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		out = append(out, Snippet{
			Content: d.Content,
			Source:  d.Source,
			Score:   float64(hits) / float64(len(terms)),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// FormatContext renders snippets into a prompt-ready block with citations.
// Returns "" when there is nothing to cite.
func FormatContext(snippets []Snippet) string {
	if len(snippets) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant domain knowledge:\n")
	for _, sn := range snippets {
		b.WriteString("- ")
		b.WriteString(sn.Content)
		b.WriteString(" [source: ")
		b.WriteString(sn.Source)
		b.WriteString("]\n")
	}
	return b.String()
}
