package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var corpus = []Document{
	{ID: "1", Content: "Cohort analysis reveals retention patterns in fintech apps.",
		Source: "retention-handbook", Domain: "fintech"},
	{ID: "2", Content: "Churn in gaming is driven by session length decay.",
		Source: "gaming-metrics", Domain: "gaming"},
	{ID: "3", Content: "Fintech onboarding funnels lose most users at identity verification.",
		Source: "onboarding-study", Domain: "fintech"},
}

func TestStaticSearchRanksByOverlap(t *testing.T) {
	s := NewStatic(corpus)
	snippets, err := s.Search(context.Background(), "fintech retention cohort analysis", "")
	require.NoError(t, err)
	require.NotEmpty(t, snippets)
	assert.Equal(t, "retention-handbook", snippets[0].Source)
}

func TestStaticSearchDomainFilter(t *testing.T) {
	s := NewStatic(corpus)
	snippets, err := s.Search(context.Background(), "churn", "fintech")
	require.NoError(t, err)
	for _, sn := range snippets {
		assert.NotEqual(t, "gaming-metrics", sn.Source)
	}
}

func TestStaticSearchNoMatches(t *testing.T) {
	s := NewStatic(corpus)
	snippets, err := s.Search(context.Background(), "quantum chromodynamics", "")
	require.NoError(t, err)
	assert.Empty(t, snippets)
}

func TestFormatContext(t *testing.T) {
	assert.Empty(t, FormatContext(nil))

	out := FormatContext([]Snippet{{Content: "fact", Source: "src"}})
	assert.Contains(t, out, "fact")
	assert.Contains(t, out, "[source: src]")
}
