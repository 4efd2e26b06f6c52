package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchName(t *testing.T) {
	require.True(t, MatchName("  Big Buck\tBunny 1080p", []string{"buck bunny"}))
	require.False(t, MatchName("Sintel", []string{"bunny"}))
}

func TestRankBySimilarity(t *testing.T) {
	names := []string{"Parisot", "Lyon", "Paris", "Pari"}
	RankBySimilarity(names, "paris", func(s string) string { return s })
	require.Equal(t, "Paris", names[0])
	require.Equal(t, "Lyon", names[len(names)-1])
}

func TestRankBySimilarityEmptyPattern(t *testing.T) {
	names := []string{"b", "a"}
	RankBySimilarity(names, "", func(s string) string { return s })
	require.Equal(t, []string{"b", "a"}, names)
}
