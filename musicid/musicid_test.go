package musicid_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.tonearm.xyz/tonearm/musicid"
)

func TestDeterminism(t *testing.T) {
	t.Parallel()

	a := musicid.New("Queen", "Bohemian Rhapsody", "A Night at the Opera")
	b := musicid.New("Queen", "Bohemian Rhapsody", "A Night at the Opera")
	require.Equal(t, a, b)
}

func TestNormalizedEquivalence(t *testing.T) {
	t.Parallel()

	a := musicid.New("Queen", "Bohemian Rhapsody", "A Night at the Opera")
	b := musicid.New("  queen ", "BOHEMIAN RHAPSODY", "a night at the opera  ")
	require.Equal(t, a, b)
}

func TestDistinctSongsDiffer(t *testing.T) {
	t.Parallel()

	a := musicid.New("Queen", "Bohemian Rhapsody", "A Night at the Opera")
	b := musicid.New("Queen", "Love of My Life", "A Night at the Opera")
	c := musicid.New("Queen", "Bohemian Rhapsody", "Greatest Hits")
	require.NotEqual(t, a, b)
	require.NotEqual(t, a, c)
}

func TestShape(t *testing.T) {
	t.Parallel()

	id := musicid.New("Queen", "Bohemian Rhapsody", "A Night at the Opera")
	require.True(t, strings.HasPrefix(id, "song_"))
	require.Len(t, strings.TrimPrefix(id, "song_"), 16)
}
