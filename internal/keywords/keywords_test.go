package keywords

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/newscrawler/internal/types"
)

func TestFindMatches_WordBoundaries(t *testing.T) {
	m, err := Compile(DefaultTaxonomy())
	require.NoError(t, err)

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"standalone word", "Israel said on Monday", []string{"israel"}},
		{"any case", "GAZA and Hamas", []string{"gaza", "hamas"}},
		{"substring of larger word", "Israeline airlines", []string{}},
		{"phrase", "The Israeli Defence Forces said", []string{"israeli", "israeli defence forces"}},
		{"date phrase", "since October 7th", []string{"october 7th"}},
		{"oct 7 not inside oct 7th", "on oct 7th", []string{"oct 7th"}},
		{"punctuation boundary", "(Palestinians)", []string{"palestinians"}},
		{"no keywords", "Stocks rallied on Wall Street", []string{}},
		{"empty", "", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.FindMatches(tt.text).Sorted()
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindMatches_Idempotent(t *testing.T) {
	m, err := Compile(DefaultTaxonomy())
	require.NoError(t, err)

	text := "Hamas and the IDF; 7 October anniversary in Gaza"
	first := m.FindMatches(text)
	second := m.FindMatches(text)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"7 october", "gaza", "hamas", "idf"}, first.Sorted())
}

func TestFindMatches_RepeatedKeywordOnce(t *testing.T) {
	m, err := Compile(Taxonomy{"primary": {"gaza"}})
	require.NoError(t, err)

	set := m.FindMatches("gaza gaza Gaza GAZA")
	assert.Equal(t, 1, set.Len())
	assert.True(t, set.Contains("Gaza"))
}

func TestCompile_EmptyTaxonomy(t *testing.T) {
	m, err := Compile(Taxonomy{})
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 0, m.FindMatches("israel gaza hamas").Len())
}

func TestCompile_EscapesSpecialCharacters(t *testing.T) {
	m, err := Compile(Taxonomy{"misc": {"u.s"}})
	require.NoError(t, err)

	assert.True(t, m.FindMatches("the u.s said").Contains("u.s"))
	assert.False(t, m.FindMatches("the uks said").Contains("u.s"))
}

func TestCompile_DuplicatesAcrossCategories(t *testing.T) {
	m, err := Compile(Taxonomy{"a": {"gaza", "Gaza"}, "b": {"gaza"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"gaza"}, m.Keywords())
}

func TestCompile_BlankKeyword(t *testing.T) {
	_, err := Compile(Taxonomy{"primary": {"gaza", "  "}})
	require.Error(t, err)

	var cfgErr *types.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "primary[1]", cfgErr.Field)
}

func BenchmarkFindMatches(b *testing.B) {
	m, _ := Compile(DefaultTaxonomy())
	text := "Officials in Gaza and Israel met on Tuesday to discuss the ceasefire proposal put forward after October 7th."
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.FindMatches(text)
	}
}
