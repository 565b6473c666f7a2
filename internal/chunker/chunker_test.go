package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitIntoChunksEmpty(t *testing.T) {
	s := NewSplitter(1000, 100)
	assert.Empty(t, s.SplitIntoChunks(""))
	assert.Empty(t, s.SplitIntoChunks("   \n\t  "))
}

func TestSplitIntoChunksShortText(t *testing.T) {
	s := NewSplitter(1000, 100)
	chunks := s.SplitIntoChunks("just one small chunk.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "just one small chunk.", chunks[0])
}

func TestSplitIntoChunksOverlap(t *testing.T) {
	s := NewSplitter(100, 20)
	text := strings.Repeat("abcdefghij", 50) // 500 chars, no sentence breaks
	chunks := s.SplitIntoChunks(text)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		require.GreaterOrEqual(t, len(prev), 20)
		assert.Equal(t, prev[len(prev)-20:], cur[:20], "chunk %d should start with the previous tail", i)
	}
}

func TestSplitIntoChunksPrefersSentenceBoundary(t *testing.T) {
	s := NewSplitter(100, 10)
	// A sentence terminator sits inside the ±15% window around position 100.
	text := strings.Repeat("a", 95) + ". " + strings.Repeat("b", 200)
	chunks := s.SplitIntoChunks(text)
	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasSuffix(chunks[0], "."), "first chunk should end at the sentence boundary, got %q", chunks[0])
}

func TestSplitIntoChunksHardCutWithoutBoundary(t *testing.T) {
	s := NewSplitter(100, 10)
	text := strings.Repeat("x", 300)
	chunks := s.SplitIntoChunks(text)
	require.Greater(t, len(chunks), 1)
	assert.Len(t, chunks[0], 100)
}

func TestSplitIntoChunksCoversAllText(t *testing.T) {
	s := NewSplitter(120, 30)
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)
	text = strings.TrimSpace(text)
	chunks := s.SplitIntoChunks(text)
	require.NotEmpty(t, chunks)

	// The last chunk must end where the text ends.
	assert.True(t, strings.HasSuffix(text, chunks[len(chunks)-1]))
	// Every chunk must appear in the original.
	for _, c := range chunks {
		assert.Contains(t, text, c)
	}
}

func TestSplitIntoParagraphsBasic(t *testing.T) {
	a := strings.Repeat("alpha beta gamma delta epsilon ", 10) // 50 words
	b := strings.Repeat("one two three four five ", 10)        // 50 words
	text := a + "\n\n" + b
	paras := SplitIntoParagraphs(text)
	require.Len(t, paras, 2)
	assert.Equal(t, strings.TrimSpace(a), paras[0])
}

func TestSplitIntoParagraphsMergesShort(t *testing.T) {
	long := strings.Repeat("word ", 60)
	text := "tiny one\n\n" + long + "\n\n" + "closing line"
	paras := SplitIntoParagraphs(text)
	require.Len(t, paras, 2)
	// The short opener merges into the following paragraph.
	assert.True(t, strings.HasPrefix(paras[0], "tiny one"))
	// The last paragraph survives even though it is short.
	assert.Equal(t, "closing line", paras[1])
}

func TestSplitIntoParagraphsSplitsLong(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 100; i++ {
		sb.WriteString("This sentence has exactly seven words in it. ")
	}
	paras := SplitIntoParagraphs(sb.String())
	require.Greater(t, len(paras), 1)
	for _, p := range paras {
		assert.LessOrEqual(t, wordCount(p), maxParagraphWords)
	}
}

func TestSplitIntoParagraphsNormalizesWhitespace(t *testing.T) {
	text := strings.Repeat("spread   out\twords\nacross lines ", 15)
	paras := SplitIntoParagraphs(text)
	require.Len(t, paras, 1)
	assert.NotContains(t, paras[0], "  ")
	assert.NotContains(t, paras[0], "\t")
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("First one. Second one? Third one! trailing bit")
	require.Len(t, got, 4)
	assert.Equal(t, "First one.", got[0])
	assert.Equal(t, "Second one?", got[1])
	assert.Equal(t, "Third one!", got[2])
	assert.Equal(t, "trailing bit", got[3])
}
