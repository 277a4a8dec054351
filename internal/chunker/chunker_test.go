package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNew(t *testing.T, size, overlap int) *Chunker {
	t.Helper()
	c, err := New(size, overlap)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsBadBounds(t *testing.T) {
	for _, tc := range []struct{ size, overlap int }{{0, 0}, {-1, 0}, {10, 10}, {10, -1}, {10, 20}} {
		_, err := New(tc.size, tc.overlap)
		assert.Error(t, err, "size=%d overlap=%d", tc.size, tc.overlap)
	}
}

func TestSplit_BlankInput(t *testing.T) {
	c := mustNew(t, 100, 10)
	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split(" \n\t  "))
}

func TestSplit_ShortInputIsSingleNormalisedChunk(t *testing.T) {
	c := mustNew(t, 100, 10)
	got := c.Split("  Hello \n\n world.\tThis   is short. ")
	assert.Equal(t, []string{"Hello world. This is short."}, got)
}

func TestSplit_ExactSizeIsSingleChunk(t *testing.T) {
	c := mustNew(t, 10, 2)
	assert.Equal(t, []string{"abcdefghij"}, c.Split("abcdefghij"))
}

func TestSplit_ConsecutiveChunksOverlap(t *testing.T) {
	c := mustNew(t, 50, 10)
	text := strings.Repeat("lorem ipsum dolor sit amet ", 20)

	chunks := c.Split(text)
	require.Greater(t, len(chunks), 2)

	for i := 0; i+1 < len(chunks); i++ {
		a := []rune(chunks[i])
		require.Greater(t, len(a), 10)
		tail := strings.TrimSpace(string(a[len(a)-10:]))
		assert.True(t, strings.HasPrefix(chunks[i+1], tail), "chunk %d tail %q not at head of %q", i, tail, chunks[i+1])
	}
}

func TestSplit_PrefersSentenceBoundary(t *testing.T) {
	c := mustNew(t, 40, 5)
	text := "The quick brown fox jumps over a dog. Then it rests for a while in the shade."

	chunks := c.Split(text)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "The quick brown fox jumps over a dog.", chunks[0])
}

func TestSplit_FallsBackToWordBoundary(t *testing.T) {
	c := mustNew(t, 20, 0)
	chunks := c.Split("alpha beta gamma delta epsilon zeta eta theta")

	require.NotEmpty(t, chunks)
	assert.Equal(t, "alpha beta gamma", chunks[0])
	for _, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), 20)
		assert.NotEmpty(t, ch)
	}
}

func TestSplit_HardCutWithoutSpaces(t *testing.T) {
	c := mustNew(t, 10, 3)
	chunks := c.Split(strings.Repeat("x", 25))

	require.Len(t, chunks, 4)
	assert.Equal(t, strings.Repeat("x", 10), chunks[0])
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch), 10)
	}
}

func TestSplit_MultibyteRunes(t *testing.T) {
	c := mustNew(t, 5, 1)
	chunks := c.Split("éééééééééé")

	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.True(t, utf8.ValidString(ch))
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), 5)
	}
}

func TestSplit_CoversInput(t *testing.T) {
	c := mustNew(t, 30, 0)
	text := "one two three four five six seven eight nine ten eleven twelve"

	joined := strings.Join(c.Split(text), " ")
	assert.Equal(t, text, joined)
}
