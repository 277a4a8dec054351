package chunker

import (
	"fmt"
	"strings"
)

// Chunker splits document text into overlapping windows measured in runes,
// snapping the cut to a sentence end or a word boundary when one is close.
type Chunker struct {
	size    int
	overlap int
}

func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the chunks of text. Whitespace runs are collapsed first;
// blank input yields no chunks.
func (c *Chunker) Split(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= c.size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
				chunks = append(chunks, tail)
			}
			break
		}

		window := runes[start:end]
		if bp := lastSentenceEnd(window, len(window)*8/10); bp > 0 {
			end = start + bp + 1
		} else if sp := lastIndexRune(window, ' '); sp > c.size/2 {
			end = start + sp
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// lastSentenceEnd finds the last ". ", "? " or "! " starting at or after from.
func lastSentenceEnd(window []rune, from int) int {
	for i := len(window) - 2; i >= from; i-- {
		if window[i+1] != ' ' {
			continue
		}
		switch window[i] {
		case '.', '?', '!':
			return i
		}
	}
	return -1
}

func lastIndexRune(window []rune, r rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == r {
			return i
		}
	}
	return -1
}
