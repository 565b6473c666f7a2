package chunker

import (
	"regexp"
	"strings"
)

const (
	// Sentence-boundary search tolerance around the target chunk size.
	boundaryTolerancePct = 15

	minParagraphWords = 40
	maxParagraphWords = 400
)

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n+`)

// Splitter cuts raw text into overlapping chunks for the documents
// collection.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter returns a splitter with the given chunk size and overlap in
// characters. Non-positive values fall back to 1000/100.
func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = 100
		if overlap >= size {
			overlap = size / 10
		}
	}
	return &Splitter{size: size, overlap: overlap}
}

// SplitIntoChunks splits text greedily, preferring sentence boundaries within
// ±15% of the chunk size and falling back to a hard cut. Successive chunks
// share exactly the configured overlap. Empty or whitespace-only input yields
// an empty slice.
func (s *Splitter) SplitIntoChunks(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if len(trimmed) <= s.size {
		return []string{trimmed}
	}

	var chunks []string
	start := 0
	for start < len(trimmed) {
		end := start + s.size
		if end >= len(trimmed) {
			chunks = append(chunks, trimmed[start:])
			break
		}
		cut := s.sentenceCut(trimmed, start, end)
		chunks = append(chunks, trimmed[start:cut])

		next := cut - s.overlap
		if next <= start {
			// Overlap would not advance; skip it for this boundary.
			next = cut
		}
		start = next
	}
	return chunks
}

// sentenceCut looks for a sentence terminator followed by whitespace within
// the tolerance window around target; absent one, it hard-cuts at target.
func (s *Splitter) sentenceCut(text string, start, target int) int {
	tol := s.size * boundaryTolerancePct / 100
	hi := target + tol
	if hi > len(text)-1 {
		hi = len(text) - 1
	}
	lo := target - tol
	if lo <= start {
		lo = start + 1
	}
	for i := hi; i >= lo; i-- {
		if isSentenceEnd(text, i) {
			return i + 1
		}
	}
	return target
}

func isSentenceEnd(text string, i int) bool {
	switch text[i] {
	case '.', '?', '!':
	default:
		return false
	}
	return i+1 < len(text) && isSpace(text[i+1])
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}

// SplitIntoParagraphs splits text at blank lines, normalizes internal
// whitespace, merges paragraphs shorter than 40 words into the next one, and
// splits paragraphs longer than 400 words at sentence boundaries. The final
// paragraph is kept even if short.
func SplitIntoParagraphs(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	var paras []string
	for _, raw := range paragraphBreak.Split(trimmed, -1) {
		p := strings.Join(strings.Fields(raw), " ")
		if p != "" {
			paras = append(paras, p)
		}
	}
	if len(paras) == 0 {
		return nil
	}

	var out []string
	carry := ""
	for i, p := range paras {
		if carry != "" {
			p = carry + " " + p
			carry = ""
		}
		last := i == len(paras)-1
		if wordCount(p) < minParagraphWords && !last {
			carry = p
			continue
		}
		if wordCount(p) > maxParagraphWords {
			out = append(out, splitLongParagraph(p)...)
		} else {
			out = append(out, p)
		}
	}
	return out
}

// splitLongParagraph cuts an oversized paragraph into sentence-aligned pieces
// of at most 400 words each.
func splitLongParagraph(p string) []string {
	sentences := SplitSentences(p)
	if len(sentences) <= 1 {
		return hardSplitWords(p, maxParagraphWords)
	}

	var pieces []string
	var cur []string
	curWords := 0
	for _, sent := range sentences {
		sw := wordCount(sent)
		if curWords > 0 && curWords+sw > maxParagraphWords {
			pieces = append(pieces, strings.Join(cur, " "))
			cur = cur[:0]
			curWords = 0
		}
		if sw > maxParagraphWords {
			// A single runaway sentence; cut it on word boundaries.
			pieces = append(pieces, hardSplitWords(sent, maxParagraphWords)...)
			continue
		}
		cur = append(cur, sent)
		curWords += sw
	}
	if len(cur) > 0 {
		pieces = append(pieces, strings.Join(cur, " "))
	}
	return pieces
}

func hardSplitWords(text string, maxWords int) []string {
	words := strings.Fields(text)
	var pieces []string
	for len(words) > maxWords {
		pieces = append(pieces, strings.Join(words[:maxWords], " "))
		words = words[maxWords:]
	}
	if len(words) > 0 {
		pieces = append(pieces, strings.Join(words, " "))
	}
	return pieces
}

// SplitSentences splits text at `.`, `?` or `!` followed by whitespace.
func SplitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		if isSentenceEnd(text, i) {
			s := strings.TrimSpace(text[start : i+1])
			if s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func wordCount(s string) int { return len(strings.Fields(s)) }
