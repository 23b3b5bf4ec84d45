package retrieval

import (
	"strings"
	"unicode"

	"ayudapo/internal/contextmgr"
)

// Chunk splits text into windows of at most size runes, each starting overlap runes before
// the previous one ended. A window prefers to end on whitespace found in its last fifth so
// words are not cut. overlap >= size disables overlap. Blank text yields no chunks.
func Chunk(text string, size, overlap int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if size <= 0 {
		return []string{strings.TrimSpace(text)}
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	total := len(runes)
	if total <= size {
		return []string{strings.TrimSpace(text)}
	}

	var chunks []string
	start := 0
	for start < total {
		end := start + size
		if end >= total {
			end = total
		} else if cut := softBreak(runes, start, end, size); cut > 0 {
			end = cut
		}

		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, piece)
		}
		if end == total {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// softBreak looks for the last whitespace in the final 20% of runes[start:end].
func softBreak(runes []rune, start, end, size int) int {
	floor := end - size/5
	if floor <= start {
		floor = start + 1
	}
	for i := end; i > floor; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return 0
}

// ChunkTokens splits on word boundaries so each chunk holds at most maxTokens as measured by
// tok, carrying up to overlapTokens of trailing words into the next chunk. Whitespace inside
// a chunk is collapsed to single spaces.
func ChunkTokens(tok *contextmgr.Tokenizer, text string, maxTokens, overlapTokens int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if tok == nil {
		tok = contextmgr.DefaultTokenizer()
	}
	if maxTokens <= 0 || tok.CountText(text) <= maxTokens {
		return []string{strings.TrimSpace(text)}
	}
	if overlapTokens < 0 || overlapTokens >= maxTokens {
		overlapTokens = 0
	}

	words := strings.Fields(text)
	var (
		chunks []string
		cur    []string
		curTok int
	)
	flush := func() {
		if len(cur) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(cur, " "))
		if overlapTokens == 0 {
			cur, curTok = nil, 0
			return
		}
		// Carry trailing words up to overlapTokens.
		keep := 0
		kept := 0
		for i := len(cur) - 1; i >= 0; i-- {
			c := tok.CountText(cur[i]) + 1
			if kept+c > overlapTokens {
				break
			}
			kept += c
			keep++
		}
		cur = append([]string(nil), cur[len(cur)-keep:]...)
		curTok = kept
	}

	for _, w := range words {
		c := tok.CountText(w) + 1
		if c > maxTokens {
			flush()
			chunks = append(chunks, tok.Truncate(w, maxTokens))
			cur, curTok = nil, 0
			continue
		}
		if curTok+c > maxTokens {
			flush()
			// A carried overlap that leaves no room for w is dropped.
			if curTok+c > maxTokens {
				cur, curTok = nil, 0
			}
		}
		cur = append(cur, w)
		curTok += c
	}
	if len(cur) > 0 {
		chunks = append(chunks, strings.Join(cur, " "))
	}
	return chunks
}
