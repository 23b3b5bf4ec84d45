package retrieval

import (
	"fmt"
	"strings"

	"ayudapo/internal/contextmgr"
)

// BuildContext renders hits as numbered blocks:
//
//	[1] path/to/file.go | Title
//	chunk text
//
// Blocks are added in rank order until budget tokens are used. The first block is truncated
// to fit instead of being dropped; later blocks that do not fit end the context.
func BuildContext(tok *contextmgr.Tokenizer, hits []Hit, budget int) string {
	if tok == nil {
		tok = contextmgr.DefaultTokenizer()
	}
	var b strings.Builder
	used := 0
	for i, h := range hits {
		block := formatBlock(i+1, h)
		cost := tok.CountText(block)
		if budget > 0 && used+cost > budget {
			if i > 0 {
				break
			}
			block = tok.Truncate(block, budget)
			cost = tok.CountText(block)
		}
		if block == "" {
			break
		}
		b.WriteString(block)
		used += cost
	}
	return strings.TrimSpace(b.String())
}

func formatBlock(n int, h Hit) string {
	header := fmt.Sprintf("[%d] %s", n, h.Source)
	if t := strings.TrimSpace(h.Title); t != "" && t != h.Source {
		header += " — " + t
	}
	return header + "\n" + strings.TrimSpace(h.Text) + "\n\n"
}
