package query

import (
	"fmt"
	"strings"

	"github.com/fmulab/graphqa/pkg/ai"
)

const (
	sourcePrefix = "Source: "

	// ChunkSeparator joins chunk texts inside one block.
	ChunkSeparator = "\n----\n"
	// BlockSeparator joins formatted blocks into the prompt context.
	BlockSeparator = "\n\n---\n\n"
)

// Block is one unit of retrieved context, attributed to a single source.
type Block struct {
	Source        string
	Text          string
	Score         float64
	Entities      []string
	Relationships []string
}

// Format renders the block the way it is shown to the model.
func (b Block) Format() string {
	var sb strings.Builder
	sb.WriteString(sourcePrefix)
	sb.WriteString(b.Source)
	sb.WriteString("\n\nContent: ")
	sb.WriteString(b.Text)
	sb.WriteString("\n")

	if entities := nonEmpty(b.Entities); len(entities) > 0 {
		sb.WriteString("Entities: ")
		sb.WriteString(strings.Join(entities, ", "))
		sb.WriteString("\n")
	}
	if rels := nonEmpty(b.Relationships); len(rels) > 0 {
		sb.WriteString("Relationships: ")
		sb.WriteString(strings.Join(rels, ", "))
		sb.WriteString("\n")
	}
	return sb.String()
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

// FormatBlocks renders each block.
func FormatBlocks(blocks []Block) []string {
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, b.Format())
	}
	return out
}

// FormatContext renders and joins blocks into one context string.
func FormatContext(blocks []Block) string {
	return strings.Join(FormatBlocks(blocks), BlockSeparator)
}

// Sources returns the distinct block sources in first-seen order.
func Sources(blocks []Block) []string {
	seen := make(map[string]struct{}, len(blocks))
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		src := strings.TrimSpace(b.Source)
		if src == "" {
			continue
		}
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	return out
}

// ExtractSources re-derives sources from formatted blocks by reading their
// "Source: " lines. It agrees with Sources for blocks produced by Format.
func ExtractSources(formatted []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(formatted))
	for _, block := range formatted {
		for line := range strings.Lines(block) {
			src, ok := strings.CutPrefix(strings.TrimRight(line, "\r\n"), sourcePrefix)
			if !ok {
				continue
			}
			src = strings.TrimSpace(src)
			if src == "" {
				continue
			}
			if _, dup := seen[src]; dup {
				continue
			}
			seen[src] = struct{}{}
			out = append(out, src)
		}
	}
	return out
}

// BuildPrompt combines the instruction prompt, the context and the question.
func BuildPrompt(context, question string) string {
	return fmt.Sprintf(ai.QueryPrompt, context) + "\nQuestion: " + question
}

// Budget bounds the formatted context by token count.
type Budget struct {
	MaxTokens int
	Counter   ai.TokenCounter
}

// Fit keeps blocks in order until the budget is spent. The first block is
// truncated to fit rather than dropped. A non-positive MaxTokens disables
// the budget.
func (b Budget) Fit(blocks []Block) []Block {
	if b.MaxTokens <= 0 || len(blocks) == 0 {
		return blocks
	}
	counter := b.Counter
	if counter == nil {
		counter = ai.ApproxCounter{}
	}
	sepTokens := counter.CountTokens(BlockSeparator)

	out := make([]Block, 0, len(blocks))
	used := 0
	for i, block := range blocks {
		cost := counter.CountTokens(block.Format())
		if i > 0 {
			cost += sepTokens
		}
		if used+cost <= b.MaxTokens {
			out = append(out, block)
			used += cost
			continue
		}
		if i == 0 {
			out = append(out, truncateBlock(block, b.MaxTokens, counter))
		}
		break
	}
	return out
}

// truncateBlock shortens the block text until the formatted block fits in
// maxTokens, halving the remaining cut each step.
func truncateBlock(block Block, maxTokens int, counter ai.TokenCounter) Block {
	text := []rune(block.Text)
	lo, hi := 0, len(text)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		candidate := block
		candidate.Text = string(text[:mid])
		if counter.CountTokens(candidate.Format()) <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	block.Text = string(text[:lo])
	return block
}
