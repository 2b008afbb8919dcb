package docindex

import (
	"context"
	"fmt"
	"strings"
)

const answerSystemPrompt = "Use the following pieces of context to answer the question at the end. " +
	"If you don't know the answer, just say that you don't know, don't try to make up an answer."

// Answer is a generated reply with the documents it was drawn from.
type Answer struct {
	Text    string   `json:"text"`
	Sources []string `json:"sources"`
}

// Answer retrieves the top chunks for question and asks the LLM to answer
// from them alone.
func (idx *Index) Answer(ctx context.Context, question string) (Answer, error) {
	hits, err := idx.Search(ctx, question, idx.cfg.TopK)
	if err != nil {
		return Answer{}, err
	}

	var sb strings.Builder
	var sources []string
	seen := make(map[string]bool)
	for i, h := range hits {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(h.Chunk.Text)
		if !seen[h.Chunk.Source] {
			seen[h.Chunk.Source] = true
			sources = append(sources, h.Chunk.Source)
		}
	}

	user := sb.String() + "\n\nQuestion: " + question + "\nHelpful Answer:"
	text, err := idx.cfg.LLM.Complete(ctx, answerSystemPrompt, user)
	if err != nil {
		return Answer{}, fmt.Errorf("failed to generate answer: %w", err)
	}

	return Answer{
		Text:    strings.TrimSpace(text),
		Sources: sources,
	}, nil
}
