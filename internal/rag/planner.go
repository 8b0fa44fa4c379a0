package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/readai-labs/readai-go/internal/logging"
)

const plannerSystemPrompt = `You generate diversified search queries for retrieving passages from a book.

Given a reader's question, produce exactly %d alternative search queries, one
per line, with no numbering, bullets, or commentary. Each query should cover a
distinct angle of the question: prefer concrete terms, add synonyms, and
include an English variant when the book may be in English but the question is
not.`

// Planner expands a question into diversified search queries to improve
// recall.
type Planner struct {
	model ChatModel
	// variants is the number of generated queries in addition to the original.
	variants int
}

// NewPlanner returns a Planner producing up to variants generated queries per
// question (default 3 when variants <= 0).
func NewPlanner(m ChatModel, variants int) *Planner {
	if variants <= 0 {
		variants = 3
	}
	return &Planner{model: m, variants: variants}
}

// Expand returns the original query followed by up to p.variants generated
// variants. Expansion is an enhancement, never a hard dependency: on any
// failure or unusable output the original query alone is returned.
func (p *Planner) Expand(ctx context.Context, query string) []string {
	queries := []string{query}

	msg, err := p.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(fmt.Sprintf(plannerSystemPrompt, p.variants)),
		schema.UserMessage(query),
	})
	if err != nil {
		logging.FromContext(ctx).Warn("rag: query expansion failed, searching with original only",
			slog.Any("error", err))
		return queries
	}

	for _, line := range strings.Split(msg.Content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		queries = append(queries, line)
		if len(queries) == 1+p.variants {
			break
		}
	}
	return queries
}
