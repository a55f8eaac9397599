// Package interpret turns a drawn spread and a question into a
// natural-language interpretation via an LLM provider.
package interpret

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/pkoukk/tiktoken-go"

	"github.com/user/arcana/internal/types"
	"github.com/user/arcana/pkg/llm"
)

const defaultTimeout = 90 * time.Second

const systemPrompt = `You are an experienced tarot reader with deep knowledge of card symbolism.
Interpret a three-card past/present/future spread for the querent.

For each card, describe its symbolism and its meaning in the context of its
position, then analyse how the three cards relate: how the past shapes the
present and the present shapes the future. Close with an overall outlook and
a piece of advice.

Keep a mystical, wise tone, but speak plainly and conversationally. Never
step out of the tarot reader role, never mention being an AI model, and never
refer the querent elsewhere for professional advice.`

// Interpreter implements types.Interpreter on top of an llm.Provider.
// The question is truncated to a token budget before it enters the prompt so
// a pathological message cannot blow the context window.
type Interpreter struct {
	provider          llm.Provider
	tokenizer         *tiktoken.Tiktoken
	maxQuestionTokens int
	timeout           time.Duration
}

var _ types.Interpreter = (*Interpreter)(nil)

// New creates an Interpreter. model selects the tokenizer; unknown models
// fall back to cl100k_base. maxQuestionTokens bounds the question text.
func New(provider llm.Provider, model string, maxQuestionTokens int) (*Interpreter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	if maxQuestionTokens <= 0 {
		maxQuestionTokens = 256
	}
	return &Interpreter{
		provider:          provider,
		tokenizer:         enc,
		maxQuestionTokens: maxQuestionTokens,
		timeout:           defaultTimeout,
	}, nil
}

// Interpret requests one interpretation for the spread. It makes a single
// bounded call with no retries; callers translate failures into in-character
// notices.
func (i *Interpreter) Interpret(ctx context.Context, cards []string, question string) (string, error) {
	if len(cards) != 3 {
		return "", fmt.Errorf("expected 3 cards, got %d", len(cards))
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	resp, err := i.provider.Complete(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: i.userPrompt(cards, question)},
	})
	if err != nil {
		return "", fmt.Errorf("interpretation call: %w", err)
	}

	return sanitize(resp.Content), nil
}

func (i *Interpreter) userPrompt(cards []string, question string) string {
	var b strings.Builder
	b.WriteString("The cards fell as follows:\n")
	fmt.Fprintf(&b, "Past: %s\n", cards[0])
	fmt.Fprintf(&b, "Present: %s\n", cards[1])
	fmt.Fprintf(&b, "Future: %s\n\n", cards[2])
	fmt.Fprintf(&b, "The question asked: %s\n", i.truncate(question))
	return b.String()
}

// truncate cuts the question to the configured token budget.
func (i *Interpreter) truncate(question string) string {
	tokens := i.tokenizer.Encode(question, nil, nil)
	if len(tokens) <= i.maxQuestionTokens {
		return question
	}
	return i.tokenizer.Decode(tokens[:i.maxQuestionTokens])
}

var htmlTag = regexp.MustCompile(`<[a-zA-Z/][^>]*>`)

// sanitize normalizes model output for the transport. Models occasionally
// answer with HTML fragments; those are converted to markdown. Whitespace is
// trimmed so an all-whitespace reply reads as empty to the orchestrator.
func sanitize(text string) string {
	out := strings.TrimSpace(text)
	if htmlTag.MatchString(out) {
		if md, err := htmltomarkdown.ConvertString(out); err == nil {
			out = strings.TrimSpace(md)
		}
	}
	return out
}
