// Package llm is the inference port: a Generator turns an assembled prompt
// into a lazy, finite stream of text increments.
package llm

import (
	"context"
	"iter"
	"strings"
	"sync"
)

// DefaultStop holds the stop sequences used by DefaultOptions.
var DefaultStop = []string{"<|eot_id|>", "[INST]", "User:", "You:"}

// Options controls one generation.
type Options struct {
	MaxTokens   int
	Temperature float64
	Stop        []string
}

// DefaultOptions returns 512 tokens at temperature 0.2 with DefaultStop.
func DefaultOptions() Options {
	stop := make([]string, len(DefaultStop))
	copy(stop, DefaultStop)
	return Options{MaxTokens: 512, Temperature: 0.2, Stop: stop}
}

// Generator produces a token stream for a prompt. The stream is not
// restartable. Breaking out of the range loop stops the producer and
// releases its resources. A failure is yielded once as the final element
// and wraps core.ErrInferenceFailed.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) iter.Seq2[string, error]
}

// Collect drains a stream into a string, calling onToken (if non-nil) for
// every increment. Text received before a failure is returned with the error.
func Collect(stream iter.Seq2[string, error], onToken func(string)) (string, error) {
	var sb strings.Builder
	for tok, err := range stream {
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(tok)
		if onToken != nil {
			onToken(tok)
		}
	}
	return sb.String(), nil
}

// Static is a Generator that replays fixed tokens, then Err if set. It
// records the prompts it receives.
type Static struct {
	Tokens []string
	Err    error

	mu      sync.Mutex
	prompts []string
}

// Generate yields the configured tokens.
func (s *Static) Generate(ctx context.Context, prompt string, _ Options) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		s.mu.Lock()
		s.prompts = append(s.prompts, prompt)
		s.mu.Unlock()

		for _, tok := range s.Tokens {
			if err := ctx.Err(); err != nil {
				yield("", inferenceError(err))
				return
			}
			if !yield(tok, nil) {
				return
			}
		}
		if s.Err != nil {
			yield("", inferenceError(s.Err))
		}
	}
}

// Prompts returns the prompts received so far.
func (s *Static) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.prompts))
	copy(out, s.prompts)
	return out
}
