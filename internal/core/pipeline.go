package core

import (
	"context"
	"fmt"
	"time"

	"github.com/sqltalk/sqltalk/internal/sqldb"
)

// Attempt is the immutable record of one pipeline turn, appended to the
// session's attempt log for audit and debugging.
type Attempt struct {
	Timestamp      time.Time `json:"timestamp"`
	Question       string    `json:"question"`
	GeneratedQuery string    `json:"generated_query"`
	ValidatedQuery string    `json:"validated_query"`
	Result         string    `json:"result,omitempty"`
	Err            string    `json:"error,omitempty"`
}

// Pipeline turns a natural-language question into an executed query and a
// natural-language answer: generate, sanitize, validate, execute,
// synthesize. One instance serves all sessions; per-turn state lives in the
// arguments and the returned attempt.
type Pipeline struct {
	completer Completer
}

func NewPipeline(completer Completer) *Pipeline {
	return &Pipeline{completer: completer}
}

// Answer runs one full turn against conn. It returns the synthesized
// answer and the attempt record for the session's log. On failure the
// error is one of the classified categories and the answer is empty; the
// attempt is non-nil whenever a query was generated, so failed executions
// are still logged. History is read as LLM context but never mutated.
func (p *Pipeline) Answer(ctx context.Context, conn *sqldb.Conn, question string, history []Turn) (string, *Attempt, error) {
	if question == "" {
		return "", nil, &GenerationError{Err: fmt.Errorf("question must not be empty")}
	}

	// Fresh snapshot per turn so a reconnect or DDL change mid-session is
	// reflected in every prompt below.
	schema, err := conn.Schema(ctx)
	if err != nil {
		return "", nil, err
	}
	historyText := formatHistory(history)

	generated, err := p.generateQuery(ctx, conn.Dialect(), question, schema, historyText)
	if err != nil {
		return "", nil, err
	}

	validation := validateQuery(ctx, p.completer, conn.Dialect(), schema, generated)

	attempt := &Attempt{
		Timestamp:      time.Now(),
		Question:       question,
		GeneratedQuery: generated,
		ValidatedQuery: validation.Query,
	}

	result, err := conn.Run(ctx, validation.Query)
	if err != nil {
		attempt.Err = err.Error()
		return "", attempt, err
	}
	attempt.Result = result.String()

	answer, err := p.synthesizeResponse(ctx, question, schema, historyText, validation.Query, result)
	if err != nil {
		return "", attempt, err
	}
	return answer, attempt, nil
}

func (p *Pipeline) generateQuery(ctx context.Context, dialect, question, schema, historyText string) (string, error) {
	prompt, err := generationPrompt.Render(map[string]string{
		"dialect":  dialect,
		"question": question,
		"schema":   schema,
		"history":  historyText,
	})
	if err != nil {
		return "", &GenerationError{Err: err}
	}

	raw, err := p.completer.Complete(ctx, prompt)
	if err != nil {
		return "", &GenerationError{Err: err}
	}
	return SanitizeQuery(raw), nil
}

func (p *Pipeline) synthesizeResponse(ctx context.Context, question, schema, historyText, query string, result *sqldb.Result) (string, error) {
	prompt, err := responsePrompt.Render(map[string]string{
		"schema":   schema,
		"history":  historyText,
		"question": question,
		"query":    query,
		"response": result.String(),
	})
	if err != nil {
		return "", &SynthesisError{Err: err}
	}

	answer, err := p.completer.Complete(ctx, prompt)
	if err != nil {
		return "", &SynthesisError{Err: err}
	}
	return answer, nil
}
