package core

import (
	"context"
	"log"
	"strings"

	"github.com/sqltalk/sqltalk/internal/sqldb"
)

// Validation is the corrector's decision: the query to execute and whether
// it differs from the candidate. There is no failure variant; this stage
// always degrades to the original candidate.
type Validation struct {
	Query     string
	Corrected bool
}

// validateQuery asks the completion service to check the candidate against
// the schema. The service's output is untrusted free text, so it is
// accepted only when it passes the same verb whitelist as the executor and
// carries no "valid"-style commentary. Anything else, including a failed
// completion call, falls back to the unvalidated candidate.
func validateQuery(ctx context.Context, completer Completer, dialect, schema, candidate string) Validation {
	if !sqldb.HasAcceptedVerb(candidate) {
		return Validation{Query: candidate}
	}

	prompt, err := validationPrompt.Render(map[string]string{
		"dialect": dialect,
		"schema":  schema,
		"query":   candidate,
	})
	if err != nil {
		log.Printf("Failed to render validation prompt, using unvalidated query: %v", err)
		return Validation{Query: candidate}
	}

	raw, err := completer.Complete(ctx, prompt)
	if err != nil {
		log.Printf("Query validation call failed, using unvalidated query: %v", err)
		return Validation{Query: candidate}
	}

	corrected := SanitizeQuery(raw)
	if strings.Contains(strings.ToLower(corrected), "valid") || !sqldb.HasAcceptedVerb(corrected) {
		return Validation{Query: candidate}
	}
	return Validation{Query: corrected, Corrected: corrected != candidate}
}
