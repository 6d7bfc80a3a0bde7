package core

import (
	"fmt"
	"strings"
)

// Stage prompts are configuration data: each template declares the fields
// it requires, and Render refuses to produce a prompt with any of them
// missing. Placeholders use {field} syntax.
type promptTemplate struct {
	name     string
	required []string
	text     string
}

func (t promptTemplate) Render(fields map[string]string) (string, error) {
	for _, f := range t.required {
		if _, ok := fields[f]; !ok {
			return "", fmt.Errorf("prompt %q missing required field %q", t.name, f)
		}
	}
	out := t.text
	for k, v := range fields {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out, nil
}

var generationPrompt = promptTemplate{
	name:     "sql_generation",
	required: []string{"dialect", "question", "schema", "history"},
	text: `You are a {dialect} expert. Generate ONLY the SQL query for this request:
{question}

Database Schema:
{schema}

Conversation History:
{history}

Rules:
1. Return ONLY the SQL query
2. No explanations
3. No markdown
4. No backticks
5. Use exact column and table names from the schema

SQL Query:`,
}

var validationPrompt = promptTemplate{
	name:     "query_validation",
	required: []string{"dialect", "schema", "query"},
	text: `Validate this {dialect} query against the schema. Return ONLY the corrected SQL or the original if valid:

Schema: {schema}

Query: {query}

Rules:
1. If valid, return the exact same query
2. If invalid, return the corrected query
3. NEVER return commentary like "The query is valid"
4. NEVER return markdown or code blocks`,
}

var responsePrompt = promptTemplate{
	name:     "response_synthesis",
	required: []string{"schema", "history", "question", "query", "response"},
	text: `You are a helpful SQL analyst assistant. Convert database results into clear, accurate responses.

Strict guidelines:
1. ONLY use data present in the SQL results
2. For empty results, reply exactly: "No matching records found."
3. Structure the response around the returned columns
4. Never invent or assume data not present in the results
5. For lists, use bullet points
6. For counts, state the exact number
7. For comparisons, highlight the differences

Database Schema:
{schema}

Conversation Context:
{history}

User Question:
{question}

Executed SQL:
{query}

SQL Results:
{response}

Now provide the clear, concise natural language response:`,
}

// Turn is one entry of the conversation history, in chronological order.
type Turn struct {
	Role    string `json:"role"` // RoleUser or RoleAssistant
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

func formatHistory(history []Turn) string {
	if len(history) == 0 {
		return "(no prior conversation)"
	}
	var b strings.Builder
	for i, turn := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		label := "User"
		if turn.Role == RoleAssistant {
			label = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s", label, turn.Content)
	}
	return b.String()
}
