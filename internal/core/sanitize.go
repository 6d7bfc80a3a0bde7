package core

import "strings"

// SanitizeQuery strips code-fence markers and surrounding whitespace from
// generated text, leaving a bare statement. Idempotent.
func SanitizeQuery(raw string) string {
	query := strings.TrimSpace(raw)
	for _, prefix := range []string{"```sql", "```"} {
		if strings.HasPrefix(query, prefix) {
			query = strings.TrimSpace(strings.TrimPrefix(query, prefix))
			break
		}
	}
	if strings.HasSuffix(query, "```") {
		query = strings.TrimSpace(strings.TrimSuffix(query, "```"))
	}
	return query
}
